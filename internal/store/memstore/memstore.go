// Package memstore is the in-memory implementation of the store ports, used
// when no DATABASE_URL is configured (dev/demo mode) and by the unit tests.
// One mutex serializes transactions; rollback restores a pre-transaction
// snapshot. Coarser than the per-row locks of the SQL store, but it gives
// the same observable atomicity.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-stock-ledger/internal/apperr"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu      sync.Mutex
	records map[string]*model.InventoryRecord
	layers  map[string][]*model.CostLayer
	journal []*model.InventoryTransaction
	seq     int64
}

func New() *Store {
	return &Store{
		records: make(map[string]*model.InventoryRecord),
		layers:  make(map[string][]*model.CostLayer),
	}
}

type snapshot struct {
	records map[string]*model.InventoryRecord
	layers  map[string][]*model.CostLayer
	journal []*model.InventoryTransaction
	seq     int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		records: make(map[string]*model.InventoryRecord, len(s.records)),
		layers:  make(map[string][]*model.CostLayer, len(s.layers)),
		journal: append([]*model.InventoryTransaction(nil), s.journal...),
		seq:     s.seq,
	}
	for k, rec := range s.records {
		cp := *rec
		snap.records[k] = &cp
	}
	for k, layers := range s.layers {
		cps := make([]*model.CostLayer, len(layers))
		for i, l := range layers {
			cp := *l
			cps[i] = &cp
		}
		snap.layers[k] = cps
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.records = snap.records
	s.layers = snap.layers
	s.journal = snap.journal
	s.seq = snap.seq
}

// InTx serializes the transaction under the store mutex and restores the
// pre-transaction snapshot when fn returns an error.
func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memTx struct {
	s *Store
}

func (t *memTx) Records() store.RecordStore { return &memRecords{s: t.s} }
func (t *memTx) Layers() store.LayerLedger  { return &memLayers{s: t.s} }
func (t *memTx) Log() store.TransactionLog  { return &memLog{s: t.s} }

// ---- RecordStore ----

type memRecords struct {
	s *Store
}

func (r *memRecords) GetOrCreate(key model.StockKey) (*model.InventoryRecord, error) {
	if rec, ok := r.s.records[key.String()]; ok {
		return rec, nil
	}
	now := time.Now()
	rec := &model.InventoryRecord{
		BaseModel:   model.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		ProductID:   key.ProductID,
		WarehouseID: key.WarehouseID,
		LocationID:  key.LocationID,
	}
	r.s.records[key.String()] = rec
	return rec, nil
}

func (r *memRecords) get(key model.StockKey) (*model.InventoryRecord, error) {
	rec, ok := r.s.records[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: no inventory record at %s", apperr.ErrInvalidState, key)
	}
	return rec, nil
}

func (r *memRecords) ApplyMovement(key model.StockKey, onHandDelta, reservedDelta int64) error {
	rec, err := r.get(key)
	if err != nil {
		return err
	}
	if err := rec.ApplyMovement(onHandDelta, reservedDelta); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *memRecords) Reserve(key model.StockKey, qty int64) error {
	rec, ok := r.s.records[key.String()]
	if !ok {
		return fmt.Errorf("%w: requested %d, no stock at %s", apperr.ErrInsufficientStock, qty, key)
	}
	if err := rec.Reserve(qty); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *memRecords) Unreserve(key model.StockKey, qty int64) error {
	rec, err := r.get(key)
	if err != nil {
		return err
	}
	if err := rec.Unreserve(qty); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()
	return nil
}

// ---- LayerLedger ----

type memLayers struct {
	s *Store
}

func (l *memLayers) OpenLayer(receiptTxnID uuid.UUID, key model.StockKey, qty int64, unitCost decimal.Decimal, receivedAt time.Time) (*model.CostLayer, error) {
	l.s.seq++
	layer := &model.CostLayer{
		BaseModel:            model.BaseModel{ID: uuid.New(), CreatedAt: time.Now(), UpdatedAt: time.Now()},
		ProductID:            key.ProductID,
		WarehouseID:          key.WarehouseID,
		LocationID:           key.LocationID,
		Seq:                  l.s.seq,
		ReceiptTransactionID: receiptTxnID,
		RemainingQuantity:    qty,
		UnitCost:             unitCost,
		ReceivedAt:           receivedAt,
	}
	l.s.layers[key.String()] = append(l.s.layers[key.String()], layer)
	return layer, nil
}

func (l *memLayers) openSorted(key model.StockKey) []*model.CostLayer {
	var open []*model.CostLayer
	for _, layer := range l.s.layers[key.String()] {
		if layer.RemainingQuantity > 0 {
			open = append(open, layer)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if !open[i].ReceivedAt.Equal(open[j].ReceivedAt) {
			return open[i].ReceivedAt.Before(open[j].ReceivedAt)
		}
		return open[i].Seq < open[j].Seq
	})
	return open
}

func (l *memLayers) Consume(key model.StockKey, qty int64) ([]store.Consumption, decimal.Decimal, error) {
	open := l.openSorted(key)

	var total int64
	for _, layer := range open {
		total += layer.RemainingQuantity
	}
	if total < qty {
		return nil, decimal.Zero, fmt.Errorf("%w: requested %d, open layers hold %d at %s",
			apperr.ErrInsufficientStock, qty, total, key)
	}

	var consumed []store.Consumption
	totalCost := decimal.Zero
	remaining := qty
	for _, layer := range open {
		if remaining == 0 {
			break
		}
		take := layer.RemainingQuantity
		if take > remaining {
			take = remaining
		}
		layer.RemainingQuantity -= take
		layer.UpdatedAt = time.Now()
		consumed = append(consumed, store.Consumption{
			LayerID:  layer.ID,
			Quantity: take,
			UnitCost: layer.UnitCost,
		})
		totalCost = totalCost.Add(layer.UnitCost.Mul(decimal.NewFromInt(take)))
		remaining -= take
	}

	avg := totalCost.Div(decimal.NewFromInt(qty))
	return consumed, avg, nil
}

func (l *memLayers) OpenLayers(key model.StockKey) ([]model.CostLayer, error) {
	open := l.openSorted(key)
	out := make([]model.CostLayer, len(open))
	for i, layer := range open {
		out[i] = *layer
	}
	return out, nil
}

// ---- TransactionLog ----

type memLog struct {
	s *Store
}

func (l *memLog) Append(txn *model.InventoryTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	cp := *txn
	l.s.journal = append(l.s.journal, &cp)
	return nil
}
