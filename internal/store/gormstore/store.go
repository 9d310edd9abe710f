// Package gormstore is the Postgres-backed implementation of the store
// ports. Atomicity comes from one gorm transaction per operation; per-key
// serialization comes from SELECT ... FOR UPDATE row locks taken on the
// first read of a stock key inside that transaction.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-stock-ledger/internal/apperr"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Store struct {
	db             *gorm.DB
	acquireTimeout time.Duration
}

type Option func(*Store)

// WithAcquireTimeout bounds how long an operation may wait for a pooled
// connection and its transaction; on expiry the call fails with
// ErrPoolExhausted.
func WithAcquireTimeout(d time.Duration) Option {
	return func(s *Store) { s.acquireTimeout = d }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, acquireTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTx runs fn inside one database transaction. A nil return commits, any
// error rolls back. Driver-level failures are reclassified into the error
// taxonomy; business errors pass through untouched.
func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	if s.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.acquireTimeout)
		defer cancel()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txView{db: tx})
	})
	return classify(err)
}

type txView struct {
	db *gorm.DB
}

func (t *txView) Records() store.RecordStore { return &recordStore{db: t.db} }
func (t *txView) Layers() store.LayerLedger  { return &layerLedger{db: t.db} }
func (t *txView) Log() store.TransactionLog  { return &transactionLog{db: t.db} }

// classify maps driver errors into the error taxonomy. Business errors and
// caller cancellation are returned as-is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if apperr.IsBusiness(err) ||
		errors.Is(err, apperr.ErrConcurrentModification) ||
		errors.Is(err, apperr.ErrPersistence) ||
		errors.Is(err, apperr.ErrPoolExhausted) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: transaction not acquired in time: %v", apperr.ErrPoolExhausted, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isLockConflict(err) {
		return fmt.Errorf("%w: %v", apperr.ErrConcurrentModification, err)
	}
	return fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
}

// isLockConflict recognizes Postgres serialization failures (40001) and
// deadlock detection (40P01).
func isLockConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "40001") || strings.Contains(msg, "40P01")
}

func scopeKey(db *gorm.DB, key model.StockKey) *gorm.DB {
	return db.Where("product_id = ? AND warehouse_id = ? AND location_id = ?",
		key.ProductID, key.WarehouseID, key.LocationID)
}

// ---- read-only surface (outside a mutating transaction) ----

func (s *Store) GetByKey(ctx context.Context, key model.StockKey) (*model.InventoryRecord, error) {
	var rec model.InventoryRecord
	err := scopeKey(s.db.WithContext(ctx), key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no inventory record at %s", apperr.ErrNotFound, key)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &rec, nil
}

func (s *Store) GetAllFiltered(ctx context.Context, filter store.RecordFilter) ([]model.InventoryRecord, error) {
	q := s.db.WithContext(ctx).Model(&model.InventoryRecord{})
	if filter.ProductID != uuid.Nil {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.WarehouseID != uuid.Nil {
		q = q.Where("warehouse_id = ?", filter.WarehouseID)
	}
	if filter.LocationID != uuid.Nil {
		q = q.Where("location_id = ?", filter.LocationID)
	}
	var records []model.InventoryRecord
	if err := q.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, classify(err)
	}
	return records, nil
}

func (s *Store) GetByProduct(ctx context.Context, productID uuid.UUID) ([]model.InventoryRecord, error) {
	return s.GetAllFiltered(ctx, store.RecordFilter{ProductID: productID})
}

func (s *Store) GetBelowReorder(ctx context.Context) ([]model.InventoryRecord, error) {
	var records []model.InventoryRecord
	err := s.db.WithContext(ctx).
		Where("reorder_point > 0 AND quantity_on_hand - quantity_reserved <= reorder_point").
		Find(&records).Error
	if err != nil {
		return nil, classify(err)
	}
	return records, nil
}

func (s *Store) OpenLayers(ctx context.Context, key model.StockKey) ([]model.CostLayer, error) {
	var layers []model.CostLayer
	err := scopeKey(s.db.WithContext(ctx), key).
		Where("remaining_quantity > 0").
		Order("received_at ASC, seq ASC").
		Find(&layers).Error
	if err != nil {
		return nil, classify(err)
	}
	return layers, nil
}

// Valuation prices the on-hand stock at key from its open layers.
func (s *Store) Valuation(ctx context.Context, key model.StockKey) (decimal.Decimal, error) {
	layers, err := s.OpenLayers(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, l := range layers {
		total = total.Add(l.Value())
	}
	return total, nil
}

func (s *Store) QueryTransactions(ctx context.Context, filter store.TxnFilter) ([]model.InventoryTransaction, error) {
	q := s.db.WithContext(ctx).Model(&model.InventoryTransaction{})
	if filter.ProductID != uuid.Nil {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.WarehouseID != uuid.Nil {
		q = q.Where("warehouse_id = ?", filter.WarehouseID)
	}
	if filter.LocationID != uuid.Nil {
		q = q.Where("location_id = ?", filter.LocationID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var txns []model.InventoryTransaction
	if err := q.Order("created_at DESC").Find(&txns).Error; err != nil {
		return nil, classify(err)
	}
	return txns, nil
}
