package memstore

import (
	"context"
	"fmt"
	"sort"

	"go-stock-ledger/internal/apperr"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Read accessors take the same mutex as InTx so readers never observe a
// transaction in flight.

func (s *Store) GetByKey(ctx context.Context, key model.StockKey) (*model.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: no inventory record at %s", apperr.ErrNotFound, key)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) GetAllFiltered(ctx context.Context, filter store.RecordFilter) ([]model.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InventoryRecord
	for _, rec := range s.records {
		if filter.ProductID != uuid.Nil && rec.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != uuid.Nil && rec.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.LocationID != uuid.Nil && rec.LocationID != filter.LocationID {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetByProduct(ctx context.Context, productID uuid.UUID) ([]model.InventoryRecord, error) {
	return s.GetAllFiltered(ctx, store.RecordFilter{ProductID: productID})
}

func (s *Store) GetBelowReorder(ctx context.Context) ([]model.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InventoryRecord
	for _, rec := range s.records {
		if rec.ReorderPoint > 0 && rec.QuantityAvailable() <= rec.ReorderPoint {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) OpenLayers(ctx context.Context, key model.StockKey) ([]model.CostLayer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memLayers{s: s}).OpenLayers(key)
}

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
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InventoryTransaction
	for _, txn := range s.journal {
		if filter.ProductID != uuid.Nil && txn.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != uuid.Nil && txn.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.LocationID != uuid.Nil && txn.LocationID != filter.LocationID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		if filter.From != nil && txn.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && txn.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, *txn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
