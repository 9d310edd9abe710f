// Package catalog provides the read-only existence checks the coordinator
// performs before mutating stock. The catalog entities themselves are owned
// by the surrounding ERP.
package catalog

import (
	"context"

	"go-stock-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reader answers existence checks against the catalog tables.
type Reader struct {
	db *gorm.DB
}

func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db}
}

func (r *Reader) exists(ctx context.Context, entity any, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(entity).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *Reader) ProductExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, &model.Product{}, id)
}

func (r *Reader) WarehouseExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, &model.Warehouse{}, id)
}

func (r *Reader) LocationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, &model.Location{}, id)
}

// Static is an in-memory catalog for dev mode and tests.
type Static struct {
	Products   map[uuid.UUID]bool
	Warehouses map[uuid.UUID]bool
	Locations  map[uuid.UUID]bool
}

func NewStatic() *Static {
	return &Static{
		Products:   make(map[uuid.UUID]bool),
		Warehouses: make(map[uuid.UUID]bool),
		Locations:  make(map[uuid.UUID]bool),
	}
}

func (s *Static) AddProduct(id uuid.UUID) *Static   { s.Products[id] = true; return s }
func (s *Static) AddWarehouse(id uuid.UUID) *Static { s.Warehouses[id] = true; return s }
func (s *Static) AddLocation(id uuid.UUID) *Static  { s.Locations[id] = true; return s }

func (s *Static) ProductExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.Products[id], nil
}

func (s *Static) WarehouseExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.Warehouses[id], nil
}

func (s *Static) LocationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.Locations[id], nil
}
