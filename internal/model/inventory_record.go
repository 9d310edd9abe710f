package model

import (
	"fmt"

	"go-stock-ledger/internal/apperr"

	"github.com/google/uuid"
)

// InventoryRecord is the materialized quantity state for one stock key.
// It is created on the first movement at that key and never hard-deleted
// while stock remains; once both quantities reach zero it may be
// soft-deleted.
type InventoryRecord struct {
	BaseModel
	ProductID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_key,priority:1" json:"product_id"`
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_key,priority:2" json:"warehouse_id"`
	LocationID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_key,priority:3" json:"location_id"`

	QuantityOnHand   int64 `gorm:"not null;default:0" json:"quantity_on_hand"`
	QuantityReserved int64 `gorm:"not null;default:0" json:"quantity_reserved"`

	// Reorder thresholds for low-stock reporting.
	ReorderPoint    int64 `gorm:"default:0" json:"reorder_point"`
	ReorderQuantity int64 `gorm:"default:0" json:"reorder_quantity"`
}

func (r *InventoryRecord) Key() StockKey {
	return StockKey{ProductID: r.ProductID, WarehouseID: r.WarehouseID, LocationID: r.LocationID}
}

// QuantityAvailable is on-hand minus reserved.
func (r *InventoryRecord) QuantityAvailable() int64 {
	return r.QuantityOnHand - r.QuantityReserved
}

// ApplyMovement mutates the quantity fields by the given deltas. It rejects
// any movement that would leave on-hand negative or reserved above on-hand.
func (r *InventoryRecord) ApplyMovement(onHandDelta, reservedDelta int64) error {
	newOnHand := r.QuantityOnHand + onHandDelta
	newReserved := r.QuantityReserved + reservedDelta
	if newOnHand < 0 {
		return fmt.Errorf("%w: on-hand would become %d at %s", apperr.ErrInvalidState, newOnHand, r.Key())
	}
	if newReserved < 0 || newReserved > newOnHand {
		return fmt.Errorf("%w: reserved would become %d with on-hand %d at %s",
			apperr.ErrInvalidState, newReserved, newOnHand, r.Key())
	}
	r.QuantityOnHand = newOnHand
	r.QuantityReserved = newReserved
	return nil
}

// Reserve earmarks qty units of available stock.
func (r *InventoryRecord) Reserve(qty int64) error {
	if qty > r.QuantityAvailable() {
		return fmt.Errorf("%w: requested %d, available %d at %s",
			apperr.ErrInsufficientStock, qty, r.QuantityAvailable(), r.Key())
	}
	r.QuantityReserved += qty
	return nil
}

// Unreserve releases qty previously reserved units.
func (r *InventoryRecord) Unreserve(qty int64) error {
	if qty > r.QuantityReserved {
		return fmt.Errorf("%w: unreserve %d exceeds reserved %d at %s",
			apperr.ErrInvalidState, qty, r.QuantityReserved, r.Key())
	}
	r.QuantityReserved -= qty
	return nil
}

// CanSoftDelete reports whether the record is empty enough to retire.
func (r *InventoryRecord) CanSoftDelete() bool {
	return r.QuantityOnHand == 0 && r.QuantityReserved == 0
}
