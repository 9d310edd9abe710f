package model

import (
	"fmt"

	"github.com/google/uuid"
)

// StockKey identifies one stock position: a product at a location inside a
// warehouse. Every record, cost layer and movement is scoped to a key.
type StockKey struct {
	ProductID   uuid.UUID `json:"product_id" validate:"uuid_required"`
	WarehouseID uuid.UUID `json:"warehouse_id" validate:"uuid_required"`
	LocationID  uuid.UUID `json:"location_id" validate:"uuid_required"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.ProductID, k.WarehouseID, k.LocationID)
}

// Less imposes a total order over keys. Transfers lock both ends in this
// order regardless of direction so that two opposing transfers cannot
// deadlock each other.
func (k StockKey) Less(other StockKey) bool {
	return k.String() < other.String()
}

// IsZero reports whether any component of the key is unset.
func (k StockKey) IsZero() bool {
	return k.ProductID == uuid.Nil || k.WarehouseID == uuid.Nil || k.LocationID == uuid.Nil
}
