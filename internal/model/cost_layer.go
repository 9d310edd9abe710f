package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CostLayer is a priced batch of on-hand stock, opened by a receipt or a
// positive adjustment and depleted oldest-first by issues, negative
// adjustments and transfers. Fully consumed layers are kept at zero
// remaining quantity for cost traceability.
type CostLayer struct {
	BaseModel
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index:idx_layer_key,priority:1" json:"product_id"`
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;index:idx_layer_key,priority:2" json:"warehouse_id"`
	LocationID  uuid.UUID `gorm:"type:uuid;not null;index:idx_layer_key,priority:3" json:"location_id"`

	// Seq is a monotonically increasing insertion counter. FIFO depletion
	// orders by ReceivedAt and breaks ties by Seq.
	Seq int64 `gorm:"autoIncrement;uniqueIndex" json:"seq"`

	// ReceiptTransactionID links back to the journal entry that opened
	// this layer.
	ReceiptTransactionID uuid.UUID `gorm:"type:uuid;not null" json:"receipt_transaction_id"`

	RemainingQuantity int64           `gorm:"not null" json:"remaining_quantity"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	ReceivedAt        time.Time       `gorm:"not null;index" json:"received_at"`
}

func (l *CostLayer) Key() StockKey {
	return StockKey{ProductID: l.ProductID, WarehouseID: l.WarehouseID, LocationID: l.LocationID}
}

// Value is the remaining quantity priced at the layer's unit cost.
func (l *CostLayer) Value() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.RemainingQuantity))
}
