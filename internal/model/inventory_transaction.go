package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxReceipt       TransactionType = "RECEIPT"
	TxIssue         TransactionType = "ISSUE"
	TxAdjustmentIn  TransactionType = "ADJUSTMENT_IN"
	TxAdjustmentOut TransactionType = "ADJUSTMENT_OUT"
	TxTransferOut   TransactionType = "TRANSFER_OUT"
	TxTransferIn    TransactionType = "TRANSFER_IN"
	TxReservation   TransactionType = "RESERVATION"
	TxUnreservation TransactionType = "UNRESERVATION"
)

// DocumentRef points at the business document that caused a movement
// (purchase order, sales shipment, stocktake sheet).
type DocumentRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// InventoryTransaction is one immutable entry in the stock movement journal.
// Entries are written exactly once and never updated; current state lives on
// InventoryRecord, the journal exists for audit and reporting.
type InventoryTransaction struct {
	BaseModel
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index:idx_txn_key,priority:1" json:"product_id"`
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;index:idx_txn_key,priority:2" json:"warehouse_id"`
	LocationID  uuid.UUID `gorm:"type:uuid;not null;index:idx_txn_key,priority:3" json:"location_id"`

	Type     TransactionType `gorm:"type:varchar(20);not null;index" json:"type"`
	Quantity int64           `gorm:"not null" json:"quantity"`

	// UnitCost is the booked cost for the movement: the receipt price on
	// inbound entries, the realized FIFO weighted average on outbound ones.
	// Zero for reservation entries.
	UnitCost decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"unit_cost"`

	LotNumber    string     `gorm:"type:varchar(50)" json:"lot_number,omitempty"`
	SerialNumber string     `gorm:"type:varchar(50)" json:"serial_number,omitempty"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`

	ReferenceID   string `gorm:"type:varchar(100);index" json:"reference_id,omitempty"`
	ReferenceType string `gorm:"type:varchar(50)" json:"reference_type,omitempty"`
}

func (t *InventoryTransaction) Key() StockKey {
	return StockKey{ProductID: t.ProductID, WarehouseID: t.WarehouseID, LocationID: t.LocationID}
}

// NewTransaction builds a journal entry for a movement at key.
func NewTransaction(key StockKey, typ TransactionType, qty int64, unitCost decimal.Decimal, ref DocumentRef) *InventoryTransaction {
	return &InventoryTransaction{
		ProductID:     key.ProductID,
		WarehouseID:   key.WarehouseID,
		LocationID:    key.LocationID,
		Type:          typ,
		Quantity:      qty,
		UnitCost:      unitCost,
		ReferenceID:   ref.ID,
		ReferenceType: ref.Type,
	}
}
