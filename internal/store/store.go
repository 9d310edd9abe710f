// Package store defines the persistence ports for the inventory core: the
// quantity record store, the FIFO cost-layer ledger and the append-only
// movement journal, all scoped to a single atomic transaction.
package store

import (
	"context"
	"time"

	"go-stock-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Consumption reports how much was taken from one cost layer during a FIFO
// depletion and at what unit cost.
type Consumption struct {
	LayerID  uuid.UUID       `json:"layer_id"`
	Quantity int64           `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// RecordStore mutates current quantity state inside a transaction. The first
// read of a key acquires its row lock for the remainder of the transaction,
// serializing concurrent multi-step operations on that key.
type RecordStore interface {
	// GetOrCreate returns the record for key, creating it with zero
	// quantities on first movement.
	GetOrCreate(key model.StockKey) (*model.InventoryRecord, error)

	// ApplyMovement shifts on-hand and reserved by the given deltas,
	// rejecting any result with negative on-hand or reserved above on-hand.
	ApplyMovement(key model.StockKey, onHandDelta, reservedDelta int64) error

	// Reserve earmarks qty available units; Unreserve releases them.
	Reserve(key model.StockKey, qty int64) error
	Unreserve(key model.StockKey, qty int64) error
}

// LayerLedger tracks priced stock batches and their FIFO depletion inside a
// transaction.
type LayerLedger interface {
	// OpenLayer creates a new layer holding qty units priced at unitCost,
	// linked to the journal entry that caused it.
	OpenLayer(receiptTxnID uuid.UUID, key model.StockKey, qty int64, unitCost decimal.Decimal, receivedAt time.Time) (*model.CostLayer, error)

	// Consume depletes open layers for key oldest-first (ReceivedAt, then
	// insertion order) until qty is exhausted. It returns the per-layer
	// consumptions and the quantity-weighted average unit cost. When the
	// open layers hold less than qty it fails with ErrInsufficientStock
	// and mutates nothing.
	Consume(key model.StockKey, qty int64) ([]Consumption, decimal.Decimal, error)

	// OpenLayers returns the layers with remaining quantity for key, in
	// FIFO order.
	OpenLayers(key model.StockKey) ([]model.CostLayer, error)
}

// TransactionLog appends to the immutable movement journal.
type TransactionLog interface {
	// Append writes the entry exactly once, assigning id and timestamp when
	// absent. Entries are never updated.
	Append(txn *model.InventoryTransaction) error
}

// Tx bundles the per-transaction views of the three components. Everything
// done through a Tx commits or rolls back as one unit.
type Tx interface {
	Records() RecordStore
	Layers() LayerLedger
	Log() TransactionLog
}

// RecordFilter narrows record reads. Nil UUID fields match everything.
type RecordFilter struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	LocationID  uuid.UUID
}

// TxnFilter narrows journal queries.
type TxnFilter struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	LocationID  uuid.UUID
	Type        model.TransactionType
	From        *time.Time
	To          *time.Time
	Limit       int
}

// Reader is the read-only surface served outside a mutating transaction.
type Reader interface {
	GetByKey(ctx context.Context, key model.StockKey) (*model.InventoryRecord, error)
	GetAllFiltered(ctx context.Context, filter RecordFilter) ([]model.InventoryRecord, error)
	GetByProduct(ctx context.Context, productID uuid.UUID) ([]model.InventoryRecord, error)
	GetBelowReorder(ctx context.Context) ([]model.InventoryRecord, error)

	// OpenLayers and Valuation expose the costing state for one key.
	OpenLayers(ctx context.Context, key model.StockKey) ([]model.CostLayer, error)
	Valuation(ctx context.Context, key model.StockKey) (decimal.Decimal, error)

	QueryTransactions(ctx context.Context, filter TxnFilter) ([]model.InventoryTransaction, error)
}

// Store is the transactional entry point. InTx runs fn inside one database
// transaction: a nil return commits, any error rolls back every write made
// through the Tx. Context cancellation aborts with a rollback.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(Tx) error) error
}
