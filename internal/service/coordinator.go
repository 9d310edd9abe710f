package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go-stock-ledger/internal/apperr"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/store"
	"go-stock-ledger/pkg/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Coordinator orchestrates every stock operation: it authorizes the caller,
// checks catalog references, then mutates the quantity record, the cost
// layers and the movement journal inside one transaction.
type Coordinator struct {
	store   store.Store
	gate    PermissionGate
	audit   AuditSink
	catalog CatalogReader
}

func NewCoordinator(st store.Store, gate PermissionGate, audit AuditSink, catalog CatalogReader) *Coordinator {
	return &Coordinator{store: st, gate: gate, audit: audit, catalog: catalog}
}

// ---- operation inputs ----

type ReceiptInput struct {
	Key          model.StockKey    `json:"key"`
	Quantity     int64             `json:"quantity" validate:"required,gt=0"`
	UnitCost     decimal.Decimal   `json:"unit_cost"`
	LotNumber    string            `json:"lot_number"`
	SerialNumber string            `json:"serial_number"`
	ExpiryDate   *time.Time        `json:"expiry_date"`
	Ref          model.DocumentRef `json:"ref"`
}

type IssueInput struct {
	Key      model.StockKey    `json:"key"`
	Quantity int64             `json:"quantity" validate:"required,gt=0"`
	Ref      model.DocumentRef `json:"ref"`
}

type AdjustmentDirection string

const (
	AdjustIn  AdjustmentDirection = "IN"
	AdjustOut AdjustmentDirection = "OUT"
)

type AdjustmentInput struct {
	Key       model.StockKey      `json:"key"`
	Quantity  int64               `json:"quantity" validate:"required,gt=0"`
	Direction AdjustmentDirection `json:"direction" validate:"required,oneof=IN OUT"`

	// UnitCost prices the new layer on an IN adjustment. When nil, the
	// current weighted average of the key's open layers is booked.
	UnitCost *decimal.Decimal  `json:"unit_cost"`
	Ref      model.DocumentRef `json:"ref"`
}

type ReservationInput struct {
	Key      model.StockKey    `json:"key"`
	Quantity int64             `json:"quantity" validate:"required,gt=0"`
	Ref      model.DocumentRef `json:"ref"`
}

type TransferInput struct {
	Source      model.StockKey    `json:"source"`
	Destination model.StockKey    `json:"destination"`
	Quantity    int64             `json:"quantity" validate:"required,gt=0"`
	Ref         model.DocumentRef `json:"ref"`
}

// TransferResult carries both legs of a committed transfer.
type TransferResult struct {
	Out      *model.InventoryTransaction `json:"out"`
	In       *model.InventoryTransaction `json:"in"`
	UnitCost decimal.Decimal             `json:"unit_cost"`
}

// ---- operations ----

// RecordGoodsReceipt books qty units at unitCost into key: one Receipt
// journal entry, one new cost layer, on-hand increased by qty.
func (c *Coordinator) RecordGoodsReceipt(ctx context.Context, id Identity, in ReceiptInput) (*model.InventoryTransaction, error) {
	if err := validateInput(in, in.Key); err != nil {
		return nil, err
	}
	if in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost must not be negative", apperr.ErrValidation)
	}
	if err := c.authorize(id, model.PermInventoryReceive); err != nil {
		return nil, err
	}
	if err := c.checkCatalog(ctx, in.Key); err != nil {
		return nil, err
	}

	var txn *model.InventoryTransaction
	var before, after *model.InventoryRecord
	err := c.inTxRetry(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().GetOrCreate(in.Key)
		if err != nil {
			return err
		}
		before = copyRecord(rec)

		txn = model.NewTransaction(in.Key, model.TxReceipt, in.Quantity, in.UnitCost, in.Ref)
		txn.LotNumber = in.LotNumber
		txn.SerialNumber = in.SerialNumber
		txn.ExpiryDate = in.ExpiryDate
		txn.CreatedBy = id.UserID
		if err := tx.Log().Append(txn); err != nil {
			return err
		}

		if _, err := tx.Layers().OpenLayer(txn.ID, in.Key, in.Quantity, in.UnitCost, time.Now()); err != nil {
			return err
		}

		if err := tx.Records().ApplyMovement(in.Key, in.Quantity, 0); err != nil {
			return err
		}
		after = snapshotAfter(tx, in.Key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.notifyAudit(id, "inventory:receipt", before, after)
	return txn, nil
}

// RecordGoodsIssue removes qty units from key, consuming cost layers
// oldest-first. The journal entry carries the realized weighted unit cost.
// An insufficient balance fails fast with nothing mutated.
func (c *Coordinator) RecordGoodsIssue(ctx context.Context, id Identity, in IssueInput) (*model.InventoryTransaction, error) {
	if err := validateInput(in, in.Key); err != nil {
		return nil, err
	}
	if err := c.authorize(id, model.PermInventoryIssue); err != nil {
		return nil, err
	}
	if err := c.checkCatalog(ctx, in.Key); err != nil {
		return nil, err
	}

	var txn *model.InventoryTransaction
	var before, after *model.InventoryRecord
	err := c.inTxRetry(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().GetOrCreate(in.Key)
		if err != nil {
			return err
		}
		before = copyRecord(rec)

		_, avgCost, err := tx.Layers().Consume(in.Key, in.Quantity)
		if err != nil {
			return err
		}

		txn = model.NewTransaction(in.Key, model.TxIssue, in.Quantity, avgCost, in.Ref)
		txn.CreatedBy = id.UserID
		if err := tx.Log().Append(txn); err != nil {
			return err
		}

		if err := tx.Records().ApplyMovement(in.Key, -in.Quantity, 0); err != nil {
			return err
		}
		after = snapshotAfter(tx, in.Key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.notifyAudit(id, "inventory:issue", before, after)
	return txn, nil
}

// AdjustInventory corrects the book quantity at key. An IN adjustment opens
// a new layer (caller-supplied cost, or the current weighted average when
// absent); an OUT adjustment consumes layers like an issue.
func (c *Coordinator) AdjustInventory(ctx context.Context, id Identity, in AdjustmentInput) (*model.InventoryTransaction, error) {
	if err := validateInput(in, in.Key); err != nil {
		return nil, err
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost must not be negative", apperr.ErrValidation)
	}
	if err := c.authorize(id, model.PermInventoryAdjust); err != nil {
		return nil, err
	}
	if err := c.checkCatalog(ctx, in.Key); err != nil {
		return nil, err
	}

	var txn *model.InventoryTransaction
	var before, after *model.InventoryRecord
	err := c.inTxRetry(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().GetOrCreate(in.Key)
		if err != nil {
			return err
		}
		before = copyRecord(rec)

		switch in.Direction {
		case AdjustIn:
			cost, err := c.adjustmentCost(tx, in)
			if err != nil {
				return err
			}
			txn = model.NewTransaction(in.Key, model.TxAdjustmentIn, in.Quantity, cost, in.Ref)
			txn.CreatedBy = id.UserID
			if err := tx.Log().Append(txn); err != nil {
				return err
			}
			if _, err := tx.Layers().OpenLayer(txn.ID, in.Key, in.Quantity, cost, time.Now()); err != nil {
				return err
			}
			if err := tx.Records().ApplyMovement(in.Key, in.Quantity, 0); err != nil {
				return err
			}
		case AdjustOut:
			_, avgCost, err := tx.Layers().Consume(in.Key, in.Quantity)
			if err != nil {
				return err
			}
			txn = model.NewTransaction(in.Key, model.TxAdjustmentOut, in.Quantity, avgCost, in.Ref)
			txn.CreatedBy = id.UserID
			if err := tx.Log().Append(txn); err != nil {
				return err
			}
			if err := tx.Records().ApplyMovement(in.Key, -in.Quantity, 0); err != nil {
				return err
			}
		}
		after = snapshotAfter(tx, in.Key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.notifyAudit(id, "inventory:adjustment", before, after)
	return txn, nil
}

// adjustmentCost resolves the unit cost booked by an IN adjustment.
func (c *Coordinator) adjustmentCost(tx store.Tx, in AdjustmentInput) (decimal.Decimal, error) {
	if in.UnitCost != nil {
		return *in.UnitCost, nil
	}
	layers, err := tx.Layers().OpenLayers(in.Key)
	if err != nil {
		return decimal.Zero, err
	}
	var qty int64
	total := decimal.Zero
	for _, l := range layers {
		qty += l.RemainingQuantity
		total = total.Add(l.Value())
	}
	if qty == 0 {
		return decimal.Zero, fmt.Errorf("%w: unit cost required, no open layers at %s to average",
			apperr.ErrValidation, in.Key)
	}
	return total.Div(decimal.NewFromInt(qty)), nil
}

// ReserveInventory earmarks qty available units at key. Cost layers are not
// touched; the journal records a Reservation entry.
func (c *Coordinator) ReserveInventory(ctx context.Context, id Identity, in ReservationInput) (*model.InventoryTransaction, error) {
	return c.mutateReservation(ctx, id, in, model.TxReservation)
}

// UnreserveInventory releases qty previously reserved units at key.
func (c *Coordinator) UnreserveInventory(ctx context.Context, id Identity, in ReservationInput) (*model.InventoryTransaction, error) {
	return c.mutateReservation(ctx, id, in, model.TxUnreservation)
}

func (c *Coordinator) mutateReservation(ctx context.Context, id Identity, in ReservationInput, typ model.TransactionType) (*model.InventoryTransaction, error) {
	if err := validateInput(in, in.Key); err != nil {
		return nil, err
	}
	if err := c.authorize(id, model.PermInventoryReserve); err != nil {
		return nil, err
	}
	if err := c.checkCatalog(ctx, in.Key); err != nil {
		return nil, err
	}

	var txn *model.InventoryTransaction
	var before, after *model.InventoryRecord
	err := c.inTxRetry(ctx, func(tx store.Tx) error {
		rec, err := tx.Records().GetOrCreate(in.Key)
		if err != nil {
			return err
		}
		before = copyRecord(rec)

		if typ == model.TxReservation {
			err = tx.Records().Reserve(in.Key, in.Quantity)
		} else {
			err = tx.Records().Unreserve(in.Key, in.Quantity)
		}
		if err != nil {
			return err
		}

		txn = model.NewTransaction(in.Key, typ, in.Quantity, decimal.Zero, in.Ref)
		txn.CreatedBy = id.UserID
		if err := tx.Log().Append(txn); err != nil {
			return err
		}
		after = snapshotAfter(tx, in.Key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.notifyAudit(id, "inventory:reservation", before, after)
	return txn, nil
}

// TransferStock moves qty units between two keys of the same product as one
// atomic unit. The destination layer is priced at the weighted cost realized
// from the source consumption, preserving cost continuity.
func (c *Coordinator) TransferStock(ctx context.Context, id Identity, in TransferInput) (*TransferResult, error) {
	if err := validateInput(in, in.Source); err != nil {
		return nil, err
	}
	if in.Destination.IsZero() {
		return nil, fmt.Errorf("%w: destination key is incomplete", apperr.ErrValidation)
	}
	if in.Source.ProductID != in.Destination.ProductID {
		return nil, fmt.Errorf("%w: a transfer moves one product between locations", apperr.ErrValidation)
	}
	if in.Source == in.Destination {
		return nil, fmt.Errorf("%w: source and destination are the same key", apperr.ErrValidation)
	}
	if err := c.authorize(id, model.PermInventoryTransfer); err != nil {
		return nil, err
	}
	if err := c.checkCatalog(ctx, in.Source); err != nil {
		return nil, err
	}
	if err := c.checkCatalog(ctx, in.Destination); err != nil {
		return nil, err
	}

	// Lock both ends in key order regardless of transfer direction so two
	// opposing transfers cannot deadlock.
	first, second := in.Source, in.Destination
	if second.Less(first) {
		first, second = second, first
	}

	var result *TransferResult
	var srcBefore, srcAfter *model.InventoryRecord
	err := c.inTxRetry(ctx, func(tx store.Tx) error {
		for _, key := range []model.StockKey{first, second} {
			if _, err := tx.Records().GetOrCreate(key); err != nil {
				return err
			}
		}
		src, err := tx.Records().GetOrCreate(in.Source)
		if err != nil {
			return err
		}
		srcBefore = copyRecord(src)

		_, avgCost, err := tx.Layers().Consume(in.Source, in.Quantity)
		if err != nil {
			return err
		}

		outTxn := model.NewTransaction(in.Source, model.TxTransferOut, in.Quantity, avgCost, in.Ref)
		outTxn.CreatedBy = id.UserID
		if err := tx.Log().Append(outTxn); err != nil {
			return err
		}
		if err := tx.Records().ApplyMovement(in.Source, -in.Quantity, 0); err != nil {
			return err
		}

		inTxn := model.NewTransaction(in.Destination, model.TxTransferIn, in.Quantity, avgCost, in.Ref)
		inTxn.CreatedBy = id.UserID
		if err := tx.Log().Append(inTxn); err != nil {
			return err
		}
		if _, err := tx.Layers().OpenLayer(inTxn.ID, in.Destination, in.Quantity, avgCost, time.Now()); err != nil {
			return err
		}
		if err := tx.Records().ApplyMovement(in.Destination, in.Quantity, 0); err != nil {
			return err
		}

		srcAfter = snapshotAfter(tx, in.Source)
		result = &TransferResult{Out: outTxn, In: inTxn, UnitCost: avgCost}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.notifyAudit(id, "inventory:transfer", srcBefore, srcAfter)
	return result, nil
}

// ---- read accessors ----

func (c *Coordinator) GetByKey(ctx context.Context, key model.StockKey) (*model.InventoryRecord, error) {
	return c.store.GetByKey(ctx, key)
}

func (c *Coordinator) GetAllFiltered(ctx context.Context, filter store.RecordFilter) ([]model.InventoryRecord, error) {
	return c.store.GetAllFiltered(ctx, filter)
}

func (c *Coordinator) GetByProduct(ctx context.Context, productID uuid.UUID) ([]model.InventoryRecord, error) {
	return c.store.GetByProduct(ctx, productID)
}

func (c *Coordinator) GetBelowReorder(ctx context.Context) ([]model.InventoryRecord, error) {
	return c.store.GetBelowReorder(ctx)
}

func (c *Coordinator) OpenLayers(ctx context.Context, key model.StockKey) ([]model.CostLayer, error) {
	return c.store.OpenLayers(ctx, key)
}

func (c *Coordinator) Valuation(ctx context.Context, key model.StockKey) (decimal.Decimal, error) {
	return c.store.Valuation(ctx, key)
}

func (c *Coordinator) QueryTransactions(ctx context.Context, filter store.TxnFilter) ([]model.InventoryTransaction, error) {
	return c.store.QueryTransactions(ctx, filter)
}

// ---- helpers ----

func validateInput(in any, key model.StockKey) error {
	if key.IsZero() {
		return fmt.Errorf("%w: stock key is incomplete", apperr.ErrValidation)
	}
	if errs := validator.ValidateStruct(in); len(errs) > 0 {
		first := errs[0]
		return fmt.Errorf("%w: field '%s' failed on tag '%s'", apperr.ErrValidation, first.FailedField, first.Tag)
	}
	return nil
}

func (c *Coordinator) authorize(id Identity, permission string) error {
	if !c.gate.Check(id.UserID, id.Roles, permission) {
		return fmt.Errorf("%w: user %s lacks %s", apperr.ErrPermissionDenied, id.UserID, permission)
	}
	return nil
}

func (c *Coordinator) checkCatalog(ctx context.Context, key model.StockKey) error {
	checks := []struct {
		entity string
		id     uuid.UUID
		fn     func(context.Context, uuid.UUID) (bool, error)
	}{
		{"product", key.ProductID, c.catalog.ProductExists},
		{"warehouse", key.WarehouseID, c.catalog.WarehouseExists},
		{"location", key.LocationID, c.catalog.LocationExists},
	}
	for _, check := range checks {
		ok, err := check.fn(ctx, check.id)
		if err != nil {
			return fmt.Errorf("%w: catalog lookup for %s: %v", apperr.ErrPersistence, check.entity, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, check.entity, check.id)
		}
	}
	return nil
}

// inTxRetry runs fn in one transaction, retrying exactly once when the
// first attempt fails on a lock or version conflict. Persistence failures
// are logged at critical severity before surfacing.
func (c *Coordinator) inTxRetry(ctx context.Context, fn func(store.Tx) error) error {
	err := c.store.InTx(ctx, fn)
	if errors.Is(err, apperr.ErrConcurrentModification) {
		err = c.store.InTx(ctx, fn)
	}
	if errors.Is(err, apperr.ErrPersistence) || errors.Is(err, apperr.ErrPoolExhausted) {
		log.Printf("CRITICAL: stock operation rolled back: %v", err)
	}
	return err
}

// notifyAudit reports a committed mutation to the audit sink without ever
// failing the caller.
func (c *Coordinator) notifyAudit(id Identity, action string, before, after *model.InventoryRecord) {
	if c.audit == nil {
		return
	}
	go c.audit.Record(id.UserID, action, before, after, "inventory_record")
}

func copyRecord(rec *model.InventoryRecord) *model.InventoryRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	return &cp
}

// snapshotAfter re-reads the record at the end of the transaction body for
// the audit trail. Failures here are ignored: the business outcome is
// already decided.
func snapshotAfter(tx store.Tx, key model.StockKey) *model.InventoryRecord {
	rec, err := tx.Records().GetOrCreate(key)
	if err != nil {
		return nil
	}
	return copyRecord(rec)
}
