package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"go-stock-ledger/internal/apperr"
	"go-stock-ledger/internal/auth"
	"go-stock-ledger/internal/catalog"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/store"
	"go-stock-ledger/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	coordinator *Coordinator
	store       *memstore.Store
	key         model.StockKey
	altKey      model.StockKey
	manager     Identity
	auditor     Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key := model.StockKey{ProductID: uuid.New(), WarehouseID: uuid.New(), LocationID: uuid.New()}
	altKey := model.StockKey{ProductID: key.ProductID, WarehouseID: key.WarehouseID, LocationID: uuid.New()}

	cat := catalog.NewStatic().
		AddProduct(key.ProductID).
		AddWarehouse(key.WarehouseID).
		AddLocation(key.LocationID).
		AddLocation(altKey.LocationID)

	st := memstore.New()
	gate := auth.NewStaticGate(model.DefaultRolePrivileges)
	coordinator := NewCoordinator(st, gate, nil, cat)

	return &testEnv{
		coordinator: coordinator,
		store:       st,
		key:         key,
		altKey:      altKey,
		manager:     Identity{UserID: "manager-1", Roles: []string{model.RoleWarehouseManager}},
		auditor:     Identity{UserID: "auditor-1", Roles: []string{model.RoleAuditor}},
	}
}

func (e *testEnv) receive(t *testing.T, key model.StockKey, qty int64, cost int64) *model.InventoryTransaction {
	t.Helper()
	txn, err := e.coordinator.RecordGoodsReceipt(context.Background(), e.manager, ReceiptInput{
		Key:      key,
		Quantity: qty,
		UnitCost: decimal.NewFromInt(cost),
	})
	require.NoError(t, err)
	return txn
}

// checkInvariants asserts that on-hand equals the sum of open layer balances
// and that reserved never exceeds on-hand.
func (e *testEnv) checkInvariants(t *testing.T, key model.StockKey) {
	t.Helper()
	rec, err := e.store.GetByKey(context.Background(), key)
	require.NoError(t, err)

	layers, err := e.store.OpenLayers(context.Background(), key)
	require.NoError(t, err)
	var layerTotal int64
	for _, l := range layers {
		layerTotal += l.RemainingQuantity
	}

	assert.Equal(t, rec.QuantityOnHand, layerTotal, "on-hand must equal open layer total")
	assert.LessOrEqual(t, rec.QuantityReserved, rec.QuantityOnHand, "reserved must not exceed on-hand")
}

func TestReceiptThenFullIssue_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 10, 5)

	txn, err := env.coordinator.RecordGoodsIssue(ctx, env.manager, IssueInput{Key: env.key, Quantity: 10})
	require.NoError(t, err)
	assert.True(t, txn.UnitCost.Equal(decimal.NewFromInt(5)))

	rec, err := env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.QuantityOnHand)

	layers, err := env.store.OpenLayers(ctx, env.key)
	require.NoError(t, err)
	assert.Empty(t, layers)
	env.checkInvariants(t, env.key)
}

func TestIssue_FIFOWeightedCost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 5, 1)
	env.receive(t, env.key, 5, 2)

	txn, err := env.coordinator.RecordGoodsIssue(ctx, env.manager, IssueInput{Key: env.key, Quantity: 7})
	require.NoError(t, err)

	// 5 units at cost 1 plus 2 units at cost 2 over 7 units.
	want := decimal.NewFromInt(9).Div(decimal.NewFromInt(7))
	assert.True(t, txn.UnitCost.Equal(want), "got %s, want %s", txn.UnitCost, want)

	layers, err := env.store.OpenLayers(ctx, env.key)
	require.NoError(t, err)
	require.Len(t, layers, 1, "first layer must be fully consumed")
	assert.EqualValues(t, 3, layers[0].RemainingQuantity)
	assert.True(t, layers[0].UnitCost.Equal(decimal.NewFromInt(2)))
	env.checkInvariants(t, env.key)
}

func TestIssue_InsufficientStockMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 5, 3)

	_, err := env.coordinator.RecordGoodsIssue(ctx, env.manager, IssueInput{Key: env.key, Quantity: 6})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	rec, err := env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	assert.EqualValues(t, 5, rec.QuantityOnHand)
	env.checkInvariants(t, env.key)

	// No Issue entry may appear in the journal.
	txns, err := env.store.QueryTransactions(ctx, store.TxnFilter{ProductID: env.key.ProductID, Type: model.TxIssue})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestTransfer_CostContinuity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 10, 4)

	result, err := env.coordinator.TransferStock(ctx, env.manager, TransferInput{
		Source:      env.key,
		Destination: env.altKey,
		Quantity:    3,
	})
	require.NoError(t, err)
	assert.True(t, result.UnitCost.Equal(decimal.NewFromInt(4)))

	src, err := env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	assert.EqualValues(t, 7, src.QuantityOnHand)

	dst, err := env.store.GetByKey(ctx, env.altKey)
	require.NoError(t, err)
	assert.EqualValues(t, 3, dst.QuantityOnHand)

	dstLayers, err := env.store.OpenLayers(ctx, env.altKey)
	require.NoError(t, err)
	require.Len(t, dstLayers, 1)
	assert.True(t, dstLayers[0].UnitCost.Equal(decimal.NewFromInt(4)), "destination layer keeps source cost")

	// Exactly one TransferOut and one TransferIn entry.
	outs, err := env.store.QueryTransactions(ctx, store.TxnFilter{ProductID: env.key.ProductID, Type: model.TxTransferOut})
	require.NoError(t, err)
	ins, err := env.store.QueryTransactions(ctx, store.TxnFilter{ProductID: env.key.ProductID, Type: model.TxTransferIn})
	require.NoError(t, err)
	assert.Len(t, outs, 1)
	assert.Len(t, ins, 1)

	env.checkInvariants(t, env.key)
	env.checkInvariants(t, env.altKey)
}

func TestTransfer_InsufficientStockRollsBackBothLegs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 2, 4)

	_, err := env.coordinator.TransferStock(ctx, env.manager, TransferInput{
		Source:      env.key,
		Destination: env.altKey,
		Quantity:    5,
	})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	src, err := env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.QuantityOnHand)

	// The destination record created during the aborted attempt must not
	// survive the rollback with stock on it.
	if dst, err := env.store.GetByKey(ctx, env.altKey); err == nil {
		assert.EqualValues(t, 0, dst.QuantityOnHand)
	}

	txns, err := env.store.QueryTransactions(ctx, store.TxnFilter{ProductID: env.key.ProductID})
	require.NoError(t, err)
	for _, txn := range txns {
		assert.NotEqual(t, model.TxTransferOut, txn.Type)
		assert.NotEqual(t, model.TxTransferIn, txn.Type)
	}
}

func TestReserve_BoundaryAndRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 5, 2)

	// Over-reserving fails and leaves reserved unchanged.
	_, err := env.coordinator.ReserveInventory(ctx, env.manager, ReservationInput{Key: env.key, Quantity: 6})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	rec, err := env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.QuantityReserved)

	_, err = env.coordinator.ReserveInventory(ctx, env.manager, ReservationInput{Key: env.key, Quantity: 3})
	require.NoError(t, err)

	// Available shrinks to 2; a reserve of 3 more must fail.
	_, err = env.coordinator.ReserveInventory(ctx, env.manager, ReservationInput{Key: env.key, Quantity: 3})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	_, err = env.coordinator.UnreserveInventory(ctx, env.manager, ReservationInput{Key: env.key, Quantity: 3})
	require.NoError(t, err)
	rec, err = env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.QuantityReserved)
	env.checkInvariants(t, env.key)
}

func TestUnreserve_BeyondReservedFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 5, 2)

	_, err := env.coordinator.UnreserveInventory(ctx, env.manager, ReservationInput{Key: env.key, Quantity: 1})
	require.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAdjustInventory_InOpensLayerAtSuppliedCost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cost := decimal.NewFromInt(7)
	txn, err := env.coordinator.AdjustInventory(ctx, env.manager, AdjustmentInput{
		Key:       env.key,
		Quantity:  4,
		Direction: AdjustIn,
		UnitCost:  &cost,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TxAdjustmentIn, txn.Type)

	layers, err := env.store.OpenLayers(ctx, env.key)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.True(t, layers[0].UnitCost.Equal(cost))
	env.checkInvariants(t, env.key)
}

func TestAdjustInventory_InDefaultsToCurrentAverage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 2, 3)
	env.receive(t, env.key, 2, 5)

	txn, err := env.coordinator.AdjustInventory(ctx, env.manager, AdjustmentInput{
		Key:       env.key,
		Quantity:  4,
		Direction: AdjustIn,
	})
	require.NoError(t, err)
	// (2*3 + 2*5) / 4 = 4
	assert.True(t, txn.UnitCost.Equal(decimal.NewFromInt(4)), "got %s", txn.UnitCost)
	env.checkInvariants(t, env.key)
}

func TestAdjustInventory_InWithoutCostOrLayersFails(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.coordinator.AdjustInventory(context.Background(), env.manager, AdjustmentInput{
		Key:       env.key,
		Quantity:  4,
		Direction: AdjustIn,
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAdjustInventory_OutConsumesLayers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 6, 2)

	txn, err := env.coordinator.AdjustInventory(ctx, env.manager, AdjustmentInput{
		Key:       env.key,
		Quantity:  4,
		Direction: AdjustOut,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TxAdjustmentOut, txn.Type)
	assert.True(t, txn.UnitCost.Equal(decimal.NewFromInt(2)))

	rec, err := env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rec.QuantityOnHand)
	env.checkInvariants(t, env.key)
}

func TestPermissionDenied_NoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.coordinator.RecordGoodsReceipt(ctx, env.auditor, ReceiptInput{
		Key:      env.key,
		Quantity: 10,
		UnitCost: decimal.NewFromInt(5),
	})
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = env.store.GetByKey(ctx, env.key)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUnknownCatalogReference_FailsFast(t *testing.T) {
	env := newTestEnv(t)

	unknown := model.StockKey{ProductID: uuid.New(), WarehouseID: env.key.WarehouseID, LocationID: env.key.LocationID}
	_, err := env.coordinator.RecordGoodsReceipt(context.Background(), env.manager, ReceiptInput{
		Key:      unknown,
		Quantity: 1,
		UnitCost: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestValidation_RejectsNonPositiveQuantity(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.coordinator.RecordGoodsIssue(context.Background(), env.manager, IssueInput{Key: env.key, Quantity: 0})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.coordinator.RecordGoodsIssue(context.Background(), env.manager, IssueInput{Key: env.key, Quantity: -3})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestConcurrentIssues_NeverOversell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const initialStock = 20
	const callers = 50

	env.receive(t, env.key, initialStock, 1)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.coordinator.RecordGoodsIssue(ctx, env.manager, IssueInput{Key: env.key, Quantity: 1})
			if err == nil {
				successCount.Add(1)
			} else if !errors.Is(err, apperr.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, initialStock, successCount.Load())

	rec, err := env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.QuantityOnHand)
	env.checkInvariants(t, env.key)
}

// failingLogStore wraps a store so every journal append fails, simulating a
// mid-sequence write failure after cost layers were already consumed.
type failingLogStore struct {
	store.Store
}

func (f *failingLogStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	return f.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(&failingLogTx{Tx: tx})
	})
}

type failingLogTx struct {
	store.Tx
}

func (t *failingLogTx) Log() store.TransactionLog { return failingLog{} }

type failingLog struct{}

func (failingLog) Append(*model.InventoryTransaction) error {
	return fmt.Errorf("%w: journal write failed", apperr.ErrPersistence)
}

func TestIssue_LogFailureRestoresPreOperationState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.receive(t, env.key, 10, 5)

	beforeRec, err := env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	beforeLayers, err := env.store.OpenLayers(ctx, env.key)
	require.NoError(t, err)

	gate := auth.NewStaticGate(model.DefaultRolePrivileges)
	cat := catalog.NewStatic().
		AddProduct(env.key.ProductID).
		AddWarehouse(env.key.WarehouseID).
		AddLocation(env.key.LocationID)
	broken := NewCoordinator(&failingLogStore{Store: env.store}, gate, nil, cat)

	_, err = broken.RecordGoodsIssue(ctx, env.manager, IssueInput{Key: env.key, Quantity: 4})
	require.ErrorIs(t, err, apperr.ErrPersistence)

	afterRec, err := env.store.GetByKey(ctx, env.key)
	require.NoError(t, err)
	assert.Equal(t, beforeRec.QuantityOnHand, afterRec.QuantityOnHand)
	assert.Equal(t, beforeRec.QuantityReserved, afterRec.QuantityReserved)

	afterLayers, err := env.store.OpenLayers(ctx, env.key)
	require.NoError(t, err)
	require.Equal(t, len(beforeLayers), len(afterLayers))
	for i := range beforeLayers {
		assert.Equal(t, beforeLayers[i].ID, afterLayers[i].ID)
		assert.Equal(t, beforeLayers[i].RemainingQuantity, afterLayers[i].RemainingQuantity)
		assert.True(t, beforeLayers[i].UnitCost.Equal(afterLayers[i].UnitCost))
	}
}

// flakyStore fails the first n transactions with a lock conflict, then
// delegates.
type flakyStore struct {
	store.Store
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return fmt.Errorf("%w: simulated lock conflict", apperr.ErrConcurrentModification)
	}
	f.mu.Unlock()
	return f.Store.InTx(ctx, fn)
}

func TestConcurrentModification_RetriedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	gate := auth.NewStaticGate(model.DefaultRolePrivileges)
	cat := catalog.NewStatic().
		AddProduct(env.key.ProductID).
		AddWarehouse(env.key.WarehouseID).
		AddLocation(env.key.LocationID)

	// One conflict: the internal retry succeeds.
	flaky := &flakyStore{Store: env.store, failures: 1}
	retrying := NewCoordinator(flaky, gate, nil, cat)
	_, err := retrying.RecordGoodsReceipt(ctx, env.manager, ReceiptInput{
		Key: env.key, Quantity: 5, UnitCost: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	// Two conflicts in a row: surfaced after the single retry.
	flaky = &flakyStore{Store: env.store, failures: 2}
	retrying = NewCoordinator(flaky, gate, nil, cat)
	_, err = retrying.RecordGoodsReceipt(ctx, env.manager, ReceiptInput{
		Key: env.key, Quantity: 5, UnitCost: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, apperr.ErrConcurrentModification)
}

// recordingSink captures audit notifications for assertions.
type recordingSink struct {
	calls chan string
}

func (r *recordingSink) Record(userID, action string, before, after any, entity string) {
	r.calls <- action
}

func TestAudit_NotifiedAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sink := &recordingSink{calls: make(chan string, 1)}
	cat := catalog.NewStatic().
		AddProduct(env.key.ProductID).
		AddWarehouse(env.key.WarehouseID).
		AddLocation(env.key.LocationID)
	audited := NewCoordinator(env.store, auth.NewStaticGate(model.DefaultRolePrivileges), sink, cat)

	_, err := audited.RecordGoodsReceipt(ctx, env.manager, ReceiptInput{
		Key: env.key, Quantity: 1, UnitCost: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "inventory:receipt", <-sink.calls)
}

func TestTransfer_RejectsMismatchedProductAndSelfTransfer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other := model.StockKey{ProductID: uuid.New(), WarehouseID: env.key.WarehouseID, LocationID: env.altKey.LocationID}
	_, err := env.coordinator.TransferStock(ctx, env.manager, TransferInput{
		Source: env.key, Destination: other, Quantity: 1,
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.coordinator.TransferStock(ctx, env.manager, TransferInput{
		Source: env.key, Destination: env.key, Quantity: 1,
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
}
