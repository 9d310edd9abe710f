package model

import (
	"testing"

	"go-stock-ledger/internal/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(onHand, reserved int64) *InventoryRecord {
	return &InventoryRecord{
		ProductID:        uuid.New(),
		WarehouseID:      uuid.New(),
		LocationID:       uuid.New(),
		QuantityOnHand:   onHand,
		QuantityReserved: reserved,
	}
}

func TestApplyMovement(t *testing.T) {
	rec := newRecord(10, 3)

	require.NoError(t, rec.ApplyMovement(5, 0))
	assert.EqualValues(t, 15, rec.QuantityOnHand)
	assert.EqualValues(t, 12, rec.QuantityAvailable())

	require.NoError(t, rec.ApplyMovement(-15, -3))
	assert.EqualValues(t, 0, rec.QuantityOnHand)
	assert.EqualValues(t, 0, rec.QuantityReserved)
}

func TestApplyMovement_RejectsNegativeOnHand(t *testing.T) {
	rec := newRecord(4, 0)

	err := rec.ApplyMovement(-5, 0)
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.EqualValues(t, 4, rec.QuantityOnHand, "failed movement must not mutate")
}

func TestApplyMovement_RejectsReservedAboveOnHand(t *testing.T) {
	rec := newRecord(10, 8)

	// Dropping on-hand to 5 would leave 8 reserved above it.
	err := rec.ApplyMovement(-5, 0)
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.EqualValues(t, 10, rec.QuantityOnHand)
	assert.EqualValues(t, 8, rec.QuantityReserved)
}

func TestReserve_Boundary(t *testing.T) {
	rec := newRecord(10, 4)

	err := rec.Reserve(7)
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.EqualValues(t, 4, rec.QuantityReserved)

	require.NoError(t, rec.Reserve(6))
	assert.EqualValues(t, 10, rec.QuantityReserved)
	assert.EqualValues(t, 0, rec.QuantityAvailable())
}

func TestUnreserve_Boundary(t *testing.T) {
	rec := newRecord(10, 4)

	err := rec.Unreserve(5)
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.EqualValues(t, 4, rec.QuantityReserved)

	require.NoError(t, rec.Unreserve(4))
	assert.EqualValues(t, 0, rec.QuantityReserved)
}

func TestCanSoftDelete(t *testing.T) {
	assert.False(t, newRecord(1, 0).CanSoftDelete())
	assert.False(t, newRecord(5, 5).CanSoftDelete())
	assert.True(t, newRecord(0, 0).CanSoftDelete())
}

func TestStockKeyOrdering(t *testing.T) {
	a := StockKey{ProductID: uuid.New(), WarehouseID: uuid.New(), LocationID: uuid.New()}
	b := StockKey{ProductID: uuid.New(), WarehouseID: uuid.New(), LocationID: uuid.New()}

	// Exactly one direction holds for distinct keys.
	assert.NotEqual(t, a.Less(b), b.Less(a))
	assert.False(t, a.Less(a))
}
