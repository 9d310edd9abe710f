package gormstore

import (
	"errors"
	"fmt"

	"go-stock-ledger/internal/apperr"
	"go-stock-ledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type recordStore struct {
	db *gorm.DB
}

// lockedGet reads the record for key under FOR UPDATE. The lock is held
// until the enclosing transaction commits or rolls back.
func (r *recordStore) lockedGet(key model.StockKey) (*model.InventoryRecord, error) {
	var rec model.InventoryRecord
	err := scopeKey(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), key).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordStore) GetOrCreate(key model.StockKey) (*model.InventoryRecord, error) {
	rec, err := r.lockedGet(key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := model.InventoryRecord{
		ProductID:   key.ProductID,
		WarehouseID: key.WarehouseID,
		LocationID:  key.LocationID,
	}
	if createErr := r.db.Create(&fresh).Error; createErr != nil {
		// A concurrent transaction may have created the row between our
		// read and insert; the locked re-read settles it.
		if rec, err = r.lockedGet(key); err == nil {
			return rec, nil
		}
		return nil, createErr
	}
	return &fresh, nil
}

func (r *recordStore) ApplyMovement(key model.StockKey, onHandDelta, reservedDelta int64) error {
	rec, err := r.lockedGet(key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: no inventory record at %s", apperr.ErrInvalidState, key)
	}
	if err != nil {
		return err
	}
	if err := rec.ApplyMovement(onHandDelta, reservedDelta); err != nil {
		return err
	}
	return r.saveQuantities(rec)
}

func (r *recordStore) Reserve(key model.StockKey, qty int64) error {
	rec, err := r.lockedGet(key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: requested %d, no stock at %s", apperr.ErrInsufficientStock, qty, key)
	}
	if err != nil {
		return err
	}
	if err := rec.Reserve(qty); err != nil {
		return err
	}
	return r.saveQuantities(rec)
}

func (r *recordStore) Unreserve(key model.StockKey, qty int64) error {
	rec, err := r.lockedGet(key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: no inventory record at %s", apperr.ErrInvalidState, key)
	}
	if err != nil {
		return err
	}
	if err := rec.Unreserve(qty); err != nil {
		return err
	}
	return r.saveQuantities(rec)
}

func (r *recordStore) saveQuantities(rec *model.InventoryRecord) error {
	return r.db.Model(&model.InventoryRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"quantity_on_hand":  rec.QuantityOnHand,
			"quantity_reserved": rec.QuantityReserved,
		}).Error
}
