package gormstore

import (
	"fmt"
	"time"

	"go-stock-ledger/internal/apperr"
	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type layerLedger struct {
	db *gorm.DB
}

func (l *layerLedger) OpenLayer(receiptTxnID uuid.UUID, key model.StockKey, qty int64, unitCost decimal.Decimal, receivedAt time.Time) (*model.CostLayer, error) {
	layer := model.CostLayer{
		ProductID:            key.ProductID,
		WarehouseID:          key.WarehouseID,
		LocationID:           key.LocationID,
		ReceiptTransactionID: receiptTxnID,
		RemainingQuantity:    qty,
		UnitCost:             unitCost,
		ReceivedAt:           receivedAt,
	}
	if err := l.db.Create(&layer).Error; err != nil {
		return nil, err
	}
	return &layer, nil
}

// Consume depletes open layers for key in FIFO order. The quantity check
// happens before any write, so an insufficient balance leaves every layer
// untouched.
func (l *layerLedger) Consume(key model.StockKey, qty int64) ([]store.Consumption, decimal.Decimal, error) {
	var layers []model.CostLayer
	err := scopeKey(l.db.Clauses(clause.Locking{Strength: "UPDATE"}), key).
		Where("remaining_quantity > 0").
		Order("received_at ASC, seq ASC").
		Find(&layers).Error
	if err != nil {
		return nil, decimal.Zero, err
	}

	var open int64
	for _, layer := range layers {
		open += layer.RemainingQuantity
	}
	if open < qty {
		return nil, decimal.Zero, fmt.Errorf("%w: requested %d, open layers hold %d at %s",
			apperr.ErrInsufficientStock, qty, open, key)
	}

	var consumed []store.Consumption
	totalCost := decimal.Zero
	remaining := qty
	for i := range layers {
		if remaining == 0 {
			break
		}
		take := layers[i].RemainingQuantity
		if take > remaining {
			take = remaining
		}
		newBalance := layers[i].RemainingQuantity - take
		err := l.db.Model(&model.CostLayer{}).
			Where("id = ?", layers[i].ID).
			Update("remaining_quantity", newBalance).Error
		if err != nil {
			return nil, decimal.Zero, err
		}
		consumed = append(consumed, store.Consumption{
			LayerID:  layers[i].ID,
			Quantity: take,
			UnitCost: layers[i].UnitCost,
		})
		totalCost = totalCost.Add(layers[i].UnitCost.Mul(decimal.NewFromInt(take)))
		remaining -= take
	}

	avg := totalCost.Div(decimal.NewFromInt(qty))
	return consumed, avg, nil
}

func (l *layerLedger) OpenLayers(key model.StockKey) ([]model.CostLayer, error) {
	var layers []model.CostLayer
	err := scopeKey(l.db, key).
		Where("remaining_quantity > 0").
		Order("received_at ASC, seq ASC").
		Find(&layers).Error
	return layers, err
}
