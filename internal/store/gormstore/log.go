package gormstore

import (
	"go-stock-ledger/internal/model"

	"gorm.io/gorm"
)

type transactionLog struct {
	db *gorm.DB
}

// Append inserts the journal entry. The id is assigned by the model hook
// when absent and the primary key keeps re-appends from ever updating an
// existing entry.
func (t *transactionLog) Append(txn *model.InventoryTransaction) error {
	return t.db.Create(txn).Error
}
