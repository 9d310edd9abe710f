package model

import "github.com/google/uuid"

// Catalog entities are owned by the surrounding ERP; the ledger only needs
// slim projections of them for existence checks before a mutation.

type Product struct {
	BaseModel
	SKU  string `gorm:"type:varchar(50);uniqueIndex;not null" json:"sku" validate:"required"`
	Name string `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Unit string `gorm:"type:varchar(20)" json:"unit"`
}

type Warehouse struct {
	BaseModel
	Code string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code" validate:"required"`
	Name string `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
}

// Location is a storage slot inside a warehouse (aisle, bin, staging area).
type Location struct {
	BaseModel
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;index" json:"warehouse_id" validate:"uuid_required"`
	Code        string    `gorm:"type:varchar(50);not null" json:"code" validate:"required"`
	Name        string    `gorm:"type:varchar(255)" json:"name"`
}
