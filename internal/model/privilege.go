package model

// Privilege represents a permission that can be assigned to roles.
type Privilege struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"` // e.g. "inventory:receive"
	Name string `gorm:"type:varchar(100)" json:"name"`
}

// Privilege codes checked before each mutating stock operation.
const (
	PermInventoryView     = "inventory:view"
	PermInventoryReceive  = "inventory:receive"
	PermInventoryIssue    = "inventory:issue"
	PermInventoryAdjust   = "inventory:adjust"
	PermInventoryReserve  = "inventory:reserve"
	PermInventoryTransfer = "inventory:transfer"
)

// Default privileges for the system
var DefaultPrivileges = []Privilege{
	{Code: PermInventoryView, Name: "View Stock"},
	{Code: PermInventoryReceive, Name: "Record Goods Receipt"},
	{Code: PermInventoryIssue, Name: "Record Goods Issue"},
	{Code: PermInventoryAdjust, Name: "Adjust Inventory"},
	{Code: PermInventoryReserve, Name: "Reserve Stock"},
	{Code: PermInventoryTransfer, Name: "Transfer Stock"},
}

// DefaultRolePrivileges maps role codes to the privilege codes they carry.
var DefaultRolePrivileges = map[string][]string{
	RoleWarehouseManager: {
		PermInventoryView, PermInventoryReceive, PermInventoryIssue,
		PermInventoryAdjust, PermInventoryReserve, PermInventoryTransfer,
	},
	RoleStorekeeper: {
		PermInventoryView, PermInventoryReceive, PermInventoryIssue, PermInventoryReserve,
	},
	RoleAuditor: {
		PermInventoryView,
	},
}
