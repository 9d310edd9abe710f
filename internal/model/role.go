package model

// Role groups privileges granted to warehouse staff.
type Role struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Code        string      `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name        string      `gorm:"type:varchar(100)" json:"name"`
	Description string      `gorm:"type:text" json:"description"`
	Privileges  []Privilege `gorm:"many2many:role_privileges;" json:"privileges,omitempty"`
}

// Role codes as constants
const (
	RoleWarehouseManager = "WAREHOUSE_MANAGER"
	RoleStorekeeper      = "STOREKEEPER"
	RoleAuditor          = "AUDITOR"
)

// DefaultRoles defines the default roles in the system
var DefaultRoles = []Role{
	{
		Code:        RoleWarehouseManager,
		Name:        "Warehouse Manager",
		Description: "Full access to every stock operation including adjustments and transfers",
	},
	{
		Code:        RoleStorekeeper,
		Name:        "Storekeeper",
		Description: "Day-to-day receiving, issuing and reserving of stock",
	},
	{
		Code:        RoleAuditor,
		Name:        "Auditor",
		Description: "Read-only access to stock state and the movement journal",
	},
}
