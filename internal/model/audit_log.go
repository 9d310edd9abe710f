package model

// AuditLog is one best-effort audit entry written after a committed stock
// operation. Failures to persist it never roll back the business transaction.
type AuditLog struct {
	BaseModel
	UserID      string `gorm:"type:varchar(100);index" json:"user_id"`
	Action      string `gorm:"type:varchar(50);not null;index" json:"action"`
	Entity      string `gorm:"type:varchar(50)" json:"entity"`
	BeforeState string `gorm:"type:text" json:"before_state"`
	AfterState  string `gorm:"type:text" json:"after_state"`
}
