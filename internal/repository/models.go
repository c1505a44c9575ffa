package repository

import "time"

// ItemRecord persists an item definition. Quantities are not stored
// here; they are rebuilt by replaying the audit log.
type ItemRecord struct {
	Serial          string `gorm:"primaryKey"`
	Name            string `gorm:"not null"`
	Icon            string
	LowStockTrigger int
	EbaySKU         string `gorm:"column:ebay_sku;index"`
	AmazonSKU       string `gorm:"column:amazon_sku;index"`
	EtsySKU         string `gorm:"column:etsy_sku;index"`
}

func (ItemRecord) TableName() string {
	return "items"
}

// CompositionRecord persists one composition edge: Quantity units of the
// component go into one unit of the parent.
type CompositionRecord struct {
	ID              uint   `gorm:"primaryKey"`
	ParentSerial    string `gorm:"index;not null"`
	ComponentSerial string `gorm:"index;not null"`
	Quantity        int    `gorm:"not null"`
}

func (CompositionRecord) TableName() string {
	return "compositions"
}

// LogRecord persists one audit entry. Rows are append-only except for
// the mutable flag and message columns. IDs come from the audit
// manager's sequence, not the database.
type LogRecord struct {
	ID              int64  `gorm:"primaryKey;autoIncrement:false"`
	Type            string `gorm:"index;not null"`
	Severity        string `gorm:"index"`
	Amount          int
	ItemSerial      string `gorm:"index"`
	Message         string
	Reverted        bool
	Solved          bool
	Suppressed      bool
	RevertedLogID   int64
	RevertedByLogID int64
	CreatedAt       time.Time
}

func (LogRecord) TableName() string {
	return "audit_logs"
}

// OrderRecord persists the latest known state of a marketplace order.
type OrderRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Platform  string `gorm:"uniqueIndex:idx_platform_order;not null"`
	OrderID   string `gorm:"uniqueIndex:idx_platform_order;not null"`
	Status    string `gorm:"not null"`
	Lines     string
	UpdatedAt time.Time
}

func (OrderRecord) TableName() string {
	return "marketplace_orders"
}

// StateRecord is a key/value row for orchestrator state.
type StateRecord struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (StateRecord) TableName() string {
	return "ledger_state"
}
