package migrations

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Run applies the schema for the engine's stores. The records below are the only place
// the physical layout is declared; adapters address columns by name through the gateway.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	return db.AutoMigrate(
		&tableRecord{},
		&orderRecord{},
		&orderLineRecord{},
		&reservationRecord{},
		&productRecord{},
		&stockMovementRecord{},
	)
}

// Table schema. Alias and temporary capacity are cache-only and have no column.
type tableRecord struct {
	ID         int64  `gorm:"primaryKey;column:id"`
	BusinessID string `gorm:"column:business_id;size:32;uniqueIndex"`
	Zone       string `gorm:"column:zone;size:64;index"`
	State      string `gorm:"column:state;size:16"`
	Capacity   int    `gorm:"column:capacity"`
}

func (tableRecord) TableName() string { return "venue_tables" }

type orderRecord struct {
	ID       int64      `gorm:"primaryKey;column:id"`
	TableID  string     `gorm:"column:table_id;size:32;index:idx_orders_table_state"`
	State    string     `gorm:"column:state;size:16;index:idx_orders_table_state"`
	UserID   string     `gorm:"column:user_id;size:64"`
	OpenedAt time.Time  `gorm:"column:opened_at"`
	ClosedAt *time.Time `gorm:"column:closed_at"`
}

func (orderRecord) TableName() string { return "orders" }

type orderLineRecord struct {
	ID        int64           `gorm:"primaryKey;column:id"`
	OrderID   int64           `gorm:"column:order_id;index"`
	Position  int             `gorm:"column:position"`
	ProductID int64           `gorm:"column:product_id"`
	Name      string          `gorm:"column:name;size:128"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:decimal(12,2)"`
	Quantity  int             `gorm:"column:quantity"`
	Notes     string          `gorm:"column:notes;size:255"`
}

func (orderLineRecord) TableName() string { return "order_lines" }

type reservationRecord struct {
	ID              int64     `gorm:"primaryKey;column:id"`
	TableID         string    `gorm:"column:table_id;size:32;index:idx_reservations_table_start"`
	ClientName      string    `gorm:"column:client_name;size:128"`
	StartsAt        time.Time `gorm:"column:starts_at;index:idx_reservations_table_start"`
	DurationMinutes int       `gorm:"column:duration_minutes"`
	State           string    `gorm:"column:state;size:16;index"`
	Phone           string    `gorm:"column:phone;size:32"`
	PartySize       int       `gorm:"column:party_size"`
	Notes           string    `gorm:"column:notes;size:255"`
}

func (reservationRecord) TableName() string { return "reservations" }

type productRecord struct {
	ID       int64           `gorm:"primaryKey;column:id"`
	Name     string          `gorm:"column:name;size:128"`
	Price    decimal.Decimal `gorm:"column:price;type:decimal(12,2)"`
	Stock    int             `gorm:"column:stock"`
	Category string          `gorm:"column:category;size:64"`
}

func (productRecord) TableName() string { return "products" }

// Stock movements are append-only; settlement_id groups the rows of one settlement attempt.
type stockMovementRecord struct {
	ID            int64     `gorm:"primaryKey;column:id"`
	ProductID     int64     `gorm:"column:product_id;index"`
	Kind          string    `gorm:"column:kind;size:16"`
	Quantity      int       `gorm:"column:quantity"`
	PreviousStock int       `gorm:"column:previous_stock"`
	NewStock      int       `gorm:"column:new_stock"`
	UserID        string    `gorm:"column:user_id;size:64"`
	OrderID       int64     `gorm:"column:order_id;index"`
	SettlementID  string    `gorm:"column:settlement_id;size:64;index"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (stockMovementRecord) TableName() string { return "stock_movements" }
