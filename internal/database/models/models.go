package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ComponentsUsed maps a component category ("lids", "bottles", "labels") to a
// human-readable description of what a batch consumed, e.g. "blue: 10".
type ComponentsUsed map[string]string

func (m *ComponentsUsed) Scan(value interface{}) error {
	if value == nil {
		*m = ComponentsUsed{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("failed to scan ComponentsUsed: %v", value)
	}
}

func (m ComponentsUsed) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

type RecipeIngredient struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
}

// IngredientList stores a recipe's ordered ingredients as a JSON column.
type IngredientList []RecipeIngredient

func (l *IngredientList) Scan(value interface{}) error {
	if value == nil {
		*l = IngredientList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("failed to scan IngredientList: %v", value)
	}
}

func (l IngredientList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

type Product struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string          `gorm:"size:128;not null" json:"name"`
	Size         string          `gorm:"size:32" json:"size"`
	CurrentStock int             `gorm:"not null;default:0" json:"current_stock"`
	LidColor     string          `gorm:"size:32" json:"lid_color"`
	BottleType   string          `gorm:"size:32" json:"bottle_type"`
	Price        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	Description  string          `gorm:"type:text" json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Component struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Category    string          `gorm:"size:32;not null;uniqueIndex:idx_components_key" json:"category"`
	Type        string          `gorm:"size:64;not null;uniqueIndex:idx_components_key" json:"type"`
	Quantity    int             `gorm:"not null;default:0" json:"quantity"`
	AverageCost decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"average_cost"`
	TotalValue  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_value"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ComponentPurchase is an append-only ledger entry; past rows never mutate.
type ComponentPurchase struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ComponentID  int64           `gorm:"index;not null" json:"component_id"`
	PurchaseDate string          `gorm:"size:10;not null" json:"purchase_date"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	TotalPaid    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_paid"`
	CostPerUnit  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost_per_unit"`
	CreatedAt    time.Time       `json:"created_at"`

	Component *Component `gorm:"foreignKey:ComponentID" json:"component,omitempty"`
}

type Recipe struct {
	ID                int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID         int64          `gorm:"uniqueIndex;not null" json:"product_id"`
	Ingredients       IngredientList `gorm:"type:text" json:"ingredients"`
	OriginalBatchSize float64        `gorm:"not null;default:0" json:"original_batch_size"`
	TotalRecipeWeight float64        `gorm:"not null;default:0" json:"total_recipe_weight"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

type SalesEvent struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EventDate    string          `gorm:"size:10;index;not null" json:"event_date"`
	EventName    string          `gorm:"size:128;not null" json:"event_name"`
	TotalRevenue decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_revenue"`
	Notes        string          `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Items []SalesItem `gorm:"foreignKey:SalesEventID" json:"items,omitempty"`
}

type SalesItem struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SalesEventID  int64           `gorm:"index;not null" json:"sales_event_id"`
	ProductID     int64           `gorm:"not null" json:"product_id"`
	ProductName   string          `gorm:"size:160" json:"product_name"`
	StartingStock int             `gorm:"not null;default:0" json:"starting_stock"`
	EndingStock   *int            `json:"ending_stock"`
	QuantitySold  int             `gorm:"not null;default:0" json:"quantity_sold"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ProductionBatch records one production run. product_name is a snapshot taken
// at batch time so history survives later product renames.
type ProductionBatch struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductionDate string         `gorm:"size:10;index;not null" json:"production_date"`
	ProductID      int64          `gorm:"index;not null" json:"product_id"`
	ProductName    string         `gorm:"size:160" json:"product_name"`
	QuantityMade   int            `gorm:"not null" json:"quantity_made"`
	ComponentsUsed ComponentsUsed `gorm:"type:text" json:"components_used"`
	Notes          string         `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (ProductionBatch) TableName() string {
	return "production_history"
}

// DashboardNote is a singleton; the one row lives at NoteSingletonID.
type DashboardNote struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Content   string    `gorm:"type:text" json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

const NoteSingletonID int64 = 1

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Product{},
		&Component{},
		&ComponentPurchase{},
		&Recipe{},
		&SalesEvent{},
		&SalesItem{},
		&ProductionBatch{},
		&DashboardNote{},
	)
}
