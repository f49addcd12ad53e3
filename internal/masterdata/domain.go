package masterdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Material is a raw or intermediate good tracked by sheet dimensions. Its
// on-hand quantity is never stored here; it is derived from stock records.
type Material struct {
	ID        int64
	Name      string
	Type      string
	Thickness float64
	Width     float64
	Length    float64
	MinStock  int64
	CreatedAt time.Time
}

// Product is a finished good.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	CreatedAt   time.Time
}

// Warehouse is a stock location.
type Warehouse struct {
	ID        int64
	Name      string
	Address   string
	CreatedAt time.Time
}

// ThirdParty is a customer, a supplier, or both.
type ThirdParty struct {
	ID         int64
	Name       string
	Email      string
	Phone      string
	Address    string
	IsCustomer bool
	IsSupplier bool
	CreatedAt  time.Time
}

// DefaultWarehouseName is created on demand when no warehouse exists yet.
const DefaultWarehouseName = "Main Warehouse"
