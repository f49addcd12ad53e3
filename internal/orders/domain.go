package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steelforge-erp/steelforge/internal/shared"
)

// OrderType splits sales from purchases.
type OrderType string

const (
	TypeSale     OrderType = "SALE"
	TypePurchase OrderType = "PURCHASE"
)

// OrderStatus enumerates the order lifecycle. Purchase orders are
// received immediately and land as COMPLETED.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Order is a sales or purchase order with its computed total. The total
// is always derived from the items server-side.
type Order struct {
	ID           int64
	OrderNumber  string
	Type         OrderType
	ThirdPartyID int64
	Status       OrderStatus
	Total        decimal.Decimal
	Items        []Item
	CreatedAt    time.Time
}

// Item is one order line. Exactly one of MaterialID and ProductID is
// set: purchase lines receive raw materials from a supplier, sales and
// quote lines price finished products.
type Item struct {
	ID         int64
	OrderID    int64
	MaterialID int64
	ProductID  int64
	Quantity   int64
	UnitPrice  decimal.Decimal
}

// LineTotal is quantity times unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// QuoteStatus enumerates quote states.
type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "DRAFT"
	QuoteSent     QuoteStatus = "SENT"
	QuoteAccepted QuoteStatus = "ACCEPTED"
	QuoteRejected QuoteStatus = "REJECTED"
)

// Quote is a priced offer to a customer. Accepting one is where a sales
// order usually starts.
type Quote struct {
	ID           int64
	QuoteNumber  string
	ThirdPartyID int64
	Status       QuoteStatus
	Total        decimal.Decimal
	Items        []Item
	CreatedAt    time.Time
}

var (
	// ErrNotSupplier rejects purchase orders against a party that is not a supplier.
	ErrNotSupplier = fmt.Errorf("orders: party is not a supplier: %w", shared.ErrValidation)
	// ErrNotCustomer rejects sales orders against a party that is not a customer.
	ErrNotCustomer = fmt.Errorf("orders: party is not a customer: %w", shared.ErrValidation)
	// ErrNoItems rejects an order without lines.
	ErrNoItems = fmt.Errorf("orders: order requires at least one item: %w", shared.ErrValidation)
	// ErrPurchaseNeedsMaterial rejects purchase lines that do not reference a material.
	ErrPurchaseNeedsMaterial = fmt.Errorf("orders: purchase lines must reference a material: %w", shared.ErrValidation)
	// ErrSaleNeedsProduct rejects sales and quote lines that do not reference a product.
	ErrSaleNeedsProduct = fmt.Errorf("orders: sales lines must reference a product: %w", shared.ErrValidation)
)
