package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steelforge-erp/steelforge/internal/shared"
)

// InvoiceStatus enumerates the invoice lifecycle. PARTIALLY_PAID and
// PAID are derived from the registered payments, never set directly.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "DRAFT"
	InvoiceSent          InvoiceStatus = "SENT"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaid          InvoiceStatus = "PAID"
	InvoiceCancelled     InvoiceStatus = "CANCELLED"
)

// Invoice bills a third party for an order.
type Invoice struct {
	ID            int64
	InvoiceNumber string
	OrderID       int64
	ThirdPartyID  int64
	Status        InvoiceStatus
	Total         decimal.Decimal
	Paid          decimal.Decimal
	DueDate       *time.Time
	Payments      []Payment
	CreatedAt     time.Time
}

// Payment is one partial or full settlement of an invoice.
type Payment struct {
	ID        int64
	InvoiceID int64
	Amount    decimal.Decimal
	Method    string
	PaidAt    time.Time
}

var (
	// ErrInvoiceCancelled rejects payments against a cancelled invoice.
	ErrInvoiceCancelled = fmt.Errorf("billing: invoice cancelled: %w", shared.ErrConflict)
	// ErrInvalidAmount rejects non-positive payment amounts.
	ErrInvalidAmount = fmt.Errorf("billing: payment amount must be positive: %w", shared.ErrValidation)
	// ErrOverpayment rejects payments beyond the open balance.
	ErrOverpayment = fmt.Errorf("billing: payment exceeds open balance: %w", shared.ErrConflict)
)
