package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/steelforge-erp/steelforge/internal/shared"
)

// RepositoryPort is implemented by Repository.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Invoices(ctx context.Context) ([]Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	OrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, int64, error)
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns invoices and payment settlement.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	audit  AuditPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, audit: audit}
}

// CreateInvoiceInput carries the fields for a new invoice. When OrderID
// is set the total and party come from the order.
type CreateInvoiceInput struct {
	InvoiceNumber string
	OrderID       int64
	ThirdPartyID  int64
	Total         decimal.Decimal
	DueDate       *time.Time
	ActorID       int64
}

// CreateInvoice opens an invoice in DRAFT.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	total := input.Total
	partyID := input.ThirdPartyID
	if input.OrderID != 0 {
		orderTotal, orderParty, err := s.repo.OrderTotal(ctx, input.OrderID)
		if err != nil {
			return Invoice{}, fmt.Errorf("order %d: %w", input.OrderID, err)
		}
		total = orderTotal
		partyID = orderParty
	}
	if total.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: total must be non-negative", shared.ErrValidation)
	}
	number := input.InvoiceNumber
	if number == "" {
		number = shared.NewDocumentNumber("INV")
	}
	invoice := Invoice{
		InvoiceNumber: number,
		OrderID:       input.OrderID,
		ThirdPartyID:  partyID,
		Status:        InvoiceDraft,
		Total:         total,
		Paid:          decimal.Zero,
		DueDate:       input.DueDate,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		invoice.ID = id
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return invoice, nil
}

// RegisterPaymentInput records a settlement against an invoice.
type RegisterPaymentInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
	Method    string
	ActorID   int64
}

// RegisterPayment books the payment and re-derives the invoice status in
// one transaction: the full balance settles to PAID, anything in between
// to PARTIALLY_PAID.
func (s *Service) RegisterPayment(ctx context.Context, input RegisterPaymentInput) (Invoice, error) {
	if !input.Amount.IsPositive() {
		return Invoice{}, ErrInvalidAmount
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceCancelled {
			return ErrInvoiceCancelled
		}
		paidSoFar, err := tx.SumPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		if paidSoFar.Add(input.Amount).GreaterThan(inv.Total) {
			return ErrOverpayment
		}
		if _, err := tx.InsertPayment(ctx, Payment{InvoiceID: inv.ID, Amount: input.Amount, Method: input.Method}); err != nil {
			return err
		}
		paid := paidSoFar.Add(input.Amount)
		status := InvoicePartiallyPaid
		if paid.GreaterThanOrEqual(inv.Total) {
			status = InvoicePaid
		}
		return tx.SetInvoiceStatus(ctx, inv.ID, status)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, input)
	return s.repo.GetInvoice(ctx, input.InvoiceID)
}

// Invoices lists invoices.
func (s *Service) Invoices(ctx context.Context) ([]Invoice, error) {
	return s.repo.Invoices(ctx)
}

// GetInvoice fetches one invoice with payments.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, input RegisterPaymentInput) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "billing:payment",
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", input.InvoiceID),
		Meta:     map[string]any{"amount": input.Amount.String(), "method": input.Method},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
