package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/steelforge-erp/steelforge/internal/shared"
)

type memoryRepo struct {
	invoices map[int64]*Invoice
	payments []Payment
	orders   map[int64]orderInfo
	nextID   int64
}

type orderInfo struct {
	total   decimal.Decimal
	partyID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices: make(map[int64]*Invoice),
		orders:   map[int64]orderInfo{100: {total: decimal.NewFromInt(200), partyID: 7}},
		nextID:   1,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Invoices(ctx context.Context) ([]Invoice, error) {
	out := []Invoice{}
	for _, inv := range r.invoices {
		out = append(out, *inv)
	}
	return out, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	out := *inv
	out.Paid = decimal.Zero
	out.Payments = nil
	for _, p := range r.payments {
		if p.InvoiceID == id {
			out.Payments = append(out.Payments, p)
			out.Paid = out.Paid.Add(p.Amount)
		}
	}
	return out, nil
}

func (r *memoryRepo) OrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, int64, error) {
	info, ok := r.orders[orderID]
	if !ok {
		return decimal.Zero, 0, shared.ErrNotFound
	}
	return info.total, info.partyID, nil
}

func (r *memoryRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	id := r.nextID
	r.nextID++
	inv.ID = id
	inv.CreatedAt = time.Now()
	r.invoices[id] = &inv
	return id, nil
}

func (r *memoryRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	return *inv, nil
}

func (r *memoryRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	id := r.nextID
	r.nextID++
	p.ID = id
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now()
	}
	r.payments = append(r.payments, p)
	return id, nil
}

func (r *memoryRepo) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (r *memoryRepo) SetInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	inv, ok := r.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.Status = status
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo, nil)
}

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func createInvoice(t *testing.T, svc *Service) Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{InvoiceNumber: "INV-1", OrderID: 100})
	require.NoError(t, err)
	require.Equal(t, InvoiceDraft, inv.Status)
	require.True(t, inv.Total.Equal(amount("200")))
	return inv
}

func TestPartialPaymentDerivesPartiallyPaid(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := createInvoice(t, svc)

	paid, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: inv.ID, Amount: amount("80"), Method: "BANK"})
	require.NoError(t, err)
	require.Equal(t, InvoicePartiallyPaid, paid.Status)
	require.True(t, paid.Paid.Equal(amount("80")))
}

func TestFullSettlementDerivesPaid(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := createInvoice(t, svc)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: inv.ID, Amount: amount("80")})
	require.NoError(t, err)
	paid, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: inv.ID, Amount: amount("120")})
	require.NoError(t, err)
	require.Equal(t, InvoicePaid, paid.Status)
	require.True(t, paid.Paid.Equal(amount("200")))
	require.Len(t, paid.Payments, 2)
}

func TestOverpaymentRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := createInvoice(t, svc)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: inv.ID, Amount: amount("250")})
	require.ErrorIs(t, err, ErrOverpayment)
	require.Empty(t, repo.payments)
	require.Equal(t, InvoiceDraft, repo.invoices[inv.ID].Status)
}

func TestNonPositiveAmountRejected(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: 1, Amount: amount("0")})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPaymentAgainstCancelledInvoiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	inv := createInvoice(t, svc)
	repo.invoices[inv.ID].Status = InvoiceCancelled

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{InvoiceID: inv.ID, Amount: amount("10")})
	require.ErrorIs(t, err, ErrInvoiceCancelled)
}
