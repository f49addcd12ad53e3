package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/steelforge-erp/steelforge/internal/shared"
)

// Repository persists invoices and payments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	SetInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("billing repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Invoices lists invoices newest first with their paid totals.
func (r *Repository) Invoices(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.invoice_number, COALESCE(i.order_id,0), i.third_party_id, i.status, i.total, i.due_date, i.created_at,
       COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.invoice_id = i.id), 0)
FROM invoices i ORDER BY i.created_at DESC, i.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := []Invoice{}
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.OrderID, &inv.ThirdPartyID, &inv.Status, &inv.Total, &inv.DueDate, &inv.CreatedAt, &inv.Paid); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// GetInvoice fetches one invoice with its payments.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	err := r.pool.QueryRow(ctx, `SELECT id, invoice_number, COALESCE(order_id,0), third_party_id, status, total, due_date, created_at
FROM invoices WHERE id=$1`, id).Scan(&inv.ID, &inv.InvoiceNumber, &inv.OrderID, &inv.ThirdPartyID, &inv.Status, &inv.Total, &inv.DueDate, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, amount, COALESCE(method,''), paid_at
FROM payments WHERE invoice_id=$1 ORDER BY paid_at ASC, id ASC`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	inv.Paid = decimal.Zero
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.PaidAt); err != nil {
			return Invoice{}, err
		}
		inv.Payments = append(inv.Payments, p)
		inv.Paid = inv.Paid.Add(p.Amount)
	}
	return inv, rows.Err()
}

// OrderTotal resolves an order's total and party for invoice creation.
func (r *Repository) OrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, int64, error) {
	var total decimal.Decimal
	var partyID int64
	err := r.pool.QueryRow(ctx, `SELECT total, third_party_id FROM orders WHERE id=$1`, orderID).Scan(&total, &partyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, 0, shared.ErrNotFound
		}
		return decimal.Zero, 0, err
	}
	return total, partyID, nil
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (invoice_number, order_id, third_party_id, status, total, due_date, created_at)
VALUES ($1, NULLIF($2,0), $3, $4, $5, $6, NOW()) RETURNING id`,
		inv.InvoiceNumber, inv.OrderID, inv.ThirdPartyID, inv.Status, inv.Total, inv.DueDate).Scan(&id)
	return id, err
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	err := r.tx.QueryRow(ctx, `SELECT id, invoice_number, COALESCE(order_id,0), third_party_id, status, total, due_date, created_at
FROM invoices WHERE id=$1 FOR UPDATE`, id).Scan(&inv.ID, &inv.InvoiceNumber, &inv.OrderID, &inv.ThirdPartyID, &inv.Status, &inv.Total, &inv.DueDate, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payments (invoice_id, amount, method, paid_at)
VALUES ($1, $2, NULLIF($3,''), COALESCE($4, NOW())) RETURNING id`,
		p.InvoiceID, p.Amount, p.Method, nullTime(p.PaidAt)).Scan(&id)
	return id, err
}

func (r *txRepository) SumPayments(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id=$1`, invoiceID).Scan(&sum)
	return sum, err
}

func (r *txRepository) SetInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
