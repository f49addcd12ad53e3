package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steelforge-erp/steelforge/internal/shared"
	"github.com/steelforge-erp/steelforge/internal/stock"
)

// Repository persists orders and quotes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	InsertQuote(ctx context.Context, q Quote) (int64, error)
	InsertQuoteItem(ctx context.Context, quoteID int64, item Item) (int64, error)
	GetOrCreateDefaultWarehouseID(ctx context.Context) (int64, error)
	Stock() stock.TxStore
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("orders repository not initialised")
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

// Orders lists orders of one type, newest first.
func (r *Repository) Orders(ctx context.Context, orderType OrderType) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_number, order_type, third_party_id, status, total, created_at
FROM orders WHERE ($1 = '' OR order_type = $1) ORDER BY created_at DESC, id DESC`, string(orderType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.Type, &o.ThirdPartyID, &o.Status, &o.Total, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := r.items(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

// GetOrder fetches one order with items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, `SELECT id, order_number, order_type, third_party_id, status, total, created_at
FROM orders WHERE id=$1`, id).Scan(&o.ID, &o.OrderNumber, &o.Type, &o.ThirdPartyID, &o.Status, &o.Total, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.ErrNotFound
		}
		return Order{}, err
	}
	o.Items, err = r.items(ctx, id)
	return o, err
}

func (r *Repository) items(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, COALESCE(material_id,0), COALESCE(product_id,0), quantity, unit_price
FROM order_items WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MaterialID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MaterialExists reports whether a material row exists.
func (r *Repository) MaterialExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM materials WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

// ProductExists reports whether a product row exists.
func (r *Repository) ProductExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`, id).Scan(&ok)
	return ok, err
}

// PartyRoles reports whether the third party is a customer and a supplier.
func (r *Repository) PartyRoles(ctx context.Context, id int64) (isCustomer, isSupplier bool, err error) {
	err = r.pool.QueryRow(ctx, `SELECT is_customer, is_supplier FROM third_parties WHERE id=$1`, id).Scan(&isCustomer, &isSupplier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, shared.ErrNotFound
		}
		return false, false, err
	}
	return isCustomer, isSupplier, nil
}

// Quotes lists quotes newest first.
func (r *Repository) Quotes(ctx context.Context) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, quote_number, third_party_id, status, total, created_at
FROM quotes ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	quotes := []Quote{}
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.ID, &q.QuoteNumber, &q.ThirdPartyID, &q.Status, &q.Total, &q.CreatedAt); err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func (r *txRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (order_number, order_type, third_party_id, status, total, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		o.OrderNumber, o.Type, o.ThirdPartyID, o.Status, o.Total).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO order_items (order_id, material_id, product_id, quantity, unit_price)
VALUES ($1, NULLIF($2,0), NULLIF($3,0), $4, $5) RETURNING id`,
		item.OrderID, item.MaterialID, item.ProductID, item.Quantity, item.UnitPrice).Scan(&id)
	return id, err
}

func (r *txRepository) InsertQuote(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO quotes (quote_number, third_party_id, status, total, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`, q.QuoteNumber, q.ThirdPartyID, q.Status, q.Total).Scan(&id)
	return id, err
}

func (r *txRepository) InsertQuoteItem(ctx context.Context, quoteID int64, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO quote_items (quote_id, product_id, quantity, unit_price)
VALUES ($1,$2,$3,$4) RETURNING id`, quoteID, item.ProductID, item.Quantity, item.UnitPrice).Scan(&id)
	return id, err
}

func (r *txRepository) GetOrCreateDefaultWarehouseID(ctx context.Context) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM warehouses ORDER BY created_at ASC, id ASC LIMIT 1`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO warehouses (name, address, created_at) VALUES ('Main Warehouse', 'Default Location', NOW()) RETURNING id`).Scan(&id)
	return id, err
}

func (r *txRepository) Stock() stock.TxStore {
	return stock.NewTxStore(r.tx)
}
