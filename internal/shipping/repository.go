package shipping

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steelforge-erp/steelforge/internal/shared"
	"github.com/steelforge-erp/steelforge/internal/stock"
)

// Repository persists shipments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertShipment(ctx context.Context, sh Shipment) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error)
	SetStatus(ctx context.Context, id int64, status Status, tracking string, markShipped bool) error
	Lines(ctx context.Context, shipmentID int64) ([]Line, error)
	Stock() stock.TxStore
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("shipping repository not initialised")
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

// Shipments lists shipments newest first with their lines.
func (r *Repository) Shipments(ctx context.Context) ([]Shipment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, customer_id, status, COALESCE(tracking_number,''), created_at, shipped_at
FROM shipments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	shipments := []Shipment{}
	for rows.Next() {
		var sh Shipment
		if err := rows.Scan(&sh.ID, &sh.OrderID, &sh.CustomerID, &sh.Status, &sh.TrackingNumber, &sh.CreatedAt, &sh.ShippedAt); err != nil {
			return nil, err
		}
		shipments = append(shipments, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range shipments {
		lines, err := r.lines(ctx, shipments[i].ID)
		if err != nil {
			return nil, err
		}
		shipments[i].Lines = lines
	}
	return shipments, nil
}

// GetShipment fetches one shipment with lines.
func (r *Repository) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	var sh Shipment
	err := r.pool.QueryRow(ctx, `SELECT id, order_id, customer_id, status, COALESCE(tracking_number,''), created_at, shipped_at
FROM shipments WHERE id=$1`, id).Scan(&sh.ID, &sh.OrderID, &sh.CustomerID, &sh.Status, &sh.TrackingNumber, &sh.CreatedAt, &sh.ShippedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, shared.ErrNotFound
		}
		return Shipment{}, err
	}
	sh.Lines, err = r.lines(ctx, id)
	return sh, err
}

// OrderCustomer resolves the third party behind a sales order, for the
// customer check at shipment creation.
func (r *Repository) OrderCustomer(ctx context.Context, orderID int64) (int64, bool, error) {
	var partyID int64
	var isCustomer bool
	err := r.pool.QueryRow(ctx, `SELECT o.third_party_id, tp.is_customer
FROM orders o JOIN third_parties tp ON tp.id = o.third_party_id
WHERE o.id=$1`, orderID).Scan(&partyID, &isCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, shared.ErrNotFound
		}
		return 0, false, err
	}
	return partyID, isCustomer, nil
}

func (r *Repository) lines(ctx context.Context, shipmentID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, shipment_id, COALESCE(product_id,0), quantity, COALESCE(warehouse_id,0), lot_number, serial_number
FROM shipment_lines WHERE shipment_id=$1 ORDER BY id ASC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.ShipmentID, &line.ProductID, &line.Quantity, &line.WarehouseID, &line.LotNumber, &line.SerialNumber); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) InsertShipment(ctx context.Context, sh Shipment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO shipments (order_id, customer_id, status, tracking_number, created_at)
VALUES ($1,$2,$3,NULLIF($4,''),NOW()) RETURNING id`,
		sh.OrderID, sh.CustomerID, sh.Status, sh.TrackingNumber).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO shipment_lines (shipment_id, product_id, quantity, warehouse_id, lot_number, serial_number)
VALUES ($1, NULLIF($2,0), $3, NULLIF($4,0), $5, $6) RETURNING id`,
		line.ShipmentID, line.ProductID, line.Quantity, line.WarehouseID, line.LotNumber, line.SerialNumber).Scan(&id)
	return id, err
}

func (r *txRepository) GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error) {
	var sh Shipment
	err := r.tx.QueryRow(ctx, `SELECT id, order_id, customer_id, status, COALESCE(tracking_number,''), created_at, shipped_at
FROM shipments WHERE id=$1 FOR UPDATE`, id).Scan(&sh.ID, &sh.OrderID, &sh.CustomerID, &sh.Status, &sh.TrackingNumber, &sh.CreatedAt, &sh.ShippedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, shared.ErrNotFound
		}
		return Shipment{}, err
	}
	return sh, nil
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status, tracking string, markShipped bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE shipments
SET status=$2,
    tracking_number=COALESCE(NULLIF($3,''), tracking_number),
    shipped_at=CASE WHEN $4 THEN NOW() ELSE shipped_at END
WHERE id=$1`, id, status, tracking, markShipped)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) Lines(ctx context.Context, shipmentID int64) ([]Line, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, shipment_id, COALESCE(product_id,0), quantity, COALESCE(warehouse_id,0), lot_number, serial_number
FROM shipment_lines WHERE shipment_id=$1 ORDER BY id ASC`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.ShipmentID, &line.ProductID, &line.Quantity, &line.WarehouseID, &line.LotNumber, &line.SerialNumber); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) Stock() stock.TxStore {
	return stock.NewTxStore(r.tx)
}
