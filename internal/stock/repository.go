package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock records and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxStore exposes the transactional operations of the ledger. Any package
// that mutates stock obtains a TxStore bound to its own transaction via
// NewTxStore, so record update and movement append commit or roll back
// together with the caller's writes.
type TxStore interface {
	GetRecordForUpdate(ctx context.Context, key RecordKey) (Record, error)
	CreateRecord(ctx context.Context, key RecordKey) (Record, error)
	UpdateRecordQuantity(ctx context.Context, recordID, quantity int64) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	BestRecordForUpdate(ctx context.Context, materialID int64, lot, serial *string) (Record, error)
	RecordByKeyForUpdate(ctx context.Context, key RecordKey) (Record, error)
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an open transaction in a TxStore.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	store := &txStore{tx: tx}
	if err := fn(ctx, store); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// MaterialExists reports whether the material row exists.
func (r *Repository) MaterialExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM materials WHERE id=$1)`, id)
}

// ProductExists reports whether the product row exists.
func (r *Repository) ProductExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`, id)
}

// WarehouseExists reports whether the warehouse row exists.
func (r *Repository) WarehouseExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE id=$1)`, id)
}

func (r *Repository) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Records lists stock records matching the filter.
func (r *Repository) Records(ctx context.Context, filter RecordFilter) ([]Record, error) {
	query := `SELECT id, material_id, product_id, warehouse_id, lot_number, serial_number, quantity, updated_at
FROM stock_records
WHERE ($1 = 0 OR material_id = $1)
  AND ($2 = 0 OR product_id = $2)
  AND ($3 = 0 OR warehouse_id = $3)
  AND (NOT $4 OR quantity > 0)
ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, filter.MaterialID, filter.ProductID, filter.WarehouseID, filter.OnlyPositive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Movements lists ledger rows matching the filter, oldest first.
func (r *Repository) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT id, material_id, product_id, warehouse_id, movement_type, quantity, reason, lot_number, serial_number, created_at
FROM stock_movements
WHERE ($1 = 0 OR material_id = $1)
  AND ($2 = 0 OR product_id = $2)
  AND ($3 = 0 OR warehouse_id = $3)
  AND created_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $6`
	rows, err := r.pool.Query(ctx, query, filter.MaterialID, filter.ProductID, filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var materialID, productID, warehouseID *int64
		if err := rows.Scan(&m.ID, &materialID, &productID, &warehouseID, &m.Type, &m.Quantity, &m.Reason, &m.LotNumber, &m.SerialNumber, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.MaterialID = deref(materialID)
		m.ProductID = deref(productID)
		m.WarehouseID = deref(warehouseID)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// TotalForMaterial sums all stock record quantities for a material.
func (r *Repository) TotalForMaterial(ctx context.Context, materialID int64) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_records WHERE material_id=$1`, materialID).Scan(&total)
	return total, err
}

// TotalForProduct sums all stock record quantities for a product.
func (r *Repository) TotalForProduct(ctx context.Context, productID int64) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_records WHERE product_id=$1`, productID).Scan(&total)
	return total, err
}

const recordColumns = `id, material_id, product_id, warehouse_id, lot_number, serial_number, quantity, updated_at`

func (s *txStore) GetRecordForUpdate(ctx context.Context, key RecordKey) (Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_records
WHERE material_id IS NOT DISTINCT FROM $1
  AND product_id IS NOT DISTINCT FROM $2
  AND warehouse_id = $3
  AND lot_number IS NOT DISTINCT FROM $4
  AND serial_number IS NOT DISTINCT FROM $5
FOR UPDATE`, recordColumns)
	row := s.tx.QueryRow(ctx, query, nullID(key.Item.MaterialID), nullID(key.Item.ProductID), key.WarehouseID, key.LotNumber, key.SerialNumber)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// RecordByKeyForUpdate is GetRecordForUpdate without auto-create semantics
// attached at the service layer; fulfillment uses it to skip missing tuples.
func (s *txStore) RecordByKeyForUpdate(ctx context.Context, key RecordKey) (Record, error) {
	return s.GetRecordForUpdate(ctx, key)
}

func (s *txStore) CreateRecord(ctx context.Context, key RecordKey) (Record, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_records (material_id, product_id, warehouse_id, lot_number, serial_number, quantity, updated_at)
VALUES ($1,$2,$3,$4,$5,0,NOW()) RETURNING id`,
		nullID(key.Item.MaterialID), nullID(key.Item.ProductID), key.WarehouseID, key.LotNumber, key.SerialNumber).Scan(&id)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:           id,
		MaterialID:   key.Item.MaterialID,
		ProductID:    key.Item.ProductID,
		WarehouseID:  key.WarehouseID,
		LotNumber:    key.LotNumber,
		SerialNumber: key.SerialNumber,
	}, nil
}

func (s *txStore) UpdateRecordQuantity(ctx context.Context, recordID, quantity int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE stock_records SET quantity=$2, updated_at=NOW() WHERE id=$1`, recordID, quantity)
	return err
}

func (s *txStore) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_movements (material_id, product_id, warehouse_id, movement_type, quantity, reason, lot_number, serial_number, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		nullID(m.MaterialID), nullID(m.ProductID), nullID(m.WarehouseID), string(m.Type), m.Quantity, m.Reason, m.LotNumber, m.SerialNumber).Scan(&id)
	return id, err
}

// BestRecordForUpdate picks the consumption candidate for a material: the
// positive-quantity record with the most stock, constrained to exact lot or
// serial when those are given (nil means no constraint).
func (s *txStore) BestRecordForUpdate(ctx context.Context, materialID int64, lot, serial *string) (Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_records
WHERE material_id = $1
  AND quantity > 0
  AND ($2::text IS NULL OR lot_number IS NOT DISTINCT FROM $2)
  AND ($3::text IS NULL OR serial_number IS NOT DISTINCT FROM $3)
ORDER BY quantity DESC, id ASC
LIMIT 1
FOR UPDATE`, recordColumns)
	row := s.tx.QueryRow(ctx, query, materialID, lot, serial)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var materialID, productID *int64
	if err := row.Scan(&rec.ID, &materialID, &productID, &rec.WarehouseID, &rec.LotNumber, &rec.SerialNumber, &rec.Quantity, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.MaterialID = deref(materialID)
	rec.ProductID = deref(productID)
	return rec, nil
}

func nullID(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
