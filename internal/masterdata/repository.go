package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steelforge-erp/steelforge/internal/shared"
	"github.com/steelforge-erp/steelforge/internal/stock"
)

// Repository persists master data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertMaterial(ctx context.Context, m Material) (int64, error)
	InsertProduct(ctx context.Context, p Product) (int64, error)
	InsertWarehouse(ctx context.Context, w Warehouse) (int64, error)
	InsertThirdParty(ctx context.Context, tp ThirdParty) (int64, error)
	GetOrCreateDefaultWarehouse(ctx context.Context) (Warehouse, error)
	Stock() stock.TxStore
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("masterdata repository not initialised")
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

// Materials lists materials newest first.
func (r *Repository) Materials(ctx context.Context) ([]Material, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, material_type, thickness, width, length, min_stock, created_at
FROM materials ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	materials := []Material{}
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Thickness, &m.Width, &m.Length, &m.MinStock, &m.CreatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// GetMaterial fetches one material.
func (r *Repository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	var m Material
	err := r.pool.QueryRow(ctx, `SELECT id, name, material_type, thickness, width, length, min_stock, created_at
FROM materials WHERE id=$1`, id).Scan(&m.ID, &m.Name, &m.Type, &m.Thickness, &m.Width, &m.Length, &m.MinStock, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, shared.ErrNotFound
		}
		return Material{}, err
	}
	return m, nil
}

// DeleteMaterial removes the material row.
func (r *Repository) DeleteMaterial(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM materials WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Products lists products by name.
func (r *Repository) Products(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, price, created_at FROM products ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Warehouses lists warehouses oldest first.
func (r *Repository) Warehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(address, ''), created_at FROM warehouses ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	warehouses := []Warehouse{}
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Address, &w.CreatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

// FirstWarehouse returns the oldest warehouse, or shared.ErrNotFound.
func (r *Repository) FirstWarehouse(ctx context.Context) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(address, ''), created_at FROM warehouses ORDER BY created_at ASC, id ASC LIMIT 1`).
		Scan(&w.ID, &w.Name, &w.Address, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.ErrNotFound
		}
		return Warehouse{}, err
	}
	return w, nil
}

// GetThirdParty fetches one third party.
func (r *Repository) GetThirdParty(ctx context.Context, id int64) (ThirdParty, error) {
	var tp ThirdParty
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''), is_customer, is_supplier, created_at
FROM third_parties WHERE id=$1`, id).
		Scan(&tp.ID, &tp.Name, &tp.Email, &tp.Phone, &tp.Address, &tp.IsCustomer, &tp.IsSupplier, &tp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ThirdParty{}, shared.ErrNotFound
		}
		return ThirdParty{}, err
	}
	return tp, nil
}

// ThirdParties lists parties, optionally restricted to customers or suppliers.
func (r *Repository) ThirdParties(ctx context.Context, customersOnly, suppliersOnly bool) ([]ThirdParty, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''), is_customer, is_supplier, created_at
FROM third_parties
WHERE (NOT $1 OR is_customer) AND (NOT $2 OR is_supplier)
ORDER BY name ASC`, customersOnly, suppliersOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	parties := []ThirdParty{}
	for rows.Next() {
		var tp ThirdParty
		if err := rows.Scan(&tp.ID, &tp.Name, &tp.Email, &tp.Phone, &tp.Address, &tp.IsCustomer, &tp.IsSupplier, &tp.CreatedAt); err != nil {
			return nil, err
		}
		parties = append(parties, tp)
	}
	return parties, rows.Err()
}

func (r *txRepository) InsertMaterial(ctx context.Context, m Material) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO materials (name, material_type, thickness, width, length, min_stock, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`, m.Name, m.Type, m.Thickness, m.Width, m.Length, m.MinStock).Scan(&id)
	return id, err
}

func (r *txRepository) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO products (name, description, price, created_at)
VALUES ($1,$2,$3,NOW()) RETURNING id`, p.Name, p.Description, p.Price).Scan(&id)
	return id, err
}

func (r *txRepository) InsertWarehouse(ctx context.Context, w Warehouse) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO warehouses (name, address, created_at)
VALUES ($1, NULLIF($2, ''), NOW()) RETURNING id`, w.Name, w.Address).Scan(&id)
	return id, err
}

func (r *txRepository) InsertThirdParty(ctx context.Context, tp ThirdParty) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO third_parties (name, email, phone, address, is_customer, is_supplier, created_at)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), $5, $6, NOW()) RETURNING id`,
		tp.Name, tp.Email, tp.Phone, tp.Address, tp.IsCustomer, tp.IsSupplier).Scan(&id)
	return id, err
}

func (r *txRepository) GetOrCreateDefaultWarehouse(ctx context.Context) (Warehouse, error) {
	var w Warehouse
	err := r.tx.QueryRow(ctx, `SELECT id, name, COALESCE(address, ''), created_at FROM warehouses ORDER BY created_at ASC, id ASC LIMIT 1`).
		Scan(&w.ID, &w.Name, &w.Address, &w.CreatedAt)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, err
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO warehouses (name, address, created_at) VALUES ($1, $2, NOW()) RETURNING id`,
		DefaultWarehouseName, "Default Location").Scan(&w.ID)
	if err != nil {
		return Warehouse{}, err
	}
	w.Name = DefaultWarehouseName
	w.Address = "Default Location"
	return w, nil
}

func (r *txRepository) Stock() stock.TxStore {
	return stock.NewTxStore(r.tx)
}
