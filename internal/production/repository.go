package production

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steelforge-erp/steelforge/internal/shared"
	"github.com/steelforge-erp/steelforge/internal/stock"
)

// Repository persists jobs, operations and consumptions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	InsertJob(ctx context.Context, j Job) (int64, error)
	InsertOperation(ctx context.Context, op Operation) (int64, error)
	GetJobForUpdate(ctx context.Context, id int64) (Job, error)
	SetJobStatus(ctx context.Context, id int64, status JobStatus) error
	InsertConsumption(ctx context.Context, c Consumption) (int64, error)
	ReplaceBOM(ctx context.Context, productID int64, items []BOMItem) error
	ReplaceRouting(ctx context.Context, productID int64, steps []string) error
	Stock() stock.TxStore
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("production repository not initialised")
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

// Jobs lists jobs newest first, operations included.
func (r *Repository) Jobs(ctx context.Context) ([]Job, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, job_number, COALESCE(description,''), COALESCE(product_id,0), quantity, status, created_at
FROM jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := []Job{}
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.JobNumber, &j.Description, &j.ProductID, &j.Quantity, &j.Status, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range jobs {
		ops, err := r.operations(ctx, jobs[i].ID)
		if err != nil {
			return nil, err
		}
		jobs[i].Operations = ops
	}
	return jobs, nil
}

// GetJob fetches one job with operations.
func (r *Repository) GetJob(ctx context.Context, id int64) (Job, error) {
	var j Job
	err := r.pool.QueryRow(ctx, `SELECT id, job_number, COALESCE(description,''), COALESCE(product_id,0), quantity, status, created_at
FROM jobs WHERE id=$1`, id).Scan(&j.ID, &j.JobNumber, &j.Description, &j.ProductID, &j.Quantity, &j.Status, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, shared.ErrNotFound
		}
		return Job{}, err
	}
	j.Operations, err = r.operations(ctx, id)
	return j, err
}

func (r *Repository) operations(ctx context.Context, jobID int64) ([]Operation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, job_id, seq, name FROM job_operations WHERE job_id=$1 ORDER BY seq ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ops := []Operation{}
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.JobID, &op.Seq, &op.Name); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// DeleteJob removes a job and its dependent rows.
func (r *Repository) DeleteJob(ctx context.Context, id int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM job_operations WHERE job_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM job_consumptions WHERE job_id=$1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return tx.Commit(ctx)
}

// Consumptions lists material debits for one job, oldest first.
func (r *Repository) Consumptions(ctx context.Context, jobID int64) ([]Consumption, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, job_id, material_id, quantity, lot_number, serial_number, created_at
FROM job_consumptions WHERE job_id=$1 ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	consumptions := []Consumption{}
	for rows.Next() {
		var c Consumption
		if err := rows.Scan(&c.ID, &c.JobID, &c.MaterialID, &c.Quantity, &c.LotNumber, &c.SerialNumber, &c.CreatedAt); err != nil {
			return nil, err
		}
		consumptions = append(consumptions, c)
	}
	return consumptions, rows.Err()
}

// BOMItems lists the bill of materials for one product.
func (r *Repository) BOMItems(ctx context.Context, productID int64) ([]BOMItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, material_id, quantity FROM bom_items WHERE product_id=$1 ORDER BY id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []BOMItem{}
	for rows.Next() {
		var it BOMItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.MaterialID, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// RoutingForProduct fetches the product's routing with its steps.
func (r *Repository) RoutingForProduct(ctx context.Context, productID int64) (Routing, error) {
	var routing Routing
	err := r.pool.QueryRow(ctx, `SELECT id, product_id, created_at FROM routings WHERE product_id=$1`, productID).
		Scan(&routing.ID, &routing.ProductID, &routing.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Routing{}, shared.ErrNotFound
		}
		return Routing{}, err
	}
	routing.Steps, err = r.routingSteps(ctx, routing.ID)
	return routing, err
}

// Routings lists all routings with their steps.
func (r *Repository) Routings(ctx context.Context) ([]Routing, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, created_at FROM routings ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	routings := []Routing{}
	for rows.Next() {
		var routing Routing
		if err := rows.Scan(&routing.ID, &routing.ProductID, &routing.CreatedAt); err != nil {
			return nil, err
		}
		routings = append(routings, routing)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range routings {
		routings[i].Steps, err = r.routingSteps(ctx, routings[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return routings, nil
}

func (r *Repository) routingSteps(ctx context.Context, routingID int64) ([]RoutingStep, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, routing_id, seq, name FROM routing_steps WHERE routing_id=$1 ORDER BY seq ASC`, routingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	steps := []RoutingStep{}
	for rows.Next() {
		var step RoutingStep
		if err := rows.Scan(&step.ID, &step.RoutingID, &step.Seq, &step.Name); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// MaterialName resolves a material's display name for error messages.
func (r *Repository) MaterialName(ctx context.Context, id int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM materials WHERE id=$1`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return name, nil
}

func (r *txRepository) InsertJob(ctx context.Context, j Job) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO jobs (job_number, description, product_id, quantity, status, created_at)
VALUES ($1, NULLIF($2,''), NULLIF($3,0), $4, $5, NOW()) RETURNING id`,
		j.JobNumber, j.Description, j.ProductID, j.Quantity, j.Status).Scan(&id)
	return id, err
}

func (r *txRepository) InsertOperation(ctx context.Context, op Operation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO job_operations (job_id, seq, name) VALUES ($1,$2,$3) RETURNING id`,
		op.JobID, op.Seq, op.Name).Scan(&id)
	return id, err
}

func (r *txRepository) GetJobForUpdate(ctx context.Context, id int64) (Job, error) {
	var j Job
	err := r.tx.QueryRow(ctx, `SELECT id, job_number, COALESCE(description,''), COALESCE(product_id,0), quantity, status, created_at
FROM jobs WHERE id=$1 FOR UPDATE`, id).Scan(&j.ID, &j.JobNumber, &j.Description, &j.ProductID, &j.Quantity, &j.Status, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, shared.ErrNotFound
		}
		return Job{}, err
	}
	return j, nil
}

func (r *txRepository) SetJobStatus(ctx context.Context, id int64, status JobStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE jobs SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertConsumption(ctx context.Context, c Consumption) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO job_consumptions (job_id, material_id, quantity, lot_number, serial_number, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		c.JobID, c.MaterialID, c.Quantity, c.LotNumber, c.SerialNumber).Scan(&id)
	return id, err
}

func (r *txRepository) ReplaceBOM(ctx context.Context, productID int64, items []BOMItem) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM bom_items WHERE product_id=$1`, productID); err != nil {
		return err
	}
	for _, it := range items {
		_, err := r.tx.Exec(ctx, `INSERT INTO bom_items (product_id, material_id, quantity) VALUES ($1,$2,$3)`,
			productID, it.MaterialID, it.Quantity)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) ReplaceRouting(ctx context.Context, productID int64, steps []string) error {
	var routingID int64
	err := r.tx.QueryRow(ctx, `INSERT INTO routings (product_id, created_at) VALUES ($1, NOW())
ON CONFLICT (product_id) DO UPDATE SET product_id=EXCLUDED.product_id RETURNING id`, productID).Scan(&routingID)
	if err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM routing_steps WHERE routing_id=$1`, routingID); err != nil {
		return err
	}
	for i, name := range steps {
		_, err := r.tx.Exec(ctx, `INSERT INTO routing_steps (routing_id, seq, name) VALUES ($1,$2,$3)`,
			routingID, i+1, name)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) Stock() stock.TxStore {
	return stock.NewTxStore(r.tx)
}
