package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/steelforge-erp/steelforge/internal/jobs"
)

const defaultAlertTTL = 6 * time.Hour

// LowStockScanJob reports materials whose derived on-hand total fell
// below their minimum stock level. Redis deduplicates alerts so a cron
// running every few minutes does not page for the same material forever.
type LowStockScanJob struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob wires dependencies for the scan handler.
func NewLowStockScanJob(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Pool: pool, Redis: rdb, Logger: logger, Metrics: metrics}
}

type lowStockRow struct {
	MaterialID int64
	Name       string
	MinStock   int64
	OnHand     int64
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	ttl := defaultAlertTTL
	if payload.AlertTTLMinutes > 0 {
		ttl = time.Duration(payload.AlertTTLMinutes) * time.Minute
	}

	tracker := j.metrics().Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	rows, err := j.scan(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("low stock scan", slog.Any("error", err))
		return resultErr
	}

	alerted := 0
	for _, row := range rows {
		fresh, err := j.markAlerted(ctx, row.MaterialID, ttl)
		if err != nil {
			resultErr = err
			return resultErr
		}
		if !fresh {
			continue
		}
		alerted++
		j.logger().Warn("material below minimum stock",
			slog.Int64("material_id", row.MaterialID),
			slog.String("name", row.Name),
			slog.Int64("on_hand", row.OnHand),
			slog.Int64("min_stock", row.MinStock))
	}
	j.metrics().AddLowStockAlerts(alerted)
	j.logger().Info("low stock scan finished", slog.Int("below_minimum", len(rows)), slog.Int("alerted", alerted))
	return resultErr
}

func (j *LowStockScanJob) scan(ctx context.Context) ([]lowStockRow, error) {
	rows, err := j.Pool.Query(ctx, `SELECT m.id, m.name, m.min_stock, COALESCE(SUM(r.quantity), 0) AS on_hand
FROM materials m
LEFT JOIN stock_records r ON r.material_id = m.id
WHERE m.min_stock > 0
GROUP BY m.id, m.name, m.min_stock
HAVING COALESCE(SUM(r.quantity), 0) < m.min_stock
ORDER BY m.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []lowStockRow{}
	for rows.Next() {
		var row lowStockRow
		if err := rows.Scan(&row.MaterialID, &row.Name, &row.MinStock, &row.OnHand); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// markAlerted returns true when no alert for this material is live yet.
func (j *LowStockScanJob) markAlerted(ctx context.Context, materialID int64, ttl time.Duration) (bool, error) {
	if j.Redis == nil {
		return true, nil
	}
	key := fmt.Sprintf("jobs:low_stock:%d", materialID)
	return j.Redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
