package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	_ "github.com/steelforge-erp/steelforge/internal/testing/guard"
)

func TestMarkAlertedDeduplicatesWithinTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	job := &LowStockScanJob{Redis: rdb}
	ctx := context.Background()

	fresh, err := job.markAlerted(ctx, 42, time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = job.markAlerted(ctx, 42, time.Minute)
	require.NoError(t, err)
	require.False(t, fresh, "second alert inside the TTL must be suppressed")

	// another material is independent
	fresh, err = job.markAlerted(ctx, 43, time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)

	// after the TTL the same material alerts again
	mr.FastForward(2 * time.Minute)
	fresh, err = job.markAlerted(ctx, 42, time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)
}

func TestMarkAlertedWithoutRedisAlwaysAlerts(t *testing.T) {
	job := &LowStockScanJob{}
	fresh, err := job.markAlerted(context.Background(), 1, time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)
}

func TestTaskConstructorsCarryType(t *testing.T) {
	task, err := NewLowStockScanTask(LowStockScanPayload{AlertTTLMinutes: 30})
	require.NoError(t, err)
	require.Equal(t, TaskLowStockScan, task.Type())

	task, err = NewLedgerIntegrityTask(LedgerIntegrityPayload{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, TaskLedgerIntegrity, task.Type())
}
