package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan scans materials that fell below their minimum level.
	TaskLowStockScan = "stock:low_stock_scan"
	// TaskLedgerIntegrity verifies record quantities against movement history.
	TaskLedgerIntegrity = "stock:ledger_integrity"
)

// LowStockScanPayload configures one low stock scan run.
type LowStockScanPayload struct {
	// AlertTTLMinutes suppresses repeat alerts for the same material
	// within the window. Zero picks the default.
	AlertTTLMinutes int `json:"alert_ttl_minutes"`
}

// NewLowStockScanTask constructs the scan task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// LedgerIntegrityPayload configures one integrity run.
type LedgerIntegrityPayload struct {
	// Limit caps reported drifting records per run. Zero picks the default.
	Limit int `json:"limit"`
}

// NewLedgerIntegrityTask constructs the integrity task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}
