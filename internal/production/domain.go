package production

import (
	"fmt"
	"time"

	"github.com/steelforge-erp/steelforge/internal/shared"
)

// JobStatus enumerates the lifecycle of a production job.
type JobStatus string

const (
	JobPlanned    JobStatus = "PLANNED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobCancelled  JobStatus = "CANCELLED"
)

// Valid reports whether the status is a known value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPlanned, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// Job is a production order for a quantity of one product.
type Job struct {
	ID          int64
	JobNumber   string
	Description string
	ProductID   int64
	Quantity    int64
	Status      JobStatus
	Operations  []Operation
	CreatedAt   time.Time
}

// Operation is one routed step of a job.
type Operation struct {
	ID    int64
	JobID int64
	Seq   int
	Name  string
}

// Routing is a product's reusable operation sequence. Jobs created
// without explicit operations inherit its steps.
type Routing struct {
	ID        int64
	ProductID int64
	Steps     []RoutingStep
	CreatedAt time.Time
}

// RoutingStep is one ordered step of a routing.
type RoutingStep struct {
	ID        int64
	RoutingID int64
	Seq       int
	Name      string
}

// Names returns the step names in sequence order.
func (r Routing) Names() []string {
	names := make([]string, 0, len(r.Steps))
	for _, step := range r.Steps {
		names = append(names, step.Name)
	}
	return names
}

// DefaultRouting is applied when a job is created without explicit
// operations and its product carries no routing: sheet work is cut,
// bent, then welded.
var DefaultRouting = []string{"CUT", "BEND", "WELD"}

// Consumption records material debited against a job.
type Consumption struct {
	ID           int64
	JobID        int64
	MaterialID   int64
	Quantity     int64
	LotNumber    *string
	SerialNumber *string
	CreatedAt    time.Time
}

// BOMItem is one line of a product's bill of materials: the material
// quantity needed per unit of product.
type BOMItem struct {
	ID         int64
	ProductID  int64
	MaterialID int64
	Quantity   int64
}

// Requirement is a BOM line scaled by the job quantity.
type Requirement struct {
	MaterialID int64
	Quantity   int64
	// Available is the material's current on-hand total across all
	// warehouses, for previewing shortfalls before consuming.
	Available int64
}

var (
	// ErrJobCompleted rejects consumption against a finished job.
	ErrJobCompleted = fmt.Errorf("production: job already completed: %w", shared.ErrConflict)
	// ErrJobCancelled rejects consumption against a cancelled job.
	ErrJobCancelled = fmt.Errorf("production: job cancelled: %w", shared.ErrConflict)
	// ErrInvalidStatus indicates an unknown job status value.
	ErrInvalidStatus = fmt.Errorf("production: invalid job status: %w", shared.ErrValidation)
	// ErrEmptyBatch rejects a batch consumption with no lines.
	ErrEmptyBatch = fmt.Errorf("production: batch has no lines: %w", shared.ErrValidation)
)
