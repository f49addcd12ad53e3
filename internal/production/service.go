package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/steelforge-erp/steelforge/internal/shared"
	"github.com/steelforge-erp/steelforge/internal/stock"
)

// RepositoryPort is implemented by Repository.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Jobs(ctx context.Context) ([]Job, error)
	GetJob(ctx context.Context, id int64) (Job, error)
	DeleteJob(ctx context.Context, id int64) error
	Consumptions(ctx context.Context, jobID int64) ([]Consumption, error)
	BOMItems(ctx context.Context, productID int64) ([]BOMItem, error)
	RoutingForProduct(ctx context.Context, productID int64) (Routing, error)
	Routings(ctx context.Context) ([]Routing, error)
	MaterialName(ctx context.Context, id int64) (string, error)
}

// StockPort applies ledger debits inside the job transaction and
// answers availability questions for the requirements preview.
type StockPort interface {
	ApplyTx(ctx context.Context, tx stock.TxStore, input stock.AdjustInput) (stock.Movement, error)
	TotalForMaterial(ctx context.Context, materialID int64) (int64, error)
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns production jobs and their material consumption.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	stock  StockPort
	audit  AuditPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, stockSvc StockPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, stock: stockSvc, audit: audit}
}

// CreateJobInput carries the fields for a new job. When Operations is
// empty the product's routing is used, falling back to the default
// cut/bend/weld sequence.
type CreateJobInput struct {
	JobNumber   string
	Description string
	ProductID   int64
	Quantity    int64
	Operations  []string
}

// CreateJob inserts a job in PLANNED state with its routed operations.
func (s *Service) CreateJob(ctx context.Context, input CreateJobInput) (Job, error) {
	if input.Quantity <= 0 {
		return Job{}, stock.ErrInvalidQuantity
	}
	steps := input.Operations
	if len(steps) == 0 {
		steps = DefaultRouting
		if input.ProductID != 0 {
			routing, err := s.repo.RoutingForProduct(ctx, input.ProductID)
			switch {
			case err == nil && len(routing.Steps) > 0:
				steps = routing.Names()
			case err != nil && !errors.Is(err, shared.ErrNotFound):
				return Job{}, err
			}
		}
	}
	number := input.JobNumber
	if number == "" {
		number = shared.NewDocumentNumber("JOB")
	}
	var jobID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertJob(ctx, Job{
			JobNumber:   number,
			Description: input.Description,
			ProductID:   input.ProductID,
			Quantity:    input.Quantity,
			Status:      JobPlanned,
		})
		if err != nil {
			return err
		}
		jobID = id
		for i, name := range steps {
			if _, err := tx.InsertOperation(ctx, Operation{JobID: id, Seq: i + 1, Name: name}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	return s.repo.GetJob(ctx, jobID)
}

// UpdateStatus moves a job to the given status.
func (s *Service) UpdateStatus(ctx context.Context, jobID int64, status JobStatus) (Job, error) {
	if !status.Valid() {
		return Job{}, ErrInvalidStatus
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetJobForUpdate(ctx, jobID); err != nil {
			return err
		}
		return tx.SetJobStatus(ctx, jobID, status)
	})
	if err != nil {
		return Job{}, err
	}
	return s.repo.GetJob(ctx, jobID)
}

// Jobs lists all jobs.
func (s *Service) Jobs(ctx context.Context) ([]Job, error) {
	return s.repo.Jobs(ctx)
}

// GetJob fetches one job.
func (s *Service) GetJob(ctx context.Context, id int64) (Job, error) {
	return s.repo.GetJob(ctx, id)
}

// DeleteJob removes a job. Consumed stock is not returned; the ledger
// keeps the history.
func (s *Service) DeleteJob(ctx context.Context, id int64) error {
	return s.repo.DeleteJob(ctx, id)
}

// Consumptions lists a job's material debits.
func (s *Service) Consumptions(ctx context.Context, jobID int64) ([]Consumption, error) {
	return s.repo.Consumptions(ctx, jobID)
}

// Requirements scales the product's bill of materials by the job
// quantity.
func (s *Service) Requirements(ctx context.Context, jobID int64) ([]Requirement, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ProductID == 0 {
		return []Requirement{}, nil
	}
	items, err := s.repo.BOMItems(ctx, job.ProductID)
	if err != nil {
		return nil, err
	}
	requirements := make([]Requirement, 0, len(items))
	for _, it := range items {
		available, err := s.stock.TotalForMaterial(ctx, it.MaterialID)
		if err != nil {
			return nil, err
		}
		requirements = append(requirements, Requirement{
			MaterialID: it.MaterialID,
			Quantity:   it.Quantity * job.Quantity,
			Available:  available,
		})
	}
	return requirements, nil
}

// BOMItemInput is one requested bill-of-materials line.
type BOMItemInput struct {
	MaterialID int64
	Quantity   int64
}

// SetBOM replaces the product's bill of materials. Existing lines are
// dropped and the new set written in one transaction.
func (s *Service) SetBOM(ctx context.Context, productID int64, items []BOMItemInput) ([]BOMItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: bill of materials requires at least one line", shared.ErrValidation)
	}
	rows := make([]BOMItem, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, stock.ErrInvalidQuantity
		}
		if _, err := s.repo.MaterialName(ctx, it.MaterialID); err != nil {
			return nil, fmt.Errorf("material %d: %w", it.MaterialID, err)
		}
		rows = append(rows, BOMItem{ProductID: productID, MaterialID: it.MaterialID, Quantity: it.Quantity})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ReplaceBOM(ctx, productID, rows)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.BOMItems(ctx, productID)
}

// BOM lists the product's bill of materials.
func (s *Service) BOM(ctx context.Context, productID int64) ([]BOMItem, error) {
	return s.repo.BOMItems(ctx, productID)
}

// SetRouting replaces the product's routing steps in one transaction.
// Subsequent jobs for the product inherit the new sequence.
func (s *Service) SetRouting(ctx context.Context, productID int64, steps []string) (Routing, error) {
	if len(steps) == 0 {
		return Routing{}, fmt.Errorf("%w: routing requires at least one step", shared.ErrValidation)
	}
	for _, name := range steps {
		if name == "" {
			return Routing{}, fmt.Errorf("%w: routing step name required", shared.ErrValidation)
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ReplaceRouting(ctx, productID, steps)
	})
	if err != nil {
		return Routing{}, err
	}
	return s.repo.RoutingForProduct(ctx, productID)
}

// RoutingForProduct fetches the product's routing.
func (s *Service) RoutingForProduct(ctx context.Context, productID int64) (Routing, error) {
	return s.repo.RoutingForProduct(ctx, productID)
}

// Routings lists all routings.
func (s *Service) Routings(ctx context.Context) ([]Routing, error) {
	return s.repo.Routings(ctx)
}

// ConsumeInput debits one material against a job. Lot and serial narrow
// the record match; when absent the largest positive record wins.
type ConsumeInput struct {
	JobID        int64
	MaterialID   int64
	Quantity     int64
	LotNumber    string
	SerialNumber string
	ActorID      int64
}

// Consume debits one material line against a job, transactionally with
// the consumption row.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (Consumption, error) {
	var consumption Consumption
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, input.JobID)
		if err != nil {
			return err
		}
		if err := consumable(job); err != nil {
			return err
		}
		c, err := s.consumeLine(ctx, tx, job, input, fmt.Sprintf("Used in Job %d", job.ID))
		if err != nil {
			return err
		}
		consumption = c
		return nil
	})
	if err != nil {
		return Consumption{}, err
	}
	s.recordAudit(ctx, input.ActorID, "production:consume", consumption)
	return consumption, nil
}

// ConsumeBatch debits several material lines atomically. All records are
// locked and validated before any debit, so a failing line rolls the
// whole batch back. The returned error names the offending line.
func (s *Service) ConsumeBatch(ctx context.Context, jobID int64, lines []ConsumeInput, actorID int64) ([]Consumption, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyBatch
	}
	consumptions := make([]Consumption, 0, len(lines))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if err := consumable(job); err != nil {
			return err
		}
		// Lock and validate every line first. Cumulative demand per
		// record matters when two lines hit the same tuple.
		ledger := tx.Stock()
		needed := map[int64]int64{}
		matched := make([]stock.Record, len(lines))
		for i, line := range lines {
			if line.Quantity <= 0 {
				return fmt.Errorf("line %d: %w", i+1, stock.ErrInvalidQuantity)
			}
			rec, err := ledger.BestRecordForUpdate(ctx, line.MaterialID, stock.NormalizeRef(line.LotNumber), stock.NormalizeRef(line.SerialNumber))
			if err != nil {
				if errors.Is(err, stock.ErrRecordNotFound) {
					return s.insufficientErr(ctx, i+1, line.MaterialID)
				}
				return err
			}
			needed[rec.ID] += line.Quantity
			if needed[rec.ID] > rec.Quantity {
				return s.insufficientErr(ctx, i+1, line.MaterialID)
			}
			matched[i] = rec
		}
		reason := fmt.Sprintf("Batch Used in Job %d", job.ID)
		for i, line := range lines {
			line.JobID = job.ID
			c, err := s.debit(ctx, tx, matched[i], line, reason)
			if err != nil {
				return err
			}
			consumptions = append(consumptions, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, c := range consumptions {
		s.recordAudit(ctx, actorID, "production:consume_batch", c)
	}
	return consumptions, nil
}

// consumable rejects debits against jobs that left the active part of
// the lifecycle.
func consumable(job Job) error {
	switch job.Status {
	case JobCompleted:
		return ErrJobCompleted
	case JobCancelled:
		return ErrJobCancelled
	}
	return nil
}

// consumeLine locks the best matching record, validates availability and
// debits it.
func (s *Service) consumeLine(ctx context.Context, tx TxRepository, job Job, input ConsumeInput, reason string) (Consumption, error) {
	if input.Quantity <= 0 {
		return Consumption{}, stock.ErrInvalidQuantity
	}
	rec, err := tx.Stock().BestRecordForUpdate(ctx, input.MaterialID, stock.NormalizeRef(input.LotNumber), stock.NormalizeRef(input.SerialNumber))
	if err != nil {
		if errors.Is(err, stock.ErrRecordNotFound) {
			return Consumption{}, s.insufficientErr(ctx, 0, input.MaterialID)
		}
		return Consumption{}, err
	}
	if rec.Quantity < input.Quantity {
		return Consumption{}, s.insufficientErr(ctx, 0, input.MaterialID)
	}
	return s.debit(ctx, tx, rec, input, reason)
}

// debit posts the OUT movement against the matched record's tuple and
// records the consumption row.
func (s *Service) debit(ctx context.Context, tx TxRepository, rec stock.Record, input ConsumeInput, reason string) (Consumption, error) {
	_, err := s.stock.ApplyTx(ctx, tx.Stock(), stock.AdjustInput{
		Item:         stock.ItemRef{MaterialID: input.MaterialID},
		WarehouseID:  rec.WarehouseID,
		Type:         stock.MovementOut,
		Quantity:     input.Quantity,
		Reason:       reason,
		LotNumber:    derefStr(rec.LotNumber),
		SerialNumber: derefStr(rec.SerialNumber),
		ActorID:      input.ActorID,
	})
	if err != nil {
		return Consumption{}, err
	}
	c := Consumption{
		JobID:        input.JobID,
		MaterialID:   input.MaterialID,
		Quantity:     input.Quantity,
		LotNumber:    rec.LotNumber,
		SerialNumber: rec.SerialNumber,
	}
	id, err := tx.InsertConsumption(ctx, c)
	if err != nil {
		return Consumption{}, err
	}
	c.ID = id
	return c, nil
}

// insufficientErr builds the user-facing shortage error. Line zero means
// a single consumption rather than a batch position.
func (s *Service) insufficientErr(ctx context.Context, line int, materialID int64) error {
	name, err := s.repo.MaterialName(ctx, materialID)
	if err != nil {
		name = fmt.Sprintf("#%d", materialID)
	}
	if line > 0 {
		return fmt.Errorf("line %d: insufficient stock for material %q: %w", line, name, stock.ErrInsufficientStock)
	}
	return fmt.Errorf("insufficient stock for material %q: %w", name, stock.ErrInsufficientStock)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, c Consumption) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "job_consumption",
		EntityID: fmt.Sprintf("%d", c.ID),
		Meta: map[string]any{
			"job_id":      c.JobID,
			"material_id": c.MaterialID,
			"quantity":    c.Quantity,
		},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
