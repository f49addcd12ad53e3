package production

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steelforge-erp/steelforge/internal/shared"
	"github.com/steelforge-erp/steelforge/internal/stock"
)

// memoryLedger is an in-memory stock.TxStore for consumption tests.
type memoryLedger struct {
	records   map[int64]*stock.Record
	movements []stock.Movement
	nextID    int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: make(map[int64]*stock.Record), nextID: 1}
}

func (l *memoryLedger) seed(materialID, warehouseID int64, lot, serial *string, qty int64) *stock.Record {
	rec := &stock.Record{
		ID:           l.nextID,
		MaterialID:   materialID,
		WarehouseID:  warehouseID,
		LotNumber:    lot,
		SerialNumber: serial,
		Quantity:     qty,
	}
	l.nextID++
	l.records[rec.ID] = rec
	return rec
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (l *memoryLedger) GetRecordForUpdate(ctx context.Context, key stock.RecordKey) (stock.Record, error) {
	for _, rec := range l.records {
		if rec.MaterialID == key.Item.MaterialID && rec.ProductID == key.Item.ProductID &&
			rec.WarehouseID == key.WarehouseID && sameRef(rec.LotNumber, key.LotNumber) && sameRef(rec.SerialNumber, key.SerialNumber) {
			return *rec, nil
		}
	}
	return stock.Record{}, stock.ErrRecordNotFound
}

func (l *memoryLedger) CreateRecord(ctx context.Context, key stock.RecordKey) (stock.Record, error) {
	rec := l.seed(key.Item.MaterialID, key.WarehouseID, key.LotNumber, key.SerialNumber, 0)
	rec.ProductID = key.Item.ProductID
	return *rec, nil
}

func (l *memoryLedger) UpdateRecordQuantity(ctx context.Context, recordID, quantity int64) error {
	rec, ok := l.records[recordID]
	if !ok {
		return stock.ErrRecordNotFound
	}
	rec.Quantity = quantity
	return nil
}

func (l *memoryLedger) InsertMovement(ctx context.Context, m stock.Movement) (int64, error) {
	id := l.nextID
	l.nextID++
	m.ID = id
	m.CreatedAt = time.Now()
	l.movements = append(l.movements, m)
	return id, nil
}

func (l *memoryLedger) BestRecordForUpdate(ctx context.Context, materialID int64, lot, serial *string) (stock.Record, error) {
	var best *stock.Record
	for _, rec := range l.records {
		if rec.MaterialID != materialID || rec.Quantity <= 0 {
			continue
		}
		if lot != nil && !sameRef(rec.LotNumber, lot) {
			continue
		}
		if serial != nil && !sameRef(rec.SerialNumber, serial) {
			continue
		}
		if best == nil || rec.Quantity > best.Quantity || (rec.Quantity == best.Quantity && rec.ID < best.ID) {
			best = rec
		}
	}
	if best == nil {
		return stock.Record{}, stock.ErrRecordNotFound
	}
	return *best, nil
}

func (l *memoryLedger) RecordByKeyForUpdate(ctx context.Context, key stock.RecordKey) (stock.Record, error) {
	return l.GetRecordForUpdate(ctx, key)
}

// memoryRepo is an in-memory RepositoryPort and TxRepository.
type memoryRepo struct {
	jobs          map[int64]*Job
	consumptions  []Consumption
	bomItems      map[int64][]BOMItem
	routings      map[int64]*Routing
	materialNames map[int64]string
	ledger        *memoryLedger
	nextID        int64
}

func newMemoryRepo(ledger *memoryLedger) *memoryRepo {
	return &memoryRepo{
		jobs:          make(map[int64]*Job),
		bomItems:      make(map[int64][]BOMItem),
		routings:      make(map[int64]*Routing),
		materialNames: map[int64]string{1: "Steel Sheet 2mm", 2: "Aluminium Plate", 3: "Copper Rod"},
		ledger:        ledger,
		nextID:        1,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Jobs(ctx context.Context) ([]Job, error) {
	out := []Job{}
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (r *memoryRepo) GetJob(ctx context.Context, id int64) (Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, shared.ErrNotFound
	}
	return *j, nil
}

func (r *memoryRepo) DeleteJob(ctx context.Context, id int64) error {
	if _, ok := r.jobs[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

func (r *memoryRepo) Consumptions(ctx context.Context, jobID int64) ([]Consumption, error) {
	out := []Consumption{}
	for _, c := range r.consumptions {
		if c.JobID == jobID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryRepo) BOMItems(ctx context.Context, productID int64) ([]BOMItem, error) {
	return r.bomItems[productID], nil
}

func (r *memoryRepo) RoutingForProduct(ctx context.Context, productID int64) (Routing, error) {
	routing, ok := r.routings[productID]
	if !ok {
		return Routing{}, shared.ErrNotFound
	}
	return *routing, nil
}

func (r *memoryRepo) Routings(ctx context.Context) ([]Routing, error) {
	out := []Routing{}
	for _, routing := range r.routings {
		out = append(out, *routing)
	}
	return out, nil
}

func (r *memoryRepo) MaterialName(ctx context.Context, id int64) (string, error) {
	name, ok := r.materialNames[id]
	if !ok {
		return "", shared.ErrNotFound
	}
	return name, nil
}

func (r *memoryRepo) InsertJob(ctx context.Context, j Job) (int64, error) {
	id := r.nextID
	r.nextID++
	j.ID = id
	j.CreatedAt = time.Now()
	r.jobs[id] = &j
	return id, nil
}

func (r *memoryRepo) InsertOperation(ctx context.Context, op Operation) (int64, error) {
	id := r.nextID
	r.nextID++
	op.ID = id
	job := r.jobs[op.JobID]
	job.Operations = append(job.Operations, op)
	return id, nil
}

func (r *memoryRepo) GetJobForUpdate(ctx context.Context, id int64) (Job, error) {
	return r.GetJob(ctx, id)
}

func (r *memoryRepo) SetJobStatus(ctx context.Context, id int64, status JobStatus) error {
	j, ok := r.jobs[id]
	if !ok {
		return shared.ErrNotFound
	}
	j.Status = status
	return nil
}

func (r *memoryRepo) InsertConsumption(ctx context.Context, c Consumption) (int64, error) {
	id := r.nextID
	r.nextID++
	c.ID = id
	c.CreatedAt = time.Now()
	r.consumptions = append(r.consumptions, c)
	return id, nil
}

func (r *memoryRepo) ReplaceBOM(ctx context.Context, productID int64, items []BOMItem) error {
	r.bomItems[productID] = items
	return nil
}

func (r *memoryRepo) ReplaceRouting(ctx context.Context, productID int64, steps []string) error {
	routing, ok := r.routings[productID]
	if !ok {
		routing = &Routing{ID: r.nextID, ProductID: productID}
		r.nextID++
		r.routings[productID] = routing
	}
	routing.Steps = nil
	for i, name := range steps {
		r.nextID++
		routing.Steps = append(routing.Steps, RoutingStep{ID: r.nextID, RoutingID: routing.ID, Seq: i + 1, Name: name})
	}
	return nil
}

func (r *memoryRepo) Stock() stock.TxStore { return r.ledger }

func strPtr(s string) *string { return &s }

// testStock backs availability lookups with the in-memory ledger while
// delegating debits to the real adjustment primitive.
type testStock struct {
	*stock.Service
	ledger *memoryLedger
}

func (t testStock) TotalForMaterial(ctx context.Context, materialID int64) (int64, error) {
	var total int64
	for _, rec := range t.ledger.records {
		if rec.MaterialID == materialID {
			total += rec.Quantity
		}
	}
	return total, nil
}

func newTestService(repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stockSvc := stock.NewService(nil, nil, stock.ServiceConfig{AllowNegativeStock: true})
	return NewService(logger, repo, testStock{Service: stockSvc, ledger: repo.ledger}, nil)
}

func seedJob(repo *memoryRepo, status JobStatus) int64 {
	id, _ := repo.InsertJob(context.Background(), Job{JobNumber: "JOB-1", Quantity: 5, Status: status})
	return id
}

func TestConsumeDebitsLargestRecord(t *testing.T) {
	ledger := newMemoryLedger()
	small := ledger.seed(1, 1, strPtr("LOT-A"), nil, 30)
	big := ledger.seed(1, 1, strPtr("LOT-B"), nil, 50)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)
	jobID := seedJob(repo, JobInProgress)

	c, err := svc.Consume(context.Background(), ConsumeInput{JobID: jobID, MaterialID: 1, Quantity: 20})
	require.NoError(t, err)
	require.Equal(t, int64(50-20), ledger.records[big.ID].Quantity)
	require.Equal(t, int64(30), ledger.records[small.ID].Quantity)
	require.Equal(t, "LOT-B", *c.LotNumber)

	require.Len(t, ledger.movements, 1)
	mv := ledger.movements[0]
	require.Equal(t, stock.MovementOut, mv.Type)
	require.Equal(t, fmt.Sprintf("Used in Job %d", jobID), mv.Reason)
}

func TestConsumeExactLotMatch(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(1, 1, strPtr("LOT-A"), nil, 30)
	big := ledger.seed(1, 1, strPtr("LOT-B"), nil, 50)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)
	jobID := seedJob(repo, JobInProgress)

	c, err := svc.Consume(context.Background(), ConsumeInput{JobID: jobID, MaterialID: 1, Quantity: 10, LotNumber: "LOT-A"})
	require.NoError(t, err)
	require.Equal(t, "LOT-A", *c.LotNumber)
	require.Equal(t, int64(50), ledger.records[big.ID].Quantity)
}

func TestConsumeInsufficientNamesMaterial(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(1, 1, nil, nil, 5)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)
	jobID := seedJob(repo, JobInProgress)

	_, err := svc.Consume(context.Background(), ConsumeInput{JobID: jobID, MaterialID: 1, Quantity: 10})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.Contains(t, err.Error(), "Steel Sheet 2mm")
	require.Empty(t, ledger.movements)
	require.Empty(t, repo.consumptions)
}

func TestConsumeRejectedForCompletedJob(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(1, 1, nil, nil, 100)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)
	jobID := seedJob(repo, JobCompleted)

	_, err := svc.Consume(context.Background(), ConsumeInput{JobID: jobID, MaterialID: 1, Quantity: 1})
	require.ErrorIs(t, err, ErrJobCompleted)
	require.Empty(t, ledger.movements)
}

func TestConsumeRejectedForCancelledJob(t *testing.T) {
	ledger := newMemoryLedger()
	rec := ledger.seed(1, 1, nil, nil, 100)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)
	jobID := seedJob(repo, JobCancelled)

	_, err := svc.Consume(context.Background(), ConsumeInput{JobID: jobID, MaterialID: 1, Quantity: 1})
	require.ErrorIs(t, err, ErrJobCancelled)
	require.Empty(t, ledger.movements)
	require.Equal(t, int64(100), ledger.records[rec.ID].Quantity)

	_, err = svc.ConsumeBatch(context.Background(), jobID, []ConsumeInput{{MaterialID: 1, Quantity: 1}}, 0)
	require.ErrorIs(t, err, ErrJobCancelled)
	require.Empty(t, ledger.movements)
	require.Empty(t, repo.consumptions)
}

func TestConsumeBatchFailsFastOnShortLine(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(1, 1, nil, nil, 100)
	ledger.seed(2, 1, nil, nil, 100)
	short := ledger.seed(3, 1, nil, nil, 2)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)
	jobID := seedJob(repo, JobInProgress)

	lines := []ConsumeInput{
		{MaterialID: 1, Quantity: 10},
		{MaterialID: 2, Quantity: 10},
		{MaterialID: 3, Quantity: 5},
		{MaterialID: 1, Quantity: 10},
		{MaterialID: 2, Quantity: 10},
	}
	_, err := svc.ConsumeBatch(context.Background(), jobID, lines, 0)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.Contains(t, err.Error(), "line 3")
	require.Contains(t, err.Error(), "Copper Rod")

	// nothing was debited and no consumption was recorded
	require.Empty(t, ledger.movements)
	require.Empty(t, repo.consumptions)
	require.Equal(t, int64(2), ledger.records[short.ID].Quantity)
}

func TestConsumeBatchCumulativeDemandOnOneRecord(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(1, 1, nil, nil, 15)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)
	jobID := seedJob(repo, JobInProgress)

	lines := []ConsumeInput{
		{MaterialID: 1, Quantity: 10},
		{MaterialID: 1, Quantity: 10},
	}
	_, err := svc.ConsumeBatch(context.Background(), jobID, lines, 0)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.Contains(t, err.Error(), "line 2")
}

func TestConsumeBatchDebitsAllLines(t *testing.T) {
	ledger := newMemoryLedger()
	a := ledger.seed(1, 1, nil, nil, 100)
	b := ledger.seed(2, 1, nil, nil, 40)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)
	jobID := seedJob(repo, JobInProgress)

	consumptions, err := svc.ConsumeBatch(context.Background(), jobID, []ConsumeInput{
		{MaterialID: 1, Quantity: 25},
		{MaterialID: 2, Quantity: 40},
	}, 0)
	require.NoError(t, err)
	require.Len(t, consumptions, 2)
	require.Equal(t, int64(75), ledger.records[a.ID].Quantity)
	require.Equal(t, int64(0), ledger.records[b.ID].Quantity)
	require.Len(t, ledger.movements, 2)
	for _, mv := range ledger.movements {
		require.Equal(t, fmt.Sprintf("Batch Used in Job %d", jobID), mv.Reason)
	}
	for _, c := range consumptions {
		require.Equal(t, jobID, c.JobID)
	}
}

func TestCreateJobAppliesDefaultRouting(t *testing.T) {
	repo := newMemoryRepo(newMemoryLedger())
	svc := newTestService(repo)

	job, err := svc.CreateJob(context.Background(), CreateJobInput{JobNumber: "JOB-77", Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, JobPlanned, job.Status)
	require.Len(t, job.Operations, 3)
	require.Equal(t, "CUT", job.Operations[0].Name)
	require.Equal(t, "BEND", job.Operations[1].Name)
	require.Equal(t, "WELD", job.Operations[2].Name)
}

func TestCreateJobInheritsProductRouting(t *testing.T) {
	repo := newMemoryRepo(newMemoryLedger())
	svc := newTestService(repo)

	_, err := svc.SetRouting(context.Background(), 10, []string{"LASER", "DEBURR", "PAINT"})
	require.NoError(t, err)

	job, err := svc.CreateJob(context.Background(), CreateJobInput{JobNumber: "JOB-80", ProductID: 10, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, job.Operations, 3)
	require.Equal(t, "LASER", job.Operations[0].Name)
	require.Equal(t, "DEBURR", job.Operations[1].Name)
	require.Equal(t, "PAINT", job.Operations[2].Name)

	// explicit operations still win over the routing
	job, err = svc.CreateJob(context.Background(), CreateJobInput{JobNumber: "JOB-81", ProductID: 10, Quantity: 2, Operations: []string{"CUT"}})
	require.NoError(t, err)
	require.Len(t, job.Operations, 1)
	require.Equal(t, "CUT", job.Operations[0].Name)
}

func TestSetRoutingReplacesSteps(t *testing.T) {
	repo := newMemoryRepo(newMemoryLedger())
	svc := newTestService(repo)

	_, err := svc.SetRouting(context.Background(), 10, []string{"CUT", "WELD"})
	require.NoError(t, err)
	routing, err := svc.SetRouting(context.Background(), 10, []string{"LASER"})
	require.NoError(t, err)
	require.Len(t, routing.Steps, 1)
	require.Equal(t, "LASER", routing.Steps[0].Name)
	require.Equal(t, 1, routing.Steps[0].Seq)

	_, err = svc.SetRouting(context.Background(), 10, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetBOMReplacesExistingLines(t *testing.T) {
	repo := newMemoryRepo(newMemoryLedger())
	repo.bomItems[10] = []BOMItem{{ProductID: 10, MaterialID: 3, Quantity: 9}}
	svc := newTestService(repo)

	bom, err := svc.SetBOM(context.Background(), 10, []BOMItemInput{
		{MaterialID: 1, Quantity: 4},
		{MaterialID: 2, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, bom, 2)
	require.Equal(t, int64(1), bom[0].MaterialID)
	require.Equal(t, int64(4), bom[0].Quantity)
}

func TestSetBOMRejectsUnknownMaterial(t *testing.T) {
	repo := newMemoryRepo(newMemoryLedger())
	svc := newTestService(repo)

	_, err := svc.SetBOM(context.Background(), 10, []BOMItemInput{{MaterialID: 99, Quantity: 4}})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.bomItems[10])
}

func TestRequirementsScaleByJobQuantity(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(1, 1, nil, nil, 12)
	ledger.seed(1, 2, nil, nil, 3)
	repo := newMemoryRepo(ledger)
	repo.bomItems[10] = []BOMItem{
		{ProductID: 10, MaterialID: 1, Quantity: 4},
		{ProductID: 10, MaterialID: 2, Quantity: 1},
	}
	svc := newTestService(repo)

	jobID, _ := repo.InsertJob(context.Background(), Job{JobNumber: "JOB-9", ProductID: 10, Quantity: 5, Status: JobPlanned})
	requirements, err := svc.Requirements(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, []Requirement{
		{MaterialID: 1, Quantity: 20, Available: 15},
		{MaterialID: 2, Quantity: 5, Available: 0},
	}, requirements)
}
