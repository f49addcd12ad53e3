package shipping

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

type memoryLedger struct {
	records   map[int64]*stock.Record
	movements []stock.Movement
	nextID    int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: make(map[int64]*stock.Record), nextID: 1}
}

func (l *memoryLedger) seed(productID, warehouseID int64, lot *string, qty int64) *stock.Record {
	rec := &stock.Record{ID: l.nextID, ProductID: productID, WarehouseID: warehouseID, LotNumber: lot, Quantity: qty}
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

func (l *memoryLedger) find(key stock.RecordKey) *stock.Record {
	for _, rec := range l.records {
		if rec.MaterialID == key.Item.MaterialID && rec.ProductID == key.Item.ProductID &&
			rec.WarehouseID == key.WarehouseID && sameRef(rec.LotNumber, key.LotNumber) && sameRef(rec.SerialNumber, key.SerialNumber) {
			return rec
		}
	}
	return nil
}

func (l *memoryLedger) GetRecordForUpdate(ctx context.Context, key stock.RecordKey) (stock.Record, error) {
	if rec := l.find(key); rec != nil {
		return *rec, nil
	}
	return stock.Record{}, stock.ErrRecordNotFound
}

func (l *memoryLedger) CreateRecord(ctx context.Context, key stock.RecordKey) (stock.Record, error) {
	rec := &stock.Record{
		ID:           l.nextID,
		MaterialID:   key.Item.MaterialID,
		ProductID:    key.Item.ProductID,
		WarehouseID:  key.WarehouseID,
		LotNumber:    key.LotNumber,
		SerialNumber: key.SerialNumber,
	}
	l.nextID++
	l.records[rec.ID] = rec
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
	l.movements = append(l.movements, m)
	return id, nil
}

func (l *memoryLedger) BestRecordForUpdate(ctx context.Context, materialID int64, lot, serial *string) (stock.Record, error) {
	return stock.Record{}, stock.ErrRecordNotFound
}

func (l *memoryLedger) RecordByKeyForUpdate(ctx context.Context, key stock.RecordKey) (stock.Record, error) {
	return l.GetRecordForUpdate(ctx, key)
}

type memoryRepo struct {
	shipments map[int64]*Shipment
	lines     map[int64][]Line
	orders    map[int64]orderInfo
	ledger    *memoryLedger
	nextID    int64
}

type orderInfo struct {
	partyID    int64
	isCustomer bool
}

func newMemoryRepo(ledger *memoryLedger) *memoryRepo {
	return &memoryRepo{
		shipments: make(map[int64]*Shipment),
		lines:     make(map[int64][]Line),
		orders:    map[int64]orderInfo{100: {partyID: 7, isCustomer: true}, 101: {partyID: 8, isCustomer: false}},
		ledger:    ledger,
		nextID:    1,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Shipments(ctx context.Context) ([]Shipment, error) {
	out := []Shipment{}
	for _, sh := range r.shipments {
		item := *sh
		item.Lines = r.lines[sh.ID]
		out = append(out, item)
	}
	return out, nil
}

func (r *memoryRepo) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	sh, ok := r.shipments[id]
	if !ok {
		return Shipment{}, shared.ErrNotFound
	}
	item := *sh
	item.Lines = r.lines[id]
	return item, nil
}

func (r *memoryRepo) OrderCustomer(ctx context.Context, orderID int64) (int64, bool, error) {
	info, ok := r.orders[orderID]
	if !ok {
		return 0, false, shared.ErrNotFound
	}
	return info.partyID, info.isCustomer, nil
}

func (r *memoryRepo) InsertShipment(ctx context.Context, sh Shipment) (int64, error) {
	id := r.nextID
	r.nextID++
	sh.ID = id
	sh.CreatedAt = time.Now()
	r.shipments[id] = &sh
	return id, nil
}

func (r *memoryRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	id := r.nextID
	r.nextID++
	line.ID = id
	r.lines[line.ShipmentID] = append(r.lines[line.ShipmentID], line)
	return id, nil
}

func (r *memoryRepo) GetShipmentForUpdate(ctx context.Context, id int64) (Shipment, error) {
	sh, ok := r.shipments[id]
	if !ok {
		return Shipment{}, shared.ErrNotFound
	}
	return *sh, nil
}

func (r *memoryRepo) SetStatus(ctx context.Context, id int64, status Status, tracking string, markShipped bool) error {
	sh, ok := r.shipments[id]
	if !ok {
		return shared.ErrNotFound
	}
	sh.Status = status
	if tracking != "" {
		sh.TrackingNumber = tracking
	}
	if markShipped {
		now := time.Now()
		sh.ShippedAt = &now
	}
	return nil
}

func (r *memoryRepo) Lines(ctx context.Context, shipmentID int64) ([]Line, error) {
	return r.lines[shipmentID], nil
}

func (r *memoryRepo) Stock() stock.TxStore { return r.ledger }

func strPtr(s string) *string { return &s }

func newTestService(repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stockSvc := stock.NewService(nil, nil, stock.ServiceConfig{AllowNegativeStock: true})
	return NewService(logger, repo, stockSvc, nil)
}

func createShipment(t *testing.T, svc *Service, lines []LineInput) Shipment {
	t.Helper()
	sh, err := svc.Create(context.Background(), CreateInput{OrderID: 100, Lines: lines})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, sh.Status)
	return sh
}

func TestCreateRejectsNonCustomerOrder(t *testing.T) {
	repo := newMemoryRepo(newMemoryLedger())
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), CreateInput{OrderID: 101, Lines: []LineInput{{ProductID: 10, Quantity: 1}}})
	require.ErrorIs(t, err, ErrNotCustomer)

	_, err = svc.Create(context.Background(), CreateInput{OrderID: 999, Lines: []LineInput{{ProductID: 10, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDebitHappensOnlyOnShippedEdge(t *testing.T) {
	ledger := newMemoryLedger()
	rec := ledger.seed(10, 1, nil, 40)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)

	sh := createShipment(t, svc, []LineInput{{ProductID: 10, Quantity: 15, WarehouseID: 1}})
	require.Empty(t, ledger.movements)

	// DRAFT -> PREPARING moves nothing
	_, err := svc.UpdateStatus(context.Background(), sh.ID, StatusPreparing, "", 0)
	require.NoError(t, err)
	require.Empty(t, ledger.movements)
	require.Equal(t, int64(40), ledger.records[rec.ID].Quantity)

	// PREPARING -> SHIPPED debits once
	shipped, err := svc.UpdateStatus(context.Background(), sh.ID, StatusShipped, "TRK-1", 0)
	require.NoError(t, err)
	require.Equal(t, StatusShipped, shipped.Status)
	require.Equal(t, "TRK-1", shipped.TrackingNumber)
	require.NotNil(t, shipped.ShippedAt)
	require.Equal(t, int64(25), ledger.records[rec.ID].Quantity)
	require.Len(t, ledger.movements, 1)
	require.Equal(t, stock.MovementOut, ledger.movements[0].Type)
	require.Equal(t, fmt.Sprintf("Shipment #%d", sh.ID), ledger.movements[0].Reason)
}

func TestRepeatedShippedUpdateDoesNotDoubleDebit(t *testing.T) {
	ledger := newMemoryLedger()
	rec := ledger.seed(10, 1, nil, 40)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)

	sh := createShipment(t, svc, []LineInput{{ProductID: 10, Quantity: 15, WarehouseID: 1}})
	_, err := svc.UpdateStatus(context.Background(), sh.ID, StatusShipped, "", 0)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), sh.ID, StatusShipped, "", 0)
	require.NoError(t, err)

	require.Equal(t, int64(25), ledger.records[rec.ID].Quantity)
	require.Len(t, ledger.movements, 1)
}

func TestCancelledShipmentCannotBeShipped(t *testing.T) {
	ledger := newMemoryLedger()
	rec := ledger.seed(10, 1, nil, 10)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)

	sh := createShipment(t, svc, []LineInput{{ProductID: 10, Quantity: 4, WarehouseID: 1}})
	_, err := svc.UpdateStatus(context.Background(), sh.ID, StatusCancelled, "", 0)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), sh.ID, StatusShipped, "", 0)
	require.ErrorIs(t, err, ErrStatusTransition)
	require.Empty(t, ledger.movements)
	require.Equal(t, int64(10), ledger.records[rec.ID].Quantity)

	got, err := svc.GetShipment(context.Background(), sh.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
}

func TestDeliveredShipmentIsTerminal(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.seed(10, 1, nil, 40)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)

	sh := createShipment(t, svc, []LineInput{{ProductID: 10, Quantity: 5, WarehouseID: 1}})
	_, err := svc.UpdateStatus(context.Background(), sh.ID, StatusShipped, "", 0)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), sh.ID, StatusDelivered, "", 0)
	require.NoError(t, err)

	for _, next := range []Status{StatusDraft, StatusPreparing, StatusShipped, StatusCancelled} {
		_, err = svc.UpdateStatus(context.Background(), sh.ID, next, "", 0)
		require.ErrorIs(t, err, ErrStatusTransition)
	}
	require.Len(t, ledger.movements, 1)
}

func TestMissingRecordLineIsSkipped(t *testing.T) {
	ledger := newMemoryLedger()
	rec := ledger.seed(10, 1, nil, 40)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)

	sh := createShipment(t, svc, []LineInput{
		{ProductID: 10, Quantity: 5, WarehouseID: 1},
		{ProductID: 11, Quantity: 5, WarehouseID: 1}, // no record for this product
	})
	shipped, err := svc.UpdateStatus(context.Background(), sh.ID, StatusShipped, "", 0)
	require.NoError(t, err)
	require.Equal(t, StatusShipped, shipped.Status)
	require.Equal(t, int64(35), ledger.records[rec.ID].Quantity)
	require.Len(t, ledger.movements, 1)
}

func TestExactTupleMatchOnLot(t *testing.T) {
	ledger := newMemoryLedger()
	lotA := ledger.seed(10, 1, strPtr("LOT-A"), 20)
	lotB := ledger.seed(10, 1, strPtr("LOT-B"), 20)
	repo := newMemoryRepo(ledger)
	svc := newTestService(repo)

	sh := createShipment(t, svc, []LineInput{{ProductID: 10, Quantity: 8, WarehouseID: 1, LotNumber: "LOT-B"}})
	_, err := svc.UpdateStatus(context.Background(), sh.ID, StatusShipped, "", 0)
	require.NoError(t, err)
	require.Equal(t, int64(20), ledger.records[lotA.ID].Quantity)
	require.Equal(t, int64(12), ledger.records[lotB.ID].Quantity)
}
