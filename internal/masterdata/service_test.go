package masterdata

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steelforge-erp/steelforge/internal/shared"
	"github.com/steelforge-erp/steelforge/internal/stock"
)

type memoryRepo struct {
	materials  map[int64]Material
	warehouses []Warehouse
	parties    map[int64]ThirdParty
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		materials: make(map[int64]Material),
		parties:   make(map[int64]ThirdParty),
		nextID:    1,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Materials(ctx context.Context) ([]Material, error) {
	out := []Material{}
	for _, m := range r.materials {
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryRepo) GetMaterial(ctx context.Context, id int64) (Material, error) {
	m, ok := r.materials[id]
	if !ok {
		return Material{}, shared.ErrNotFound
	}
	return m, nil
}

func (r *memoryRepo) DeleteMaterial(ctx context.Context, id int64) error {
	if _, ok := r.materials[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.materials, id)
	return nil
}

func (r *memoryRepo) Products(ctx context.Context) ([]Product, error) { return nil, nil }

func (r *memoryRepo) Warehouses(ctx context.Context) ([]Warehouse, error) {
	return r.warehouses, nil
}

func (r *memoryRepo) FirstWarehouse(ctx context.Context) (Warehouse, error) {
	if len(r.warehouses) == 0 {
		return Warehouse{}, shared.ErrNotFound
	}
	return r.warehouses[0], nil
}

func (r *memoryRepo) GetThirdParty(ctx context.Context, id int64) (ThirdParty, error) {
	tp, ok := r.parties[id]
	if !ok {
		return ThirdParty{}, shared.ErrNotFound
	}
	return tp, nil
}

func (r *memoryRepo) ThirdParties(ctx context.Context, customersOnly, suppliersOnly bool) ([]ThirdParty, error) {
	out := []ThirdParty{}
	for _, tp := range r.parties {
		if customersOnly && !tp.IsCustomer {
			continue
		}
		if suppliersOnly && !tp.IsSupplier {
			continue
		}
		out = append(out, tp)
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) InsertMaterial(ctx context.Context, m Material) (int64, error) {
	id := tx.repo.nextID
	tx.repo.nextID++
	m.ID = id
	m.CreatedAt = time.Now()
	tx.repo.materials[id] = m
	return id, nil
}

func (tx *memoryTx) InsertProduct(ctx context.Context, p Product) (int64, error) {
	id := tx.repo.nextID
	tx.repo.nextID++
	return id, nil
}

func (tx *memoryTx) InsertWarehouse(ctx context.Context, w Warehouse) (int64, error) {
	id := tx.repo.nextID
	tx.repo.nextID++
	w.ID = id
	tx.repo.warehouses = append(tx.repo.warehouses, w)
	return id, nil
}

func (tx *memoryTx) InsertThirdParty(ctx context.Context, tp ThirdParty) (int64, error) {
	id := tx.repo.nextID
	tx.repo.nextID++
	tp.ID = id
	tx.repo.parties[id] = tp
	return id, nil
}

func (tx *memoryTx) GetOrCreateDefaultWarehouse(ctx context.Context) (Warehouse, error) {
	if len(tx.repo.warehouses) > 0 {
		return tx.repo.warehouses[0], nil
	}
	if _, err := tx.InsertWarehouse(ctx, Warehouse{Name: DefaultWarehouseName, Address: "Default Location"}); err != nil {
		return Warehouse{}, err
	}
	return tx.repo.warehouses[0], nil
}

func (tx *memoryTx) Stock() stock.TxStore { return nil }

type fakeStock struct {
	applied []stock.AdjustInput
	totals  map[int64]int64
}

func (f *fakeStock) ApplyTx(ctx context.Context, tx stock.TxStore, input stock.AdjustInput) (stock.Movement, error) {
	f.applied = append(f.applied, input)
	if f.totals == nil {
		f.totals = make(map[int64]int64)
	}
	f.totals[input.Item.MaterialID] += input.Quantity
	return stock.Movement{Type: input.Type, Quantity: input.Quantity, Reason: input.Reason}, nil
}

func (f *fakeStock) TotalForMaterial(ctx context.Context, materialID int64) (int64, error) {
	return f.totals[materialID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateMaterialSeedsInitialStock(t *testing.T) {
	repo := newMemoryRepo()
	st := &fakeStock{}
	svc := NewService(testLogger(), repo, st)

	material, err := svc.CreateMaterial(context.Background(), CreateMaterialInput{
		Name:            "Steel Sheet 2mm",
		Type:            "SHEET",
		Thickness:       2,
		Width:           1000,
		Length:          2000,
		InitialQuantity: 40,
	})
	require.NoError(t, err)
	require.NotZero(t, material.ID)

	require.Len(t, st.applied, 1)
	in := st.applied[0]
	require.Equal(t, stock.MovementIn, in.Type)
	require.Equal(t, int64(40), in.Quantity)
	require.Equal(t, "Initial Stock", in.Reason)
	require.Equal(t, material.ID, in.Item.MaterialID)
	require.NotZero(t, in.WarehouseID)

	// a default warehouse was created on demand
	require.Len(t, repo.warehouses, 1)
	require.Equal(t, DefaultWarehouseName, repo.warehouses[0].Name)
}

func TestCreateMaterialZeroQuantitySkipsStock(t *testing.T) {
	repo := newMemoryRepo()
	st := &fakeStock{}
	svc := NewService(testLogger(), repo, st)

	_, err := svc.CreateMaterial(context.Background(), CreateMaterialInput{Name: "Rod", Type: "BAR"})
	require.NoError(t, err)
	require.Empty(t, st.applied)
	require.Empty(t, repo.warehouses)
}

func TestDefaultWarehouseReusesFirst(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(testLogger(), repo, &fakeStock{})

	first, err := svc.DefaultWarehouseID(context.Background())
	require.NoError(t, err)
	second, err := svc.DefaultWarehouseID(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, repo.warehouses, 1)
}

func TestMaterialsDeriveQuantity(t *testing.T) {
	repo := newMemoryRepo()
	st := &fakeStock{totals: map[int64]int64{}}
	svc := NewService(testLogger(), repo, st)

	m, err := svc.CreateMaterial(context.Background(), CreateMaterialInput{Name: "Plate", Type: "SHEET", InitialQuantity: 12})
	require.NoError(t, err)

	got, err := svc.GetMaterial(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, int64(12), got.Quantity)
}
