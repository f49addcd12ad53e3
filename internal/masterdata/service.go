package masterdata

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/steelforge-erp/steelforge/internal/stock"
)

// RepositoryPort is implemented by Repository.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Materials(ctx context.Context) ([]Material, error)
	GetMaterial(ctx context.Context, id int64) (Material, error)
	DeleteMaterial(ctx context.Context, id int64) error
	Products(ctx context.Context) ([]Product, error)
	Warehouses(ctx context.Context) ([]Warehouse, error)
	FirstWarehouse(ctx context.Context) (Warehouse, error)
	GetThirdParty(ctx context.Context, id int64) (ThirdParty, error)
	ThirdParties(ctx context.Context, customersOnly, suppliersOnly bool) ([]ThirdParty, error)
}

// StockPort applies ledger mutations inside a caller-owned transaction.
type StockPort interface {
	ApplyTx(ctx context.Context, tx stock.TxStore, input stock.AdjustInput) (stock.Movement, error)
	TotalForMaterial(ctx context.Context, materialID int64) (int64, error)
}

// Service owns the master data catalog.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	stock  StockPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, stockSvc StockPort) *Service {
	return &Service{logger: logger, repo: repo, stock: stockSvc}
}

// CreateMaterialInput carries the fields for a new material. A positive
// InitialQuantity is booked as an inbound movement into the default
// warehouse inside the same transaction.
type CreateMaterialInput struct {
	Name            string
	Type            string
	Thickness       float64
	Width           float64
	Length          float64
	MinStock        int64
	InitialQuantity int64
	ActorID         int64
}

// CreateMaterial inserts the material and, when an initial quantity is
// given, seeds its stock record atomically.
func (s *Service) CreateMaterial(ctx context.Context, input CreateMaterialInput) (Material, error) {
	material := Material{
		Name:      input.Name,
		Type:      input.Type,
		Thickness: input.Thickness,
		Width:     input.Width,
		Length:    input.Length,
		MinStock:  input.MinStock,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertMaterial(ctx, material)
		if err != nil {
			return err
		}
		material.ID = id
		if input.InitialQuantity <= 0 {
			return nil
		}
		warehouse, err := tx.GetOrCreateDefaultWarehouse(ctx)
		if err != nil {
			return err
		}
		_, err = s.stock.ApplyTx(ctx, tx.Stock(), stock.AdjustInput{
			Item:        stock.ItemRef{MaterialID: id},
			WarehouseID: warehouse.ID,
			Type:        stock.MovementIn,
			Quantity:    input.InitialQuantity,
			Reason:      "Initial Stock",
			ActorID:     input.ActorID,
		})
		return err
	})
	if err != nil {
		return Material{}, err
	}
	s.logger.Info("material created", "material_id", material.ID, "initial_quantity", input.InitialQuantity)
	return s.repo.GetMaterial(ctx, material.ID)
}

// MaterialWithStock pairs a material with its derived on-hand total.
type MaterialWithStock struct {
	Material
	Quantity int64
}

// Materials lists materials with their derived stock totals. Totals are
// fetched concurrently since each one is an independent aggregate query.
func (s *Service) Materials(ctx context.Context) ([]MaterialWithStock, error) {
	materials, err := s.repo.Materials(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MaterialWithStock, len(materials))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, m := range materials {
		i, m := i, m
		g.Go(func() error {
			qty, err := s.stock.TotalForMaterial(ctx, m.ID)
			if err != nil {
				return err
			}
			out[i] = MaterialWithStock{Material: m, Quantity: qty}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMaterial fetches one material with its derived total.
func (s *Service) GetMaterial(ctx context.Context, id int64) (MaterialWithStock, error) {
	m, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		return MaterialWithStock{}, err
	}
	qty, err := s.stock.TotalForMaterial(ctx, id)
	if err != nil {
		return MaterialWithStock{}, err
	}
	return MaterialWithStock{Material: m, Quantity: qty}, nil
}

// DeleteMaterial removes a material from the catalog.
func (s *Service) DeleteMaterial(ctx context.Context, id int64) error {
	return s.repo.DeleteMaterial(ctx, id)
}

// CreateProductInput carries the fields for a new product.
type CreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
}

// CreateProduct inserts a product.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	product := Product{Name: input.Name, Description: input.Description, Price: input.Price}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		product.ID = id
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// Products lists the catalog.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	return s.repo.Products(ctx)
}

// CreateWarehouse inserts a warehouse.
func (s *Service) CreateWarehouse(ctx context.Context, name, address string) (Warehouse, error) {
	warehouse := Warehouse{Name: name, Address: address}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertWarehouse(ctx, warehouse)
		if err != nil {
			return err
		}
		warehouse.ID = id
		return nil
	})
	if err != nil {
		return Warehouse{}, err
	}
	return warehouse, nil
}

// Warehouses lists warehouses.
func (s *Service) Warehouses(ctx context.Context) ([]Warehouse, error) {
	return s.repo.Warehouses(ctx)
}

// DefaultWarehouseID resolves the warehouse used when callers omit one.
// The first warehouse wins; if none exists yet, "Main Warehouse" is
// created on demand.
func (s *Service) DefaultWarehouseID(ctx context.Context) (int64, error) {
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		warehouse, err := tx.GetOrCreateDefaultWarehouse(ctx)
		if err != nil {
			return err
		}
		id = warehouse.ID
		return nil
	})
	return id, err
}

// CreateThirdPartyInput carries the fields for a new customer or supplier.
type CreateThirdPartyInput struct {
	Name       string
	Email      string
	Phone      string
	Address    string
	IsCustomer bool
	IsSupplier bool
}

// CreateThirdParty inserts a third party.
func (s *Service) CreateThirdParty(ctx context.Context, input CreateThirdPartyInput) (ThirdParty, error) {
	party := ThirdParty{
		Name:       input.Name,
		Email:      input.Email,
		Phone:      input.Phone,
		Address:    input.Address,
		IsCustomer: input.IsCustomer,
		IsSupplier: input.IsSupplier,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertThirdParty(ctx, party)
		if err != nil {
			return err
		}
		party.ID = id
		return nil
	})
	if err != nil {
		return ThirdParty{}, err
	}
	return party, nil
}

// GetThirdParty fetches one third party.
func (s *Service) GetThirdParty(ctx context.Context, id int64) (ThirdParty, error) {
	return s.repo.GetThirdParty(ctx, id)
}

// ThirdParties lists parties, optionally filtered by role.
func (s *Service) ThirdParties(ctx context.Context, customersOnly, suppliersOnly bool) ([]ThirdParty, error) {
	return s.repo.ThirdParties(ctx, customersOnly, suppliersOnly)
}
