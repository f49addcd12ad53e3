package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/steelforge-erp/steelforge/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	Records(ctx context.Context, filter RecordFilter) ([]Record, error)
	Movements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	MaterialExists(ctx context.Context, id int64) (bool, error)
	ProductExists(ctx context.Context, id int64) (bool, error)
	WarehouseExists(ctx context.Context, id int64) (bool, error)
	TotalForMaterial(ctx context.Context, materialID int64) (int64, error)
	TotalForProduct(ctx context.Context, productID int64) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the stock adjustment primitive. Every stock mutation in the
// system goes through Adjust or ApplyTx, which keeps the record snapshot
// and the movement ledger consistent within one transaction.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// AllowNegativeStock preserves the historical behavior of OUT
	// adjustments never clamping at zero.
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, allowNeg: cfg.AllowNegativeStock}
}

// Adjust applies one IN/OUT/ADJUSTMENT call to a single stock tuple and
// appends exactly one movement, transactionally.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Movement, error) {
	switch input.Type {
	case MovementIn, MovementOut, MovementAdjustment:
	default:
		return Movement{}, ErrInvalidMovementType
	}
	if input.Quantity < 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if err := s.checkRefs(ctx, input.Item, input.WarehouseID); err != nil {
		return Movement{}, err
	}

	var mv Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		mv, err = s.ApplyTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, input, mv)
	return mv, nil
}

// ApplyTx runs the adjustment primitive inside a caller-owned transaction.
// Consumption, fulfillment and purchase receipt build a TxStore over their
// own pgx transaction so their writes commit atomically with the ledger.
// For TRANSFER legs Quantity is signed.
func (s *Service) ApplyTx(ctx context.Context, tx TxStore, input AdjustInput) (Movement, error) {
	if err := input.Item.Validate(); err != nil {
		return Movement{}, err
	}
	if input.WarehouseID == 0 {
		return Movement{}, fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	key := RecordKey{
		Item:         input.Item,
		WarehouseID:  input.WarehouseID,
		LotNumber:    NormalizeRef(input.LotNumber),
		SerialNumber: NormalizeRef(input.SerialNumber),
	}
	rec, err := tx.GetRecordForUpdate(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		rec, err = tx.CreateRecord(ctx, key)
	}
	if err != nil {
		return Movement{}, err
	}

	var newQty, logged int64
	switch input.Type {
	case MovementIn:
		newQty = rec.Quantity + input.Quantity
		logged = input.Quantity
	case MovementOut:
		newQty = rec.Quantity - input.Quantity
		logged = input.Quantity
	case MovementAdjustment:
		// The movement logs the signed delta, not the target.
		newQty = input.Quantity
		logged = input.Quantity - rec.Quantity
	case MovementTransfer:
		newQty = rec.Quantity + input.Quantity
		logged = input.Quantity
	default:
		return Movement{}, ErrInvalidMovementType
	}
	if !s.allowNeg && newQty < 0 {
		return Movement{}, ErrNegativeStock
	}
	if err := tx.UpdateRecordQuantity(ctx, rec.ID, newQty); err != nil {
		return Movement{}, err
	}
	mv := Movement{
		MaterialID:   input.Item.MaterialID,
		ProductID:    input.Item.ProductID,
		WarehouseID:  input.WarehouseID,
		Type:         input.Type,
		Quantity:     logged,
		Reason:       input.Reason,
		LotNumber:    key.LotNumber,
		SerialNumber: key.SerialNumber,
	}
	mv.ID, err = tx.InsertMovement(ctx, mv)
	if err != nil {
		return Movement{}, err
	}
	return mv, nil
}

// Transfer moves stock between warehouses using two TRANSFER legs.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Movement, Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, Movement{}, ErrInvalidQuantity
	}
	if input.SrcWarehouse == input.DstWarehouse {
		return Movement{}, Movement{}, fmt.Errorf("%w: source and destination warehouse must differ", shared.ErrValidation)
	}
	if err := s.checkRefs(ctx, input.Item, input.SrcWarehouse); err != nil {
		return Movement{}, Movement{}, err
	}
	if ok, err := s.repo.WarehouseExists(ctx, input.DstWarehouse); err != nil {
		return Movement{}, Movement{}, err
	} else if !ok {
		return Movement{}, Movement{}, fmt.Errorf("warehouse %d: %w", input.DstWarehouse, shared.ErrNotFound)
	}

	var outLeg, inLeg Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		outLeg, err = s.ApplyTx(ctx, tx, AdjustInput{
			Item:         input.Item,
			WarehouseID:  input.SrcWarehouse,
			Type:         MovementTransfer,
			Quantity:     -input.Quantity,
			Reason:       fmt.Sprintf("Transfer to warehouse %d: %s", input.DstWarehouse, input.Reason),
			LotNumber:    input.LotNumber,
			SerialNumber: input.SerialNumber,
			ActorID:      input.ActorID,
		})
		if err != nil {
			return err
		}
		inLeg, err = s.ApplyTx(ctx, tx, AdjustInput{
			Item:         input.Item,
			WarehouseID:  input.DstWarehouse,
			Type:         MovementTransfer,
			Quantity:     input.Quantity,
			Reason:       fmt.Sprintf("Transfer from warehouse %d: %s", input.SrcWarehouse, input.Reason),
			LotNumber:    input.LotNumber,
			SerialNumber: input.SerialNumber,
			ActorID:      input.ActorID,
		})
		return err
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	return outLeg, inLeg, nil
}

// Records lists stock records.
func (s *Service) Records(ctx context.Context, filter RecordFilter) ([]Record, error) {
	return s.repo.Records(ctx, filter)
}

// Movements lists ledger history.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.Movements(ctx, filter)
}

// TotalForMaterial reports the derived on-hand total across all records.
func (s *Service) TotalForMaterial(ctx context.Context, materialID int64) (int64, error) {
	return s.repo.TotalForMaterial(ctx, materialID)
}

// TotalForProduct reports the derived on-hand total across all records.
func (s *Service) TotalForProduct(ctx context.Context, productID int64) (int64, error) {
	return s.repo.TotalForProduct(ctx, productID)
}

func (s *Service) checkRefs(ctx context.Context, item ItemRef, warehouseID int64) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if item.MaterialID != 0 {
		ok, err := s.repo.MaterialExists(ctx, item.MaterialID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("material %d: %w", item.MaterialID, shared.ErrNotFound)
		}
	}
	if item.ProductID != 0 {
		ok, err := s.repo.ProductExists(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("product %d: %w", item.ProductID, shared.ErrNotFound)
		}
	}
	if warehouseID == 0 {
		return fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	ok, err := s.repo.WarehouseExists(ctx, warehouseID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("warehouse %d: %w", warehouseID, shared.ErrNotFound)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, input AdjustInput, mv Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   fmt.Sprintf("stock:%s", input.Type),
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", mv.ID),
		Meta: map[string]any{
			"material_id":  input.Item.MaterialID,
			"product_id":   input.Item.ProductID,
			"warehouse_id": input.WarehouseID,
			"qty":          mv.Quantity,
			"reason":       input.Reason,
		},
	})
}
