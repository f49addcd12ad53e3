package shipping

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
	Shipments(ctx context.Context) ([]Shipment, error)
	GetShipment(ctx context.Context, id int64) (Shipment, error)
	OrderCustomer(ctx context.Context, orderID int64) (int64, bool, error)
}

// StockPort applies ledger debits inside the shipment transaction.
type StockPort interface {
	ApplyTx(ctx context.Context, tx stock.TxStore, input stock.AdjustInput) (stock.Movement, error)
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns shipments and the stock effects of dispatch.
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

// CreateInput carries the fields for a new shipment.
type CreateInput struct {
	OrderID        int64
	TrackingNumber string
	Lines          []LineInput
	ActorID        int64
}

// LineInput is one requested shipment line.
type LineInput struct {
	ProductID    int64
	Quantity     int64
	WarehouseID  int64
	LotNumber    string
	SerialNumber string
}

// Create opens a shipment in DRAFT against a sales order. The order's
// party must be a customer. No stock moves yet.
func (s *Service) Create(ctx context.Context, input CreateInput) (Shipment, error) {
	if len(input.Lines) == 0 {
		return Shipment{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return Shipment{}, stock.ErrInvalidQuantity
		}
	}
	customerID, isCustomer, err := s.repo.OrderCustomer(ctx, input.OrderID)
	if err != nil {
		return Shipment{}, fmt.Errorf("order %d: %w", input.OrderID, err)
	}
	if !isCustomer {
		return Shipment{}, ErrNotCustomer
	}
	var shipmentID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertShipment(ctx, Shipment{
			OrderID:        input.OrderID,
			CustomerID:     customerID,
			Status:         StatusDraft,
			TrackingNumber: input.TrackingNumber,
		})
		if err != nil {
			return err
		}
		shipmentID = id
		for _, line := range input.Lines {
			_, err := tx.InsertLine(ctx, Line{
				ShipmentID:   id,
				ProductID:    line.ProductID,
				Quantity:     line.Quantity,
				WarehouseID:  line.WarehouseID,
				LotNumber:    stock.NormalizeRef(line.LotNumber),
				SerialNumber: stock.NormalizeRef(line.SerialNumber),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Shipment{}, err
	}
	return s.repo.GetShipment(ctx, shipmentID)
}

// UpdateStatus moves a shipment through its lifecycle. Stock is debited
// only on the edge into SHIPPED, so repeating the call cannot debit
// twice. The tracking number and the debits commit in one transaction.
func (s *Service) UpdateStatus(ctx context.Context, shipmentID int64, status Status, tracking string, actorID int64) (Shipment, error) {
	if !status.Valid() {
		return Shipment{}, ErrInvalidStatus
	}
	var debited int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sh, err := tx.GetShipmentForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !sh.Status.CanTransition(status) {
			return fmt.Errorf("%s to %s: %w", sh.Status, status, ErrStatusTransition)
		}
		enteringShipped := status == StatusShipped && sh.Status != StatusShipped
		if enteringShipped {
			lines, err := tx.Lines(ctx, shipmentID)
			if err != nil {
				return err
			}
			debited, err = s.debitLines(ctx, tx, sh, lines, actorID)
			if err != nil {
				return err
			}
		}
		return tx.SetStatus(ctx, shipmentID, status, tracking, enteringShipped)
	})
	if err != nil {
		return Shipment{}, err
	}
	if debited > 0 {
		s.recordAudit(ctx, actorID, shipmentID, debited)
	}
	return s.repo.GetShipment(ctx, shipmentID)
}

// debitLines posts one OUT movement per line that pins a product and a
// warehouse. Lines whose stock record does not exist are skipped; the
// shipment still goes out.
func (s *Service) debitLines(ctx context.Context, tx TxRepository, sh Shipment, lines []Line, actorID int64) (int, error) {
	ledger := tx.Stock()
	debited := 0
	for _, line := range lines {
		if line.ProductID == 0 || line.WarehouseID == 0 {
			continue
		}
		key := stock.RecordKey{
			Item:         stock.ItemRef{ProductID: line.ProductID},
			WarehouseID:  line.WarehouseID,
			LotNumber:    line.LotNumber,
			SerialNumber: line.SerialNumber,
		}
		if _, err := ledger.RecordByKeyForUpdate(ctx, key); err != nil {
			if errors.Is(err, stock.ErrRecordNotFound) {
				s.logger.Warn("no stock record for shipment line, skipping debit",
					slog.Int64("shipment_id", sh.ID),
					slog.Int64("product_id", line.ProductID),
					slog.Int64("warehouse_id", line.WarehouseID))
				continue
			}
			return 0, err
		}
		_, err := s.stock.ApplyTx(ctx, ledger, stock.AdjustInput{
			Item:         stock.ItemRef{ProductID: line.ProductID},
			WarehouseID:  line.WarehouseID,
			Type:         stock.MovementOut,
			Quantity:     line.Quantity,
			Reason:       fmt.Sprintf("Shipment #%d", sh.ID),
			LotNumber:    derefStr(line.LotNumber),
			SerialNumber: derefStr(line.SerialNumber),
			ActorID:      actorID,
		})
		if err != nil {
			return 0, err
		}
		debited++
	}
	return debited, nil
}

// Shipments lists all shipments.
func (s *Service) Shipments(ctx context.Context) ([]Shipment, error) {
	return s.repo.Shipments(ctx)
}

// GetShipment fetches one shipment.
func (s *Service) GetShipment(ctx context.Context, id int64) (Shipment, error) {
	return s.repo.GetShipment(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID, shipmentID int64, debited int) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "shipping:dispatch",
		Entity:   "shipment",
		EntityID: fmt.Sprintf("%d", shipmentID),
		Meta:     map[string]any{"lines_debited": debited},
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
