package orders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/steelforge-erp/steelforge/internal/shared"
	"github.com/steelforge-erp/steelforge/internal/stock"
)

// RepositoryPort is implemented by Repository.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Orders(ctx context.Context, orderType OrderType) ([]Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	PartyRoles(ctx context.Context, id int64) (isCustomer, isSupplier bool, err error)
	MaterialExists(ctx context.Context, id int64) (bool, error)
	ProductExists(ctx context.Context, id int64) (bool, error)
	Quotes(ctx context.Context) ([]Quote, error)
}

// StockPort applies ledger credits inside the order transaction.
type StockPort interface {
	ApplyTx(ctx context.Context, tx stock.TxStore, input stock.AdjustInput) (stock.Movement, error)
}

// IdempotencyPort deduplicates retried submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns sales and purchase orders.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	stock       StockPort
	idempotency IdempotencyPort
	audit       AuditPort
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, stockSvc StockPort, idempotency IdempotencyPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, stock: stockSvc, idempotency: idempotency, audit: audit}
}

// ItemInput is one requested order line referencing exactly one of a
// material or a product.
type ItemInput struct {
	MaterialID int64
	ProductID  int64
	Quantity   int64
	UnitPrice  decimal.Decimal
}

// CreateOrderInput carries the fields for a new order. IdempotencyKey is
// optional; when set, a retried submission with the same key is rejected
// instead of booking the purchase twice.
type CreateOrderInput struct {
	OrderNumber    string
	ThirdPartyID   int64
	Items          []ItemInput
	IdempotencyKey string
	ActorID        int64
}

// CreatePurchaseOrder books a purchase and receives it immediately: the
// order lands as COMPLETED and every material line is credited to the
// default warehouse in the same transaction. The total is computed
// server-side from the items.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreateOrderInput) (Order, error) {
	if err := s.validateItems(input.Items); err != nil {
		return Order{}, err
	}
	for _, item := range input.Items {
		if item.MaterialID == 0 {
			return Order{}, ErrPurchaseNeedsMaterial
		}
		if err := s.checkMaterial(ctx, item.MaterialID); err != nil {
			return Order{}, err
		}
	}
	_, isSupplier, err := s.repo.PartyRoles(ctx, input.ThirdPartyID)
	if err != nil {
		return Order{}, fmt.Errorf("third party %d: %w", input.ThirdPartyID, err)
	}
	if !isSupplier {
		return Order{}, ErrNotSupplier
	}
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "orders:purchase"); err != nil {
			return Order{}, err
		}
	}
	order, err := s.createOrder(ctx, TypePurchase, StatusCompleted, input, func(ctx context.Context, tx TxRepository, orderID int64) error {
		warehouseID, err := tx.GetOrCreateDefaultWarehouseID(ctx)
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("Purchase Order #%d", orderID)
		for _, item := range input.Items {
			_, err := s.stock.ApplyTx(ctx, tx.Stock(), stock.AdjustInput{
				Item:        stock.ItemRef{MaterialID: item.MaterialID},
				WarehouseID: warehouseID,
				Type:        stock.MovementIn,
				Quantity:    item.Quantity,
				Reason:      reason,
				ActorID:     input.ActorID,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, input.IdempotencyKey); delErr != nil {
				s.logger.Warn("idempotency rollback failed", slog.Any("error", delErr))
			}
		}
		return Order{}, err
	}
	s.recordAudit(ctx, input.ActorID, "orders:purchase", order)
	return order, nil
}

// CreateSalesOrder books a sale in PENDING. Stock does not move here;
// the debit happens when the shipment goes out.
func (s *Service) CreateSalesOrder(ctx context.Context, input CreateOrderInput) (Order, error) {
	if err := s.validateProductItems(ctx, input.Items); err != nil {
		return Order{}, err
	}
	isCustomer, _, err := s.repo.PartyRoles(ctx, input.ThirdPartyID)
	if err != nil {
		return Order{}, fmt.Errorf("third party %d: %w", input.ThirdPartyID, err)
	}
	if !isCustomer {
		return Order{}, ErrNotCustomer
	}
	order, err := s.createOrder(ctx, TypeSale, StatusPending, input, nil)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, input.ActorID, "orders:sale", order)
	return order, nil
}

func (s *Service) createOrder(ctx context.Context, orderType OrderType, status OrderStatus, input CreateOrderInput, after func(context.Context, TxRepository, int64) error) (Order, error) {
	number := input.OrderNumber
	if number == "" {
		prefix := "SO"
		if orderType == TypePurchase {
			prefix = "PO"
		}
		number = shared.NewDocumentNumber(prefix)
	}
	order := Order{
		OrderNumber:  number,
		Type:         orderType,
		ThirdPartyID: input.ThirdPartyID,
		Status:       status,
		Total:        orderTotal(input.Items),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		for _, in := range input.Items {
			item := Item{OrderID: id, MaterialID: in.MaterialID, ProductID: in.ProductID, Quantity: in.Quantity, UnitPrice: in.UnitPrice}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			order.Items = append(order.Items, item)
		}
		if after != nil {
			return after(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// CreateQuoteInput carries the fields for a new quote.
type CreateQuoteInput struct {
	QuoteNumber  string
	ThirdPartyID int64
	Items        []ItemInput
	ActorID      int64
}

// CreateQuote opens a DRAFT quote for a customer.
func (s *Service) CreateQuote(ctx context.Context, input CreateQuoteInput) (Quote, error) {
	if err := s.validateProductItems(ctx, input.Items); err != nil {
		return Quote{}, err
	}
	isCustomer, _, err := s.repo.PartyRoles(ctx, input.ThirdPartyID)
	if err != nil {
		return Quote{}, fmt.Errorf("third party %d: %w", input.ThirdPartyID, err)
	}
	if !isCustomer {
		return Quote{}, ErrNotCustomer
	}
	number := input.QuoteNumber
	if number == "" {
		number = shared.NewDocumentNumber("QT")
	}
	quote := Quote{
		QuoteNumber:  number,
		ThirdPartyID: input.ThirdPartyID,
		Status:       QuoteDraft,
		Total:        orderTotal(input.Items),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertQuote(ctx, quote)
		if err != nil {
			return err
		}
		quote.ID = id
		for _, in := range input.Items {
			item := Item{ProductID: in.ProductID, Quantity: in.Quantity, UnitPrice: in.UnitPrice}
			if _, err := tx.InsertQuoteItem(ctx, id, item); err != nil {
				return err
			}
			quote.Items = append(quote.Items, item)
		}
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	return quote, nil
}

// Orders lists orders, optionally filtered by type.
func (s *Service) Orders(ctx context.Context, orderType OrderType) ([]Order, error) {
	return s.repo.Orders(ctx, orderType)
}

// GetOrder fetches one order.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// Quotes lists quotes.
func (s *Service) Quotes(ctx context.Context) ([]Quote, error) {
	return s.repo.Quotes(ctx)
}

func (s *Service) validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for _, item := range items {
		ref := stock.ItemRef{MaterialID: item.MaterialID, ProductID: item.ProductID}
		if err := ref.Validate(); err != nil {
			return err
		}
		if item.Quantity <= 0 {
			return stock.ErrInvalidQuantity
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: unit price must be non-negative", shared.ErrValidation)
		}
	}
	return nil
}

// validateProductItems guards sales orders and quotes, whose lines
// price finished products.
func (s *Service) validateProductItems(ctx context.Context, items []ItemInput) error {
	if err := s.validateItems(items); err != nil {
		return err
	}
	for _, item := range items {
		if item.ProductID == 0 {
			return ErrSaleNeedsProduct
		}
		ok, err := s.repo.ProductExists(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("product %d: %w", item.ProductID, shared.ErrNotFound)
		}
	}
	return nil
}

func (s *Service) checkMaterial(ctx context.Context, id int64) error {
	ok, err := s.repo.MaterialExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("material %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func orderTotal(items []ItemInput) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	return total
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, order Order) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", order.ID),
		Meta: map[string]any{
			"order_number": order.OrderNumber,
			"total":        order.Total.String(),
		},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
