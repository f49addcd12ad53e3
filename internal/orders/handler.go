package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/steelforge-erp/steelforge/internal/platform/httpx"
	"github.com/steelforge-erp/steelforge/internal/shared"
)

// Handler wires HTTP endpoints for orders and quotes.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Post("/purchase", h.handleCreatePurchase)
		r.Post("/sales", h.handleCreateSales)
	})
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.handleListQuotes)
		r.Post("/", h.handleCreateQuote)
	})
}

type itemRequest struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

// purchaseItemRequest references a material: purchases receive raw
// goods from a supplier.
type purchaseItemRequest struct {
	MaterialID int64  `json:"material_id" validate:"required"`
	Quantity   int64  `json:"quantity" validate:"gt=0"`
	UnitPrice  string `json:"unit_price" validate:"required"`
}

type createPurchaseRequest struct {
	OrderNumber  string                `json:"order_number"`
	ThirdPartyID int64                 `json:"third_party_id" validate:"required"`
	Items        []purchaseItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createOrderRequest struct {
	OrderNumber  string        `json:"order_number"`
	ThirdPartyID int64         `json:"third_party_id" validate:"required"`
	Items        []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type createQuoteRequest struct {
	QuoteNumber  string        `json:"quote_number"`
	ThirdPartyID int64         `json:"third_party_id" validate:"required"`
	Items        []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) decodeItems(reqs []itemRequest) ([]ItemInput, bool) {
	items := make([]ItemInput, 0, len(reqs))
	for _, item := range reqs {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || price.IsNegative() {
			return nil, false
		}
		items = append(items, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: price})
	}
	return items, true
}

func (h *Handler) decodePurchaseItems(reqs []purchaseItemRequest) ([]ItemInput, bool) {
	items := make([]ItemInput, 0, len(reqs))
	for _, item := range reqs {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil || price.IsNegative() {
			return nil, false
		}
		items = append(items, ItemInput{MaterialID: item.MaterialID, Quantity: item.Quantity, UnitPrice: price})
	}
	return items, true
}

func (h *Handler) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items, ok := h.decodePurchaseItems(req.Items)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be a non-negative decimal")
		return
	}
	order, err := h.service.CreatePurchaseOrder(r.Context(), CreateOrderInput{
		OrderNumber:    req.OrderNumber,
		ThirdPartyID:   req.ThirdPartyID,
		Items:          items,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleCreateSales(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items, ok := h.decodeItems(req.Items)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be a non-negative decimal")
		return
	}
	order, err := h.service.CreateSalesOrder(r.Context(), CreateOrderInput{
		OrderNumber:  req.OrderNumber,
		ThirdPartyID: req.ThirdPartyID,
		Items:        items,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orderType := OrderType(r.URL.Query().Get("type"))
	switch orderType {
	case "", TypeSale, TypePurchase:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "type must be SALE or PURCHASE")
		return
	}
	list, err := h.service.Orders(r.Context(), orderType)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	var req createQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items, ok := h.decodeItems(req.Items)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be a non-negative decimal")
		return
	}
	quote, err := h.service.CreateQuote(r.Context(), CreateQuoteInput{
		QuoteNumber:  req.QuoteNumber,
		ThirdPartyID: req.ThirdPartyID,
		Items:        items,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.service.Quotes(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quotes)
}
