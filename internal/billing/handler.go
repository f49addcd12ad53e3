package billing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/steelforge-erp/steelforge/internal/platform/httpx"
	"github.com/steelforge-erp/steelforge/internal/shared"
)

// Handler wires HTTP endpoints for invoicing.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs billing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/payments", h.handleRegisterPayment)
	})
}

type createInvoiceRequest struct {
	InvoiceNumber string `json:"invoice_number"`
	OrderID       int64  `json:"order_id"`
	ThirdPartyID  int64  `json:"third_party_id"`
	Total         string `json:"total"`
	DueDate       string `json:"due_date"`
}

type registerPaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	total := decimal.Zero
	if req.Total != "" {
		parsed, err := decimal.NewFromString(req.Total)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "total must be a decimal")
			return
		}
		total = parsed
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, err := time.Parse(time.DateOnly, req.DueDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
			return
		}
		dueDate = &parsed
	}
	invoice, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		InvoiceNumber: req.InvoiceNumber,
		OrderID:       req.OrderID,
		ThirdPartyID:  req.ThirdPartyID,
		Total:         total,
		DueDate:       dueDate,
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) handleRegisterPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req registerPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal")
		return
	}
	invoice, err := h.service.RegisterPayment(r.Context(), RegisterPaymentInput{
		InvoiceID: id,
		Amount:    amount,
		Method:    req.Method,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.Invoices(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
