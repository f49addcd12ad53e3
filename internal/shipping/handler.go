package shipping

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/steelforge-erp/steelforge/internal/platform/httpx"
	"github.com/steelforge-erp/steelforge/internal/shared"
)

// Handler wires HTTP endpoints for shipments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs shipping handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers shipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/shipments", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}/status", h.handleUpdateStatus)
	})
}

type lineRequest struct {
	ProductID    int64  `json:"product_id" validate:"required"`
	Quantity     int64  `json:"quantity" validate:"gt=0"`
	WarehouseID  int64  `json:"warehouse_id"`
	LotNumber    string `json:"lot_number"`
	SerialNumber string `json:"serial_number"`
}

type createRequest struct {
	OrderID        int64         `json:"order_id" validate:"required"`
	TrackingNumber string        `json:"tracking_number"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type updateStatusRequest struct {
	Status         string `json:"status" validate:"required,oneof=DRAFT PREPARING SHIPPED DELIVERED CANCELLED"`
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			WarehouseID:  line.WarehouseID,
			LotNumber:    line.LotNumber,
			SerialNumber: line.SerialNumber,
		})
	}
	shipment, err := h.service.Create(r.Context(), CreateInput{
		OrderID:        req.OrderID,
		TrackingNumber: req.TrackingNumber,
		Lines:          lines,
		ActorID:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shipment)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	shipments, err := h.service.Shipments(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipments)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	shipment, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipment)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	shipment, err := h.service.UpdateStatus(r.Context(), id, Status(req.Status), req.TrackingNumber, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipment)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
