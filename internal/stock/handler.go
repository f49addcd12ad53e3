package stock

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/steelforge-erp/steelforge/internal/platform/httpx"
	"github.com/steelforge-erp/steelforge/internal/shared"
)

// WarehouseDefaulter resolves the fallback warehouse for calls that omit
// one, matching the historical "main warehouse" behavior.
type WarehouseDefaulter interface {
	DefaultWarehouseID(ctx context.Context) (int64, error)
}

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	defaulter WarehouseDefaulter
	validate  *validator.Validate
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service, defaulter WarehouseDefaulter) *Handler {
	return &Handler{logger: logger, service: service, defaulter: defaulter, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.handleAdjust)
	r.Post("/transfers", h.handleTransfer)
	r.Get("/records", h.handleRecords)
	r.Get("/movements", h.handleMovements)
}

type adjustRequest struct {
	MaterialID   int64  `json:"material_id"`
	ProductID    int64  `json:"product_id"`
	WarehouseID  int64  `json:"warehouse_id"`
	Type         string `json:"type" validate:"required,oneof=IN OUT ADJUSTMENT"`
	Quantity     int64  `json:"quantity" validate:"gte=0"`
	Reason       string `json:"reason"`
	LotNumber    string `json:"lot_number"`
	SerialNumber string `json:"serial_number"`
}

type transferRequest struct {
	MaterialID   int64  `json:"material_id"`
	ProductID    int64  `json:"product_id"`
	SrcWarehouse int64  `json:"src_warehouse_id" validate:"required"`
	DstWarehouse int64  `json:"dst_warehouse_id" validate:"required"`
	Quantity     int64  `json:"quantity" validate:"gt=0"`
	Reason       string `json:"reason"`
	LotNumber    string `json:"lot_number"`
	SerialNumber string `json:"serial_number"`
}

type movementResponse struct {
	ID           int64   `json:"id"`
	MaterialID   int64   `json:"material_id,omitempty"`
	ProductID    int64   `json:"product_id,omitempty"`
	WarehouseID  int64   `json:"warehouse_id"`
	Type         string  `json:"type"`
	Quantity     int64   `json:"quantity"`
	Reason       string  `json:"reason,omitempty"`
	LotNumber    *string `json:"lot_number,omitempty"`
	SerialNumber *string `json:"serial_number,omitempty"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	warehouseID := req.WarehouseID
	if warehouseID == 0 {
		id, err := h.defaulter.DefaultWarehouseID(r.Context())
		if err != nil {
			h.logger.Error("resolve default warehouse", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		warehouseID = id
	}
	mv, err := h.service.Adjust(r.Context(), AdjustInput{
		Item:         ItemRef{MaterialID: req.MaterialID, ProductID: req.ProductID},
		WarehouseID:  warehouseID,
		Type:         MovementType(req.Type),
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		LotNumber:    req.LotNumber,
		SerialNumber: req.SerialNumber,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(mv))
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	outLeg, inLeg, err := h.service.Transfer(r.Context(), TransferInput{
		Item:         ItemRef{MaterialID: req.MaterialID, ProductID: req.ProductID},
		SrcWarehouse: req.SrcWarehouse,
		DstWarehouse: req.DstWarehouse,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		LotNumber:    req.LotNumber,
		SerialNumber: req.SerialNumber,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"out": toMovementResponse(outLeg),
		"in":  toMovementResponse(inLeg),
	})
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	filter := RecordFilter{
		MaterialID:   queryID(r, "material_id"),
		ProductID:    queryID(r, "product_id"),
		WarehouseID:  queryID(r, "warehouse_id"),
		OnlyPositive: r.URL.Query().Get("positive") == "true",
	}
	records, err := h.service.Records(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock records", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	filter := MovementFilter{
		MaterialID:  queryID(r, "material_id"),
		ProductID:   queryID(r, "product_id"),
		WarehouseID: queryID(r, "warehouse_id"),
	}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("invalid from date %q", from))
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("invalid to date %q", to))
			return
		}
		filter.To = t
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	movements, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:           m.ID,
		MaterialID:   m.MaterialID,
		ProductID:    m.ProductID,
		WarehouseID:  m.WarehouseID,
		Type:         string(m.Type),
		Quantity:     m.Quantity,
		Reason:       m.Reason,
		LotNumber:    m.LotNumber,
		SerialNumber: m.SerialNumber,
	}
}

func queryID(r *http.Request, name string) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
