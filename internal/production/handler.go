package production

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/steelforge-erp/steelforge/internal/platform/httpx"
	"github.com/steelforge-erp/steelforge/internal/shared"
)

// Handler wires HTTP endpoints for production jobs.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.handleListJobs)
		r.Post("/", h.handleCreateJob)
		r.Get("/{id}", h.handleGetJob)
		r.Delete("/{id}", h.handleDeleteJob)
		r.Patch("/{id}/status", h.handleUpdateStatus)
		r.Get("/{id}/requirements", h.handleRequirements)
		r.Get("/{id}/consumptions", h.handleListConsumptions)
		r.Post("/{id}/consumptions", h.handleConsume)
		r.Post("/{id}/consumptions/batch", h.handleConsumeBatch)
	})
	r.Route("/bom", func(r chi.Router) {
		r.Get("/{id}", h.handleGetBOM)
		r.Put("/{id}", h.handleSetBOM)
	})
	r.Route("/routings", func(r chi.Router) {
		r.Get("/", h.handleListRoutings)
		r.Get("/{id}", h.handleGetRouting)
		r.Put("/{id}", h.handleSetRouting)
	})
}

type createJobRequest struct {
	JobNumber   string   `json:"job_number"`
	Description string   `json:"description"`
	ProductID   int64    `json:"product_id"`
	Quantity    int64    `json:"quantity" validate:"gt=0"`
	Operations  []string `json:"operations"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PLANNED IN_PROGRESS COMPLETED CANCELLED"`
}

type consumeRequest struct {
	MaterialID   int64  `json:"material_id" validate:"required"`
	Quantity     int64  `json:"quantity" validate:"gt=0"`
	LotNumber    string `json:"lot_number"`
	SerialNumber string `json:"serial_number"`
}

type consumeBatchRequest struct {
	Lines []consumeRequest `json:"lines" validate:"required,min=1,dive"`
}

type bomItemRequest struct {
	MaterialID int64 `json:"material_id" validate:"required"`
	Quantity   int64 `json:"quantity" validate:"gt=0"`
}

type setBOMRequest struct {
	Items []bomItemRequest `json:"items" validate:"required,min=1,dive"`
}

type setRoutingRequest struct {
	Steps []string `json:"steps" validate:"required,min=1,dive,required"`
}

func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	job, err := h.service.CreateJob(r.Context(), CreateJobInput{
		JobNumber:   req.JobNumber,
		Description: req.Description,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Operations:  req.Operations,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, job)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.Jobs(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, jobs)
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.DeleteJob(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
	job, err := h.service.UpdateStatus(r.Context(), id, JobStatus(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) handleRequirements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	requirements, err := h.service.Requirements(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, requirements)
}

func (h *Handler) handleListConsumptions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	consumptions, err := h.service.Consumptions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, consumptions)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	consumption, err := h.service.Consume(r.Context(), ConsumeInput{
		JobID:        id,
		MaterialID:   req.MaterialID,
		Quantity:     req.Quantity,
		LotNumber:    req.LotNumber,
		SerialNumber: req.SerialNumber,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, consumption)
}

func (h *Handler) handleConsumeBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req consumeBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	lines := make([]ConsumeInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, ConsumeInput{
			JobID:        id,
			MaterialID:   line.MaterialID,
			Quantity:     line.Quantity,
			LotNumber:    line.LotNumber,
			SerialNumber: line.SerialNumber,
			ActorID:      actor,
		})
	}
	consumptions, err := h.service.ConsumeBatch(r.Context(), id, lines, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, consumptions)
}

func (h *Handler) handleGetBOM(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	items, err := h.service.BOM(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleSetBOM(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req setBOMRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]BOMItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, BOMItemInput{MaterialID: it.MaterialID, Quantity: it.Quantity})
	}
	bom, err := h.service.SetBOM(r.Context(), id, items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bom)
}

func (h *Handler) handleListRoutings(w http.ResponseWriter, r *http.Request) {
	routings, err := h.service.Routings(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, routings)
}

func (h *Handler) handleGetRouting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	routing, err := h.service.RoutingForProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, routing)
}

func (h *Handler) handleSetRouting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req setRoutingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	routing, err := h.service.SetRouting(r.Context(), id, req.Steps)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, routing)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
