package masterdata

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

// Handler wires HTTP endpoints for the master data catalog.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs masterdata handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/materials", func(r chi.Router) {
		r.Get("/", h.handleListMaterials)
		r.Post("/", h.handleCreateMaterial)
		r.Get("/{id}", h.handleGetMaterial)
		r.Delete("/{id}", h.handleDeleteMaterial)
	})
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.handleListProducts)
		r.Post("/", h.handleCreateProduct)
	})
	r.Route("/warehouses", func(r chi.Router) {
		r.Get("/", h.handleListWarehouses)
		r.Post("/", h.handleCreateWarehouse)
	})
	r.Route("/third-parties", func(r chi.Router) {
		r.Get("/", h.handleListThirdParties)
		r.Post("/", h.handleCreateThirdParty)
		r.Get("/{id}", h.handleGetThirdParty)
	})
}

type createMaterialRequest struct {
	Name            string  `json:"name" validate:"required"`
	Type            string  `json:"type" validate:"required"`
	Thickness       float64 `json:"thickness" validate:"gte=0"`
	Width           float64 `json:"width" validate:"gte=0"`
	Length          float64 `json:"length" validate:"gte=0"`
	MinStock        int64   `json:"min_stock" validate:"gte=0"`
	InitialQuantity int64   `json:"initial_quantity" validate:"gte=0"`
}

type createProductRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Price       string `json:"price" validate:"required"`
}

type createWarehouseRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
}

type createThirdPartyRequest struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	IsCustomer bool   `json:"is_customer"`
	IsSupplier bool   `json:"is_supplier"`
}

func (h *Handler) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req createMaterialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	material, err := h.service.CreateMaterial(r.Context(), CreateMaterialInput{
		Name:            req.Name,
		Type:            req.Type,
		Thickness:       req.Thickness,
		Width:           req.Width,
		Length:          req.Length,
		MinStock:        req.MinStock,
		InitialQuantity: req.InitialQuantity,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, material)
}

func (h *Handler) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.service.Materials(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, materials)
}

func (h *Handler) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	material, err := h.service.GetMaterial(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.DeleteMaterial(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "price must be a non-negative decimal")
		return
	}
	product, err := h.service.CreateProduct(r.Context(), CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Products(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) handleCreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var req createWarehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	warehouse, err := h.service.CreateWarehouse(r.Context(), req.Name, req.Address)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) handleListWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.Warehouses(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouses)
}

func (h *Handler) handleCreateThirdParty(w http.ResponseWriter, r *http.Request) {
	var req createThirdPartyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	party, err := h.service.CreateThirdParty(r.Context(), CreateThirdPartyInput{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Address:    req.Address,
		IsCustomer: req.IsCustomer,
		IsSupplier: req.IsSupplier,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, party)
}

func (h *Handler) handleGetThirdParty(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	party, err := h.service.GetThirdParty(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, party)
}

func (h *Handler) handleListThirdParties(w http.ResponseWriter, r *http.Request) {
	customersOnly := r.URL.Query().Get("role") == "customer"
	suppliersOnly := r.URL.Query().Get("role") == "supplier"
	parties, err := h.service.ThirdParties(r.Context(), customersOnly, suppliersOnly)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, parties)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
