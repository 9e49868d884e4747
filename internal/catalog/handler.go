package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dkoval/storefront/internal/domain"
)

type Handler struct {
	repo     *Repository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(repo *Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("failed to list categories", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, categories)
}

type createCategoryRequest struct {
	Slug      string  `json:"slug" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	ParentID  *string `json:"parent_id" validate:"omitempty,uuid"`
	IsActive  bool    `json:"is_active"`
	SortOrder int     `json:"sort_order"`
}

func (h *Handler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	category := &domain.Category{
		Slug:      req.Slug,
		Name:      req.Name,
		ParentID:  req.ParentID,
		IsActive:  req.IsActive,
		SortOrder: req.SortOrder,
	}

	if err := h.repo.CreateCategory(r.Context(), category); err != nil {
		h.logger.Error("failed to create category", "error", err, "slug", req.Slug)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("category created", "category_id", category.ID, "slug", category.Slug)
	h.writeJSON(w, http.StatusCreated, category)
}

type reparentCategoryRequest struct {
	ParentID *string `json:"parent_id" validate:"omitempty,uuid"`
}

func (h *Handler) HandleReparentCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing category id")
		return
	}

	var req reparentCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.repo.UpdateCategoryParent(r.Context(), id, req.ParentID)
	switch {
	case errors.Is(err, ErrCyclicParent):
		h.writeError(w, http.StatusConflict, "parent change would create a cycle")
		return
	case errors.Is(err, ErrCategoryNotFound):
		h.writeError(w, http.StatusNotFound, "category not found")
		return
	case err != nil:
		h.logger.Error("failed to reparent category", "error", err, "category_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("category reparented", "category_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListCategoryProducts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing category id")
		return
	}

	products, err := h.repo.ListProductsByCategory(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			h.writeError(w, http.StatusNotFound, "category not found")
			return
		}
		h.logger.Error("failed to list category products", "error", err, "category_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.repo.GetProduct(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

type createProductRequest struct {
	SKU        string `json:"sku" validate:"required"`
	Slug       string `json:"slug" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Price      int64  `json:"price" validate:"required,gt=0"`
	Stock      int    `json:"stock" validate:"gte=0"`
	IsActive   bool   `json:"is_active"`
	IsInStock  bool   `json:"is_in_stock"`
	CategoryID string `json:"category_id" validate:"required,uuid"`
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	product := &domain.Product{
		SKU:        req.SKU,
		Slug:       req.Slug,
		Name:       req.Name,
		Price:      req.Price,
		Stock:      req.Stock,
		IsActive:   req.IsActive,
		IsInStock:  req.IsInStock,
		CategoryID: req.CategoryID,
	}

	if err := h.repo.CreateProduct(r.Context(), product); err != nil {
		h.logger.Error("failed to create product", "error", err, "sku", req.SKU)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "sku", product.SKU)
	h.writeJSON(w, http.StatusCreated, product)
}

type setStockRequest struct {
	Stock     int  `json:"stock" validate:"gte=0"`
	IsInStock bool `json:"is_in_stock"`
}

func (h *Handler) HandleSetStock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req setStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.repo.SetStock(r.Context(), id, req.Stock, req.IsInStock)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to set stock", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("stock updated", "product_id", id, "stock", product.Stock, "stock_status", product.StockStatus)
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
