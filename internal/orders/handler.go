package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dkoval/storefront/internal/domain"
)

type Handler struct {
	service  *Service
	store    *SQLStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *Service, store *SQLStore, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

type cartLineRequest struct {
	ProductID string  `json:"product_id" validate:"required,uuid"`
	VariantID *string `json:"variant_id" validate:"omitempty,uuid"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
}

type placeOrderRequest struct {
	Items        []cartLineRequest `json:"items" validate:"required,min=1,dive"`
	FirstName    string            `json:"first_name" validate:"required"`
	LastName     string            `json:"last_name" validate:"required"`
	Phone        string            `json:"phone" validate:"required"`
	Email        string            `json:"email" validate:"required,email"`
	Company      string            `json:"company"`
	Notes        string            `json:"notes"`
	DeliveryType string            `json:"delivery_type" validate:"required,oneof=pickup courier transport"`
	AddressID    *string           `json:"address_id" validate:"omitempty,uuid"`
	PromoCode    string            `json:"promo_code"`
}

func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lines := make([]CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, CartLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.service.PlaceOrder(r.Context(), PlaceOrderInput{
		UserID:       userID,
		Lines:        lines,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		Email:        req.Email,
		Company:      req.Company,
		Notes:        req.Notes,
		DeliveryType: domain.DeliveryType(req.DeliveryType),
		AddressID:    req.AddressID,
		PromoCode:    req.PromoCode,
	})
	if err != nil {
		h.writePlacementError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

// writePlacementError maps the placement error taxonomy to HTTP codes and,
// for line errors, names the offending product.
func (h *Handler) writePlacementError(w http.ResponseWriter, err error) {
	var line *LineError
	if errors.As(err, &line) {
		body := map[string]any{
			"error":      line.Err.Error(),
			"product_id": line.ProductID,
			"quantity":   line.Quantity,
		}
		switch {
		case errors.Is(err, ErrProductNotFound):
			h.writeJSON(w, http.StatusNotFound, body)
		case errors.Is(err, ErrProductUnavailable):
			h.writeJSON(w, http.StatusUnprocessableEntity, body)
		case errors.Is(err, ErrInsufficientStock):
			h.writeJSON(w, http.StatusConflict, body)
		default:
			h.writeJSON(w, http.StatusBadRequest, body)
		}
		return
	}

	h.logger.Error("failed to place order", "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

type updateStatusRequest struct {
	Status      string `json:"status" validate:"required"`
	Comment     string `json:"comment"`
	TrackNumber string `json:"track_number"`
	UpdatedBy   string `json:"updated_by" validate:"required"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := domain.OrderStatus(req.Status)
	if !status.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	order, err := h.store.UpdateStatus(r.Context(), id, status, req.Comment, req.TrackNumber, req.UpdatedBy)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to update order status", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order status updated", "order_id", id, "status", status)
	h.writeJSON(w, http.StatusOK, order)
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
