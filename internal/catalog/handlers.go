package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/kasse-pos/internal/common"
)

// Handler exposes product lookups for the register UI.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Product handles GET /api/v1/products/{id}. The returned discount fields are already sanitised.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, mapError(err))
		return
	}
	p.ClampDiscount()
	common.Data(w, http.StatusOK, p)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("PRODUCT_NOT_FOUND", "product not found", http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidInput):
		return common.NewAppError("INVALID_INPUT", err.Error(), http.StatusBadRequest, err)
	default:
		return common.NewAppError("CATALOG_UNAVAILABLE", "catalog unavailable", http.StatusBadGateway, err)
	}
}
