package register

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/kasse-pos/internal/cart"
	"github.com/noah-isme/kasse-pos/internal/catalog"
	"github.com/noah-isme/kasse-pos/internal/common"
	"github.com/noah-isme/kasse-pos/internal/deposit"
	"github.com/noah-isme/kasse-pos/internal/payment"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

// Handler exposes register sessions over HTTP.
type Handler struct {
	registry *Registry
	validate *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Registry *Registry
	Validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validate
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Handler{registry: cfg.Registry, validate: v}
}

// Middlewares lets the router attach cross-cutting guards to specific endpoints.
type Middlewares struct {
	Checkout []func(http.Handler) http.Handler
	Redeem   []func(http.Handler) http.Handler
}

// Mount registers the session routes on r.
func (h *Handler) Mount(r chi.Router, mw Middlewares) {
	r.Post("/", h.Create)
	r.Route("/{sessionID}", func(s chi.Router) {
		s.Get("/", h.Get)
		s.Delete("/", h.Close)
		s.Get("/summary", h.Summary)
		s.Post("/items", h.AddItem)
		s.Post("/items/{productID}/decrement", h.RemoveItem)
		s.Delete("/items/{productID}", h.DeleteItem)
		s.With(mw.Redeem...).Post("/vouchers", h.ApplyVoucher)
		s.Delete("/vouchers/{voucherID}", h.RemoveVoucher)
		s.With(mw.Redeem...).Post("/deposits", h.ApplyDeposit)
		s.Delete("/deposits/{receiptID}", h.RemoveDeposit)
		s.Post("/undo", h.Undo)
		s.Post("/redo", h.Redo)
		s.Put("/autosave", h.SetAutoSave)
		s.Post("/new-sale", h.NewSale)
		s.With(mw.Checkout...).Post("/checkout", h.Checkout)
	})
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=64"`
}

type voucherRequest struct {
	Code   string  `json:"code" validate:"required"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

type depositRequest struct {
	ReceiptID string `json:"receiptId" validate:"required,max=64"`
}

type autoSaveRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type cardRequest struct {
	Number string `json:"cardNumber" validate:"required"`
	Holder string `json:"holder"`
	Expiry string `json:"expiry"`
}

type checkoutRequest struct {
	Method       string       `json:"paymentMethod" validate:"required,oneof=cash card"`
	CashReceived string       `json:"cashReceived" validate:"omitempty,max=32"`
	Card         *cardRequest `json:"cardDetails"`
}

// Create opens a new session.
func (h *Handler) Create(w http.ResponseWriter, _ *http.Request) {
	s := h.registry.Create()
	common.Data(w, http.StatusCreated, s.View())
}

// Get returns the session view, resuming it from persisted history when necessary.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Resume(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		common.WriteError(w, mapError(err))
		return
	}
	common.Data(w, http.StatusOK, s.View())
}

// Close ends a session and drops its history.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Close(chi.URLParam(r, "sessionID")); err != nil {
		common.WriteError(w, mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Summary returns only the pricing summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, s.Summary())
}

// AddItem adds one unit of a product.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload addItemRequest
	if !h.decode(w, r, &payload) {
		return
	}
	h.respond(w, s, s.AddProduct(r.Context(), strings.TrimSpace(payload.ProductID)))
}

// RemoveItem removes one unit of a product.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.RemoveProduct(r.Context(), chi.URLParam(r, "productID")))
}

// DeleteItem removes a product line entirely.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.DeleteProduct(r.Context(), chi.URLParam(r, "productID")))
}

// ApplyVoucher redeems a voucher code against the transaction.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload voucherRequest
	if !h.decode(w, r, &payload) {
		return
	}
	_, err := s.ApplyVoucher(r.Context(), payload.Code, payload.Amount)
	h.respond(w, s, err)
}

// RemoveVoucher removes an applied voucher.
func (h *Handler) RemoveVoucher(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.RemoveVoucher(r.Context(), chi.URLParam(r, "voucherID")))
}

// ApplyDeposit credits a deposit receipt.
func (h *Handler) ApplyDeposit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload depositRequest
	if !h.decode(w, r, &payload) {
		return
	}
	_, err := s.ApplyDeposit(r.Context(), payload.ReceiptID)
	h.respond(w, s, err)
}

// RemoveDeposit removes an applied deposit receipt.
func (h *Handler) RemoveDeposit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, s, s.RemoveDeposit(r.Context(), chi.URLParam(r, "receiptID")))
}

// Undo restores the previous state.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !s.Undo() {
		common.JSONError(w, http.StatusConflict, "NOTHING_TO_UNDO", "nothing to undo", nil)
		return
	}
	common.Data(w, http.StatusOK, s.View())
}

// Redo re-applies the last undone state.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !s.Redo() {
		common.JSONError(w, http.StatusConflict, "NOTHING_TO_REDO", "nothing to redo", nil)
		return
	}
	common.Data(w, http.StatusOK, s.View())
}

// SetAutoSave toggles automatic history recording.
func (h *Handler) SetAutoSave(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload autoSaveRequest
	if !h.decode(w, r, &payload) {
		return
	}
	s.SetAutoSaveEnabled(*payload.Enabled)
	common.Data(w, http.StatusOK, s.View())
}

// NewSale discards the current transaction.
func (h *Handler) NewSale(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.NewSale()
	common.Data(w, http.StatusOK, s.View())
}

// Checkout submits the sale to the backend.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload checkoutRequest
	if !h.decode(w, r, &payload) {
		return
	}
	method, err := payment.ParseMethod(payload.Method)
	if err != nil {
		common.WriteError(w, mapError(err))
		return
	}
	req := CheckoutRequest{Method: method, CashReceived: payload.CashReceived}
	if payload.Card != nil {
		req.Card = &payment.CardDetails{Number: payload.Card.Number, Holder: payload.Card.Holder, Expiry: payload.Card.Expiry}
	}
	res, err := s.Checkout(r.Context(), req)
	if err != nil {
		common.WriteError(w, mapError(err).WithDetails(map[string]any{"result": res, "session": s.View()}))
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"result": res, "session": s.View()})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.registry.Resume(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		common.WriteError(w, mapError(err))
		return nil, false
	}
	return s, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.WriteError(w, common.NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid payload", validationDetails(err))
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, s *Session, err error) {
	if err != nil {
		common.WriteError(w, mapError(err).WithDetails(map[string]any{"session": s.View()}))
		return
	}
	common.Data(w, http.StatusOK, s.View())
}

func validationDetails(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fe.Field()] = fe.Tag()
		}
	}
	return out
}

func mapError(err error) *common.AppError {
	conflict := func(code string) *common.AppError {
		return common.NewAppError(code, err.Error(), http.StatusConflict, err)
	}
	unprocessable := func(code string) *common.AppError {
		return common.NewAppError(code, err.Error(), http.StatusUnprocessableEntity, err)
	}
	notFound := func(code string) *common.AppError {
		return common.NewAppError(code, err.Error(), http.StatusNotFound, err)
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return notFound("SESSION_NOT_FOUND")
	case errors.Is(err, catalog.ErrNotFound):
		return notFound("PRODUCT_NOT_FOUND")
	case errors.Is(err, ErrNotInCart):
		return notFound("NOT_IN_CART")
	case errors.Is(err, ErrVoucherNotApplied):
		return notFound("VOUCHER_NOT_APPLIED")
	case errors.Is(err, ErrDepositNotApplied):
		return notFound("DEPOSIT_NOT_APPLIED")
	case errors.Is(err, voucher.ErrNotFound):
		return notFound("VOUCHER_NOT_FOUND")
	case errors.Is(err, deposit.ErrNotFound):
		return notFound("DEPOSIT_NOT_FOUND")
	case errors.Is(err, cart.ErrOutOfStock):
		return conflict("OUT_OF_STOCK")
	case errors.Is(err, cart.ErrStockExceeded):
		return conflict("STOCK_EXCEEDED")
	case errors.Is(err, cart.ErrBundleUnavailable):
		return conflict("BUNDLE_UNAVAILABLE")
	case errors.Is(err, cart.ErrConnectedItem):
		return conflict("CONNECTED_ITEM")
	case errors.Is(err, voucher.ErrAlreadyApplied):
		return conflict("VOUCHER_ALREADY_APPLIED")
	case errors.Is(err, voucher.ErrExpired):
		return conflict("VOUCHER_EXPIRED")
	case errors.Is(err, voucher.ErrExhausted):
		return conflict("VOUCHER_EXHAUSTED")
	case errors.Is(err, voucher.ErrNothingPayable):
		return conflict("NOTHING_PAYABLE")
	case errors.Is(err, deposit.ErrAlreadyApplied):
		return conflict("DEPOSIT_ALREADY_APPLIED")
	case errors.Is(err, deposit.ErrAlreadyRedeemed):
		return conflict("DEPOSIT_ALREADY_REDEEMED")
	case errors.Is(err, payment.ErrEmptyCart):
		return conflict("EMPTY_CART")
	case errors.Is(err, ErrInsufficientCash):
		return unprocessable("INSUFFICIENT_CASH")
	case errors.Is(err, payment.ErrUnsupportedMethod):
		return unprocessable("UNSUPPORTED_PAYMENT_METHOD")
	case errors.Is(err, voucher.ErrInvalidFormat):
		return unprocessable("INVALID_VOUCHER_FORMAT")
	case errors.Is(err, voucher.ErrUnsupported):
		return unprocessable("VOUCHER_UNSUPPORTED")
	case errors.Is(err, deposit.ErrInvalidInput), errors.Is(err, catalog.ErrInvalidInput), errors.Is(err, cart.ErrInvalidInput):
		return unprocessable("INVALID_INPUT")
	case errors.Is(err, payment.ErrSubmissionFailed):
		return common.NewAppError("SALE_SUBMISSION_FAILED", "sale submission failed", http.StatusBadGateway, err)
	default:
		return common.NewAppError("UPSTREAM_UNAVAILABLE", "backend unavailable", http.StatusBadGateway, err)
	}
}
