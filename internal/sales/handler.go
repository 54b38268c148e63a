package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/seastock/seastock/internal/allocation"
	"github.com/seastock/seastock/internal/catalog"
	"github.com/seastock/seastock/internal/observability"
	"github.com/seastock/seastock/internal/platform/httpx"
	"github.com/seastock/seastock/internal/shared"
)

// Handler exposes sale endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler builds Handler. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.handleExecute)
	r.Post("/sales/plan", h.handlePlan)
	r.Get("/sales", h.handleList)
	r.Get("/sales/{id}", h.handleGet)
}

// PlanForm is the request payload for a dry-run allocation.
type PlanForm struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Boxes     int64           `json:"boxes"`
	Kg        decimal.Decimal `json:"kg"`
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	var form PlanForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.PlanAllocation(r.Context(), PlanInput{
		ProductID: form.ProductID,
		Boxes:     form.Boxes,
		Kg:        form.Kg,
	})
	if err != nil {
		h.respondError(w, "plan allocation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// ExecuteForm is the request payload for executing a sale.
type ExecuteForm struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	Boxes          int64           `json:"boxes"`
	Kg             decimal.Decimal `json:"kg"`
	PaymentMethod  string          `json:"payment_method" validate:"required"`
	PaymentStatus  string          `json:"payment_status" validate:"required"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	ActorID        int64           `json:"actor_id" validate:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var form ExecuteForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if form.IdempotencyKey == "" {
		form.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	result, err := h.service.ExecuteSale(r.Context(), ExecuteInput{
		ProductID:      form.ProductID,
		Boxes:          form.Boxes,
		Kg:             form.Kg,
		PaymentMethod:  PaymentMethod(form.PaymentMethod),
		PaymentStatus:  PaymentStatus(form.PaymentStatus),
		AmountPaid:     form.AmountPaid,
		ActorID:        form.ActorID,
		IdempotencyKey: form.IdempotencyKey,
	})
	if err != nil {
		h.respondError(w, "execute sale", err)
		return
	}
	h.metrics.ObserveSale(result.Sale.BoxesUnboxed)
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "sale id must be a positive integer")
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	filter := ListFilter{
		ProductID: productID,
		From:      parseDate(r.URL.Query().Get("from")),
		To:        parseDate(r.URL.Query().Get("to")),
		Page:      page,
		PerPage:   perPage,
	}
	sales, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sales":      sales,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidPayment), errors.Is(err, allocation.ErrInvalidRequest):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, allocation.ErrInsufficientBoxes),
		errors.Is(err, allocation.ErrInsufficientInventory),
		errors.Is(err, allocation.ErrInvalidRatio):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cannot Fulfill", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrSaleNotFound), errors.Is(err, catalog.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, allocation.ErrInconsistentPlan):
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "request could not be completed")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
