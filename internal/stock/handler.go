package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/seastock/seastock/internal/catalog"
	"github.com/seastock/seastock/internal/observability"
	"github.com/seastock/seastock/internal/platform/httpx"
	"github.com/seastock/seastock/internal/shared"
)

// Handler exposes movement ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	approvals *shared.ApprovalRecorder
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler builds Handler. approvals and metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, approvals *shared.ApprovalRecorder, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		approvals: approvals,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handlePropose)
	r.Get("/movements", h.handleList)
	r.Get("/movements/{id}", h.handleGet)
	r.Get("/movements/{id}/history", h.handleHistory)
	r.Post("/movements/{id}/approve", h.handleApprove)
	r.Post("/movements/{id}/reject", h.handleReject)
	r.Post("/movements/{id}/cancel", h.handleCancel)
}

// ProposeForm is the request payload for creating a movement.
type ProposeForm struct {
	Type         string          `json:"movement_type" validate:"required"`
	ProductID    int64           `json:"product_id"`
	BoxChange    int64           `json:"box_change"`
	KgChange     decimal.Decimal `json:"kg_change"`
	Note         string          `json:"note"`
	FieldChanged string          `json:"field_changed"`
	OldValue     string          `json:"old_value"`
	NewValue     string          `json:"new_value"`
	ActorID      int64           `json:"actor_id" validate:"required"`
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	var form ProposeForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.Propose(r.Context(), ProposeInput{
		Type:         MovementType(form.Type),
		ProductID:    form.ProductID,
		BoxChange:    form.BoxChange,
		KgChange:     form.KgChange,
		Note:         form.Note,
		FieldChanged: form.FieldChanged,
		OldValue:     form.OldValue,
		NewValue:     form.NewValue,
		ActorID:      form.ActorID,
	})
	if err != nil {
		h.respondError(w, "propose movement", err)
		return
	}
	h.metrics.ObserveMovement(string(m.Type), "proposed")
	httpx.JSON(w, http.StatusCreated, m)
}

type decisionForm struct {
	ActorID    int64  `json:"actor_id" validate:"required"`
	Reason     string `json:"reason"`
	Privileged bool   `json:"privileged"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, form, ok := h.decisionParams(w, r)
	if !ok {
		return
	}
	m, err := h.service.Approve(r.Context(), id, form.ActorID)
	if err != nil {
		h.respondError(w, "approve movement", err)
		return
	}
	h.metrics.ObserveMovement(string(m.Type), "approved")
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, form, ok := h.decisionParams(w, r)
	if !ok {
		return
	}
	m, err := h.service.Reject(r.Context(), id, form.ActorID, form.Reason)
	if err != nil {
		h.respondError(w, "reject movement", err)
		return
	}
	h.metrics.ObserveMovement(string(m.Type), "rejected")
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, form, ok := h.decisionParams(w, r)
	if !ok {
		return
	}
	m, err := h.service.Cancel(r.Context(), id, form.ActorID, form.Privileged)
	if err != nil {
		h.respondError(w, "cancel movement", err)
		return
	}
	h.metrics.ObserveMovement(string(m.Type), "cancelled")
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.movementID(w, r)
	if !ok {
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.movementID(w, r)
	if !ok {
		return
	}
	if h.approvals == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Available", "approval history is not configured")
		return
	}
	logs, err := h.approvals.List(r.Context(), approvalModule, id)
	if err != nil {
		h.respondError(w, "movement history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": logs})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	filter := ListFilter{
		Status:    MovementStatus(r.URL.Query().Get("status")),
		Type:      MovementType(r.URL.Query().Get("type")),
		ProductID: productID,
		Page:      page,
		PerPage:   perPage,
	}
	movements, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements":  movements,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) movementID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "movement id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decisionParams(w http.ResponseWriter, r *http.Request) (int64, decisionForm, bool) {
	id, ok := h.movementID(w, r)
	if !ok {
		return 0, decisionForm{}, false
	}
	var form decisionForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return 0, decisionForm{}, false
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return 0, decisionForm{}, false
	}
	return id, form, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", vErr.Error())
	case errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotPending):
		// Already handled by another decision; callers treat this as
		// idempotent rather than a failure.
		httpx.Problem(w, http.StatusConflict, "Not Pending", err.Error())
	case errors.Is(err, ErrNotRequester):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrMovementNotFound), errors.Is(err, catalog.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrParsePayload):
		// Consistency faults: detail stays server-side.
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "request could not be completed")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
