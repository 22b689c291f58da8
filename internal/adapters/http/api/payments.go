package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/membros/internal/app"
	"github.com/okian/membros/internal/domain/types"
	"github.com/okian/membros/pkg/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

// LatePaymentDependencies defines the interface for recording and listing
// late payments.
type LatePaymentDependencies interface {
	RecordLatePayment(ctx context.Context, in service.LatePaymentInput) (types.LatePaymentRecord, error)
	LatePayments(ctx context.Context, personID int64, page, limit int) ([]types.LatePaymentRecord, error)
}

// latePaymentRequest mirrors the OpenAPI schema for POST /late-payments.
type latePaymentRequest struct {
	PersonID int64      `json:"personId" validate:"required,gt=0"`
	Year     int        `json:"year" validate:"required,gte=1"`
	Month    int        `json:"month" validate:"required,min=1,max=12"`
	PaidAt   *time.Time `json:"paidAt"`
	Notes    *string    `json:"notes" validate:"omitempty,max=255"`
}

type latePaymentListQuery struct {
	ID    string `json:"id" validate:"required,number"`
	Page  string `json:"page" validate:"omitempty,number"`
	Limit string `json:"limit" validate:"omitempty,number"`
}

// LatePaymentHandler handles late payment requests.
type LatePaymentHandler struct {
	deps      LatePaymentDependencies
	validator *Validator
	logger    logger.Logger
}

// NewLatePaymentHandler creates a new late payment handler.
func NewLatePaymentHandler(deps LatePaymentDependencies, v *Validator, log logger.Logger) *LatePaymentHandler {
	return &LatePaymentHandler{deps: deps, validator: v, logger: log}
}

// HandlePost handles POST /late-payments requests.
func (h *LatePaymentHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_late_payment"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req latePaymentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	created, err := h.deps.RecordLatePayment(r.Context(), service.LatePaymentInput{
		PersonID: req.PersonID,
		Year:     req.Year,
		Month:    req.Month,
		PaidAt:   req.PaidAt,
		Notes:    req.Notes,
	})
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleList handles GET /persons/{id}/late-payments?page=&limit=.
func (h *LatePaymentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_late_payments"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	req := latePaymentListQuery{
		ID:    r.PathValue("id"),
		Page:  q.Get("page"),
		Limit: q.Get("limit"),
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	personID, err := strconv.ParseInt(req.ID, 10, 64)
	if err != nil || personID < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", &ValidationError{Fields: map[string]string{
			"id": "id deve ser um número inteiro positivo",
		}})
		return
	}
	page := queryInt(req.Page, 1)
	limit := queryInt(req.Limit, service.DefaultPageSize)

	list, err := h.deps.LatePayments(r.Context(), personID, page, limit)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	if list == nil {
		list = []types.LatePaymentRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}

// queryInt parses an already validated numeric parameter, falling back to
// def when it is empty or out of the int range.
func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
