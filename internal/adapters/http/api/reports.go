package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/membros/internal/app"
	"github.com/okian/membros/internal/domain/period"
	"github.com/okian/membros/internal/domain/types"
	"github.com/okian/membros/pkg/logger"
)

// GraduationDependencies defines the interface for graduation reports.
type GraduationDependencies interface {
	GraduationReport(ctx context.Context, divisionID int64, r period.Range) (types.GraduationReport, error)
}

// DivisionDependencies defines the interface for division reports.
type DivisionDependencies interface {
	DivisionReport(ctx context.Context, f service.DivisionFilter) ([]types.DivisionActions, error)
}

type graduationQuery struct {
	DivisionID string `json:"divisionId" validate:"required,number"`
	StartDate  string `json:"startDate" validate:"required,ddmmyyyy"`
	EndDate    string `json:"endDate" validate:"required,ddmmyyyy"`
}

// GraduationHandler handles graduation report requests.
type GraduationHandler struct {
	deps      GraduationDependencies
	validator *Validator
	location  *time.Location
	logger    logger.Logger
}

// NewGraduationHandler creates a new graduation report handler.
func NewGraduationHandler(deps GraduationDependencies, v *Validator, loc *time.Location, log logger.Logger) *GraduationHandler {
	return &GraduationHandler{deps: deps, validator: v, location: loc, logger: log}
}

// HandleGet handles GET /reports/graduation?divisionId=&startDate=&endDate=.
func (h *GraduationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_graduation_report"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	req := graduationQuery{
		DivisionID: q.Get("divisionId"),
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	divisionID, err := strconv.ParseInt(req.DivisionID, 10, 64)
	if err != nil || divisionID < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", &ValidationError{Fields: map[string]string{
			"divisionId": "divisionId deve ser um número inteiro positivo",
		}})
		return
	}
	rng, err := period.ParseRange(req.StartDate, req.EndDate, h.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	report, err := h.deps.GraduationReport(r.Context(), divisionID, rng)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type divisionQuery struct {
	RegionalID string `json:"regionalId" validate:"omitempty,number"`
	StartDate  string `json:"startDate" validate:"omitempty,isodate"`
	EndDate    string `json:"endDate" validate:"omitempty,isodate"`
}

// DivisionHandler handles division social action report requests.
type DivisionHandler struct {
	deps      DivisionDependencies
	validator *Validator
	location  *time.Location
	logger    logger.Logger
}

// NewDivisionHandler creates a new division report handler.
func NewDivisionHandler(deps DivisionDependencies, v *Validator, loc *time.Location, log logger.Logger) *DivisionHandler {
	return &DivisionHandler{deps: deps, validator: v, location: loc, logger: log}
}

// HandleGet handles GET /reports/division?regionalId=&startDate=&endDate=.
// Every parameter is optional; the end date covers its whole day.
func (h *DivisionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_division_report"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	req := divisionQuery{
		RegionalID: q.Get("regionalId"),
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	var f service.DivisionFilter
	if req.RegionalID != "" {
		id, err := strconv.ParseInt(req.RegionalID, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		f.RegionalID = &id
	}
	if req.StartDate != "" {
		start, err := period.ParseISODate(req.StartDate, h.location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		f.Start = &start
	}
	if req.EndDate != "" {
		end, err := period.ParseISODate(req.EndDate, h.location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		end = period.EndOfDay(end)
		f.End = &end
	}

	out, err := h.deps.DivisionReport(r.Context(), f)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
