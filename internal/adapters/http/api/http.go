// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/membros/internal/adapters/repository"
	service "github.com/okian/membros/internal/app"
	"github.com/okian/membros/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	GraduationDependencies
	DivisionDependencies
	LatePaymentDependencies
	LoginDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	graduationHandler  *GraduationHandler
	divisionHandler    *DivisionHandler
	latePaymentHandler *LatePaymentHandler
	loginHandler       *LoginHandler
	auth               *Authenticator
}

// ServerOption configures NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	location  *time.Location
	jwtSecret string
	logger    logger.Logger
}

// WithLocation sets the time zone request dates are interpreted in.
func WithLocation(loc *time.Location) ServerOption {
	return func(o *serverOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithJWTSecret enables bearer token authentication on the business routes.
func WithJWTSecret(secret string) ServerOption {
	return func(o *serverOptions) { o.jwtSecret = secret }
}

// WithLogger sets the logger used for server errors.
func WithLogger(l logger.Logger) ServerOption {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	o := serverOptions{location: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Named("api")
	}

	v := NewValidator()
	auth := NewAuthenticator(o.jwtSecret)
	s := &Server{
		healthHandler:      NewHealthHandler(),
		graduationHandler:  NewGraduationHandler(deps, v, o.location, o.logger),
		divisionHandler:    NewDivisionHandler(deps, v, o.location, o.logger),
		latePaymentHandler: NewLatePaymentHandler(deps, v, o.logger),
		auth:               auth,
	}
	// Tokens can only be issued when a signing secret is configured.
	if auth != nil {
		s.loginHandler = NewLoginHandler(deps, v, auth, o.logger)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/reports/graduation", MetricsMiddleware(s.auth.Middleware(s.graduationHandler.HandleGet), "graduation_report"))
	mux.HandleFunc("/reports/division", MetricsMiddleware(s.auth.Middleware(s.divisionHandler.HandleGet), "division_report"))
	mux.HandleFunc("/late-payments", MetricsMiddleware(s.auth.Middleware(s.latePaymentHandler.HandlePost), "late_payments"))
	mux.HandleFunc("/persons/{id}/late-payments", MetricsMiddleware(s.auth.Middleware(s.latePaymentHandler.HandleList), "list_late_payments"))
	if s.loginHandler != nil {
		mux.HandleFunc("/users/login", MetricsMiddleware(s.loginHandler.HandlePost, "login"))
	}
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	resp := errorResponse{Code: code, Message: msg}
	var verr *ValidationError
	if errors.As(err, &verr) {
		resp.Message = "parâmetros inválidos"
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}

// writeServiceError translates service and repository errors to responses.
// Unclassified errors are logged and reported without detail.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrDivisionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Message: "Divisão não encontrada"})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, service.ErrInvalidRange), errors.Is(err, service.ErrInvalidPeriod), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	case errors.Is(err, repository.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "conflict", Wrap(op, err))
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
	case errors.Is(err, service.ErrInactiveUser):
		writeError(w, http.StatusForbidden, "forbidden", NewKind(op, ErrForbidden))
	default:
		fields := []logger.Field{
			logger.String("op", op),
			logger.String("requestId", RequestIDFromContext(ctx)),
			logger.Error(err),
		}
		if claims, ok := ClaimsFromContext(ctx); ok {
			fields = append(fields, logger.String("subject", claims.Subject))
		}
		log.Error(ctx, "request failed", fields...)
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
