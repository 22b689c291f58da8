package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/membros/internal/domain/model"
	"github.com/okian/membros/pkg/logger"
)

// Token lifetimes issued on login.
const (
	AccessTokenTTL  = 60 * time.Minute
	RefreshTokenTTL = 24 * time.Hour
)

// LoginDependencies defines the interface for credential checks.
type LoginDependencies interface {
	Authenticate(ctx context.Context, email, password string) (model.User, error)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginHandler exchanges user credentials for signed tokens.
type LoginHandler struct {
	deps      LoginDependencies
	validator *Validator
	auth      *Authenticator
	logger    logger.Logger
}

// NewLoginHandler creates a new login handler.
func NewLoginHandler(deps LoginDependencies, v *Validator, auth *Authenticator, log logger.Logger) *LoginHandler {
	return &LoginHandler{deps: deps, validator: v, auth: auth, logger: log}
}

// HandlePost handles POST /users/login requests.
func (h *LoginHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.login"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	u, err := h.deps.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	subject := strconv.FormatInt(u.ID, 10)
	access, err := h.auth.Issue(subject, AccessTokenTTL, u.Role)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	refresh, err := h.auth.Issue(subject, RefreshTokenTTL, u.Role)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: access, RefreshToken: refresh})
}
