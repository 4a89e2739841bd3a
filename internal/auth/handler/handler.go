// Package handler exposes login over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stealwatch/internal/auth/models"
	"stealwatch/internal/auth/service"
	"stealwatch/internal/platform/middleware"
	"stealwatch/internal/transport/http/shared"
	dErrors "stealwatch/pkg/errors"
)

type Service interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Register(ctx context.Context, username, password, email, role string) (*models.User, error)
}

type Handler struct {
	logger     *slog.Logger
	auth       Service
	adminToken string
}

func New(auth Service, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		auth:       auth,
		adminToken: adminToken,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/login", h.handleLogin)

	// Account creation is an operator task, guarded by the admin token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(h.adminToken, h.logger))
		r.Post("/api/users", h.handleCreateUser)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(r.Context(), "login failed",
				"request_id", middleware.GetRequestID(r.Context()),
				"error", err,
			)
			shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "login failed"))
			return
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Password, req.Email, req.Role)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(r.Context(), "user creation failed",
				"request_id", middleware.GetRequestID(r.Context()),
				"error", err,
			)
			shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "user creation failed"))
			return
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, user)
}
