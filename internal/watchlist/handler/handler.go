// Package handler exposes the watchlist engine over HTTP. Handlers stay
// thin: decode, delegate, translate errors.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stealwatch/internal/platform/middleware"
	"stealwatch/internal/transport/http/shared"
	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	alertsvc "stealwatch/internal/watchlist/service/alerts"
	dErrors "stealwatch/pkg/errors"
)

// AlertsService is the alert read/review surface the handler needs.
type AlertsService interface {
	List(ctx context.Context, filter ports.AlertFilter) ([]*alertsvc.AlertView, int, error)
	Get(ctx context.Context, id int64) (*alertsvc.AlertView, error)
	ListCard(ctx context.Context, filter ports.AlertFilter) ([]*models.CardAlert, int, error)
	Resolve(ctx context.Context, id int64, reviewerID int64) error
	MarkFalsePositive(ctx context.Context, id int64, reviewerID int64) error
	ResolveCard(ctx context.Context, id int64, reviewerID int64) error
	MarkCardFalsePositive(ctx context.Context, id int64, reviewerID int64) error
}

// CoverageService reports detail projection coverage.
type CoverageService interface {
	Coverage(ctx context.Context) (*models.Coverage, error)
	MissingSample(ctx context.Context, n int) ([]int64, error)
}

// Maintenance triggers sweeps on demand.
type Maintenance interface {
	TriggerKeyword(ctx context.Context) (int, error)
	TriggerCard(ctx context.Context) (int, error)
	TriggerReconcile(ctx context.Context) (int, error)
}

type Handler struct {
	logger       *slog.Logger
	criteria     CriteriaService
	alerts       AlertsService
	coverage     CoverageService
	maintenance  Maintenance
	jwtValidator middleware.JWTValidator
	adminToken   string
}

func New(
	criteria CriteriaService,
	alerts AlertsService,
	coverage CoverageService,
	maintenance Maintenance,
	jwtValidator middleware.JWTValidator,
	adminToken string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		logger:       logger,
		criteria:     criteria,
		alerts:       alerts,
		coverage:     coverage,
		maintenance:  maintenance,
		jwtValidator: jwtValidator,
		adminToken:   adminToken,
	}
}

// Register mounts all engine routes. Everything requires a bearer token;
// maintenance additionally requires the admin token.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		r.Route("/api/watchlist", func(r chi.Router) {
			r.Get("/", h.handleListCriteria)
			r.Post("/", h.handleCreateCriterion)
			r.Get("/stats", h.handleWatchlistStats)
			r.Post("/{id}/deactivate", h.handleDeactivateCriterion)
			r.Delete("/{id}", h.handleDeleteCriterion)
		})

		r.Route("/api/card-watchlist", func(r chi.Router) {
			r.Get("/", h.handleListCardCriteria)
			r.Post("/", h.handleCreateCardCriterion)
			r.Post("/upload", h.handleUploadBINs)
			r.Post("/{id}/deactivate", h.handleDeactivateCardCriterion)
			r.Delete("/{id}", h.handleDeleteCardCriterion)
		})

		r.Route("/api/alerts", func(r chi.Router) {
			r.Get("/", h.handleListAlerts)
			r.Get("/coverage", h.handleCoverage)
			r.Get("/{id}", h.handleGetAlert)
			r.Post("/{id}/resolve", h.handleResolveAlert)
			r.Post("/{id}/false-positive", h.handleFalsePositiveAlert)
		})

		r.Route("/api/card-alerts", func(r chi.Router) {
			r.Get("/", h.handleListCardAlerts)
			r.Post("/{id}/resolve", h.handleResolveCardAlert)
			r.Post("/{id}/false-positive", h.handleFalsePositiveCardAlert)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(h.adminToken, h.logger))
		r.Post("/api/maintenance/sweep", h.handleForceSweep)
		r.Post("/api/maintenance/backfill", h.handleForceBackfill)
	})
}

// writeServiceError logs internals and passes coded errors through.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		h.logger.ErrorContext(r.Context(), msg,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		shared.WriteError(w, dErrors.New(code, msg))
		return
	}
	shared.WriteError(w, err)
}
