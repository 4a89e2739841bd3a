// Package httptransport assembles the full HTTP surface of the engine.
package httptransport

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stealwatch/internal/platform/middleware"
	platformredis "stealwatch/internal/platform/redis"
	"stealwatch/internal/transport/http/shared"
)

// Registrar mounts a handler group onto the router.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries everything the router needs.
type Deps struct {
	Logger   *slog.Logger
	DB       *sql.DB
	Redis    *platformredis.Client
	Handlers []Registrar
}

// NewRouter wires middleware, operational endpoints and all handler groups.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))

	r.Get("/health", healthHandler(deps))
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range deps.Handlers {
		h.Register(r)
	}
	return r
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				checks["postgres"] = "down"
				healthy = false
			} else {
				checks["postgres"] = "ok"
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(ctx); err != nil {
				// The cache is optional; a dead cache degrades, it does not fail.
				checks["redis"] = "down"
			} else {
				checks["redis"] = "ok"
			}
		}

		status := http.StatusOK
		state := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		shared.WriteJSON(w, status, map[string]any{
			"status": state,
			"checks": checks,
		})
	}
}
