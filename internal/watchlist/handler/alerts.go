package handler

import (
	"context"
	"net/http"
	"strconv"

	"stealwatch/internal/platform/middleware"
	"stealwatch/internal/transport/http/shared"
	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

func alertFilter(r *http.Request) ports.AlertFilter {
	q := r.URL.Query()
	filter := ports.AlertFilter{
		Status:   models.AlertStatus(q.Get("status")),
		Severity: models.Severity(q.Get("severity")),
		Limit:    defaultPageLimit,
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = min(n, maxPageLimit)
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	return filter
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	views, total, err := h.alerts.List(r.Context(), alertFilter(r))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list alerts")
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": views,
		"total":  total,
	})
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.alerts.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get alert")
		return
	}
	shared.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListCardAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, total, err := h.alerts.ListCard(r.Context(), alertFilter(r))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list card alerts")
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"card_alerts": alerts,
		"total":       total,
	})
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.alerts.Resolve)
}

func (h *Handler) handleFalsePositiveAlert(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.alerts.MarkFalsePositive)
}

func (h *Handler) handleResolveCardAlert(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.alerts.ResolveCard)
}

func (h *Handler) handleFalsePositiveCardAlert(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.alerts.MarkCardFalsePositive)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, reviewerID int64) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		h.writeServiceError(w, r, err, "failed to update alert")
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCoverage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cov, err := h.coverage.Coverage(ctx)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to compute coverage")
		return
	}
	sample, err := h.coverage.MissingSample(ctx, 10)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to sample missing details")
		return
	}
	shared.WriteJSON(w, http.StatusOK, coverageResponse{Coverage: cov, Sample: sample})
}

type coverageResponse struct {
	*models.Coverage
	Sample []int64 `json:"sample_missing_alert_ids"`
}
