package handler

import (
	"net/http"

	"stealwatch/internal/transport/http/shared"
)

// handleForceSweep runs both matching sweeps now. Concurrent calls join the
// in-flight run instead of stacking.
func (h *Handler) handleForceSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keyword, err := h.maintenance.TriggerKeyword(ctx)
	if err != nil {
		h.writeServiceError(w, r, err, "keyword sweep failed")
		return
	}
	card, err := h.maintenance.TriggerCard(ctx)
	if err != nil {
		h.writeServiceError(w, r, err, "card sweep failed")
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts_created":      keyword,
		"card_alerts_created": card,
	})
}

func (h *Handler) handleForceBackfill(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.maintenance.TriggerReconcile(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "backfill failed")
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"details_backfilled": repaired,
	})
}
