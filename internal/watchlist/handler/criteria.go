package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"stealwatch/internal/platform/middleware"
	"stealwatch/internal/transport/http/shared"
	"stealwatch/internal/watchlist/models"
	criteriasvc "stealwatch/internal/watchlist/service/criteria"
	dErrors "stealwatch/pkg/errors"
)

// CriteriaService is the watch-rule surface the criteria handler needs.
type CriteriaService interface {
	List(ctx context.Context) ([]*models.Criterion, error)
	ListCard(ctx context.Context) ([]*models.CardCriterion, error)
	Create(ctx context.Context, c *models.Criterion, actorID int64) (*models.Criterion, error)
	CreateCard(ctx context.Context, c *models.CardCriterion, actorID int64) (*models.CardCriterion, error)
	Deactivate(ctx context.Context, id int64) error
	DeactivateCard(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64, actorID int64) error
	DeleteCard(ctx context.Context, id int64, actorID int64) error
	Stats(ctx context.Context) (*criteriasvc.WatchlistStats, error)
}

type createCriterionRequest struct {
	Keyword     string `json:"keyword"`
	FieldType   string `json:"field_type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

type createCardCriterionRequest struct {
	BIN         string `json:"bin_number"`
	BankName    string `json:"bank_name"`
	Country     string `json:"country"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

func (h *Handler) handleListCriteria(w http.ResponseWriter, r *http.Request) {
	items, err := h.criteria.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list criteria")
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"watchlist": items})
}

func (h *Handler) handleCreateCriterion(w http.ResponseWriter, r *http.Request) {
	var req createCriterionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	created, err := h.criteria.Create(r.Context(), &models.Criterion{
		Keyword:     req.Keyword,
		FieldType:   models.FieldType(req.FieldType),
		Severity:    models.Severity(req.Severity),
		Description: req.Description,
	}, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create criterion")
		return
	}
	shared.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleDeactivateCriterion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.criteria.Deactivate(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "failed to deactivate criterion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteCriterion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.criteria.Delete(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		h.writeServiceError(w, r, err, "failed to delete criterion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCardCriteria(w http.ResponseWriter, r *http.Request) {
	items, err := h.criteria.ListCard(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list card criteria")
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"card_watchlist": items})
}

func (h *Handler) handleCreateCardCriterion(w http.ResponseWriter, r *http.Request) {
	var req createCardCriterionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	created, err := h.criteria.CreateCard(r.Context(), &models.CardCriterion{
		BIN:         req.BIN,
		BankName:    req.BankName,
		Country:     req.Country,
		Severity:    models.Severity(req.Severity),
		Description: req.Description,
	}, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create card criterion")
		return
	}
	shared.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleDeactivateCardCriterion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.criteria.DeactivateCard(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "failed to deactivate card criterion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteCardCriterion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.criteria.DeleteCard(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		h.writeServiceError(w, r, err, "failed to delete card criterion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleWatchlistStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.criteria.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "failed to aggregate stats")
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

type binUploadRequest struct {
	Content string `json:"content"`
}

type binUploadResponse struct {
	Created []*models.CardCriterion `json:"created"`
	Skipped []string                `json:"skipped"`
	Errors  []string                `json:"errors"`
}

// handleUploadBINs bulk-loads card criteria from CSV lines shaped
// "BIN,Scheme,Bank,Country". Bad lines are reported, not fatal.
func (h *Handler) handleUploadBINs(w http.ResponseWriter, r *http.Request) {
	var req binUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "content is required"))
		return
	}

	actorID := middleware.GetUserID(r.Context())
	resp := binUploadResponse{Skipped: []string{}, Errors: []string{}, Created: []*models.CardCriterion{}}

	scanner := bufio.NewScanner(strings.NewReader(req.Content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if lineNo == 1 && strings.HasPrefix(strings.ToLower(line), "bin,") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 4 {
			resp.Errors = append(resp.Errors, "line "+strconv.Itoa(lineNo)+": expected BIN,Scheme,Bank,Country")
			continue
		}
		bin := strings.TrimSpace(parts[0])
		scheme := strings.TrimSpace(parts[1])
		bank := strings.TrimSpace(parts[2])
		country := strings.TrimSpace(parts[3])

		created, err := h.criteria.CreateCard(r.Context(), &models.CardCriterion{
			BIN:         bin,
			BankName:    bank,
			Country:     country,
			Severity:    models.SeverityHigh,
			Description: "Uploaded BIN for " + bank + " (" + scheme + ")",
		}, actorID)
		switch {
		case err == nil:
			resp.Created = append(resp.Created, created)
		case dErrors.Is(err, dErrors.CodeConflict):
			resp.Skipped = append(resp.Skipped, "BIN "+bin+" already on the watchlist")
		case dErrors.Is(err, dErrors.CodeBadRequest):
			resp.Errors = append(resp.Errors, "line "+strconv.Itoa(lineNo)+": "+err.Error())
		default:
			h.writeServiceError(w, r, err, "failed to upload bins")
			return
		}
	}

	shared.WriteJSON(w, http.StatusOK, resp)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid id"))
		return 0, false
	}
	return id, true
}
