// Package ports defines shared interfaces for the watchlist engine.
// Interfaces are placed here when consumed by multiple services to avoid
// duplication.
package ports

import (
	"context"
	"log/slog"

	"stealwatch/internal/audit"
	"stealwatch/internal/platform/middleware"
	"stealwatch/internal/watchlist/models"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CriteriaStore manages analyst watch criteria of both kinds.
type CriteriaStore interface {
	// ListActive returns keyword criteria currently enabled for matching.
	ListActive(ctx context.Context) ([]*models.Criterion, error)

	// ListActiveCard returns BIN criteria currently enabled for matching.
	ListActiveCard(ctx context.Context) ([]*models.CardCriterion, error)

	List(ctx context.Context) ([]*models.Criterion, error)
	ListCard(ctx context.Context) ([]*models.CardCriterion, error)

	Create(ctx context.Context, c *models.Criterion) (*models.Criterion, error)
	CreateCard(ctx context.Context, c *models.CardCriterion) (*models.CardCriterion, error)

	// Deactivate soft-disables a criterion without touching its alerts.
	Deactivate(ctx context.Context, id int64) error
	DeactivateCard(ctx context.Context, id int64) error

	// Delete removes an unreferenced criterion. Returns sentinel.ErrReferenced
	// when alerts still point at it and sentinel.ErrNotFound when absent.
	Delete(ctx context.Context, id int64) error
	DeleteCard(ctx context.Context, id int64) error

	// Stats aggregates per-criterion alert counts by status.
	Stats(ctx context.Context) ([]*models.CriterionStats, error)
	CardStats(ctx context.Context) ([]*models.CardCriterionStats, error)
}

// RecordStore reads harvested records. The engine never mutates these.
type RecordStore interface {
	// FindCredentialsByField returns up to limit credential records whose
	// fieldType-selected attribute contains keyword case-insensitively,
	// excluding records already alerted for criterionID.
	FindCredentialsByField(ctx context.Context, fieldType models.FieldType, keyword string, criterionID int64, limit int) ([]*models.CredentialRecord, error)

	// FindCardsByBIN returns up to limit card records whose leading six
	// digits equal bin exactly, excluding cards already alerted for
	// criterionID.
	FindCardsByBIN(ctx context.Context, bin string, criterionID int64, limit int) ([]*models.CardRecord, error)

	// GetCredential returns the credential or sentinel.ErrNotFound.
	GetCredential(ctx context.Context, id int64) (*models.CredentialRecord, error)

	// GetHostMetadata returns the host row for a credential, or nil when the
	// credential carries no host reference or the host row is gone.
	GetHostMetadata(ctx context.Context, hostID int64) (*models.HostMetadata, error)
}

// AlertStore persists keyword alerts and enforces the (criterion, record)
// uniqueness guarantee.
type AlertStore interface {
	// CreateIfAbsent inserts the alert unless one already exists for its
	// (criterion, record) pair. Returns the stored alert and true when a row
	// was inserted, (nil, false) on a duplicate.
	CreateIfAbsent(ctx context.Context, alert *models.Alert) (*models.Alert, bool, error)

	Get(ctx context.Context, id int64) (*models.Alert, error)

	// List returns credential alerts newest-first with an optional status
	// filter, bounded by limit/offset.
	List(ctx context.Context, filter AlertFilter) ([]*models.Alert, int, error)

	// SetStatus moves an alert into a terminal review state. Returns
	// sentinel.ErrNotFound for unknown ids. Never moves an alert back to new.
	SetStatus(ctx context.Context, id int64, status models.AlertStatus, reviewerID int64) error

	// ListMissingDetails returns up to limit credential alerts that have no
	// detail projection row, newest-first.
	ListMissingDetails(ctx context.Context, limit int) ([]*models.Alert, error)

	// CountByDetailPresence returns total credential alerts and how many of
	// them have a detail row.
	CountByDetailPresence(ctx context.Context) (total int, withDetails int, err error)
}

// CardAlertStore persists card alerts with the analogous uniqueness gate.
type CardAlertStore interface {
	CreateIfAbsent(ctx context.Context, alert *models.CardAlert) (*models.CardAlert, bool, error)
	Get(ctx context.Context, id int64) (*models.CardAlert, error)
	List(ctx context.Context, filter AlertFilter) ([]*models.CardAlert, int, error)
	SetStatus(ctx context.Context, id int64, status models.AlertStatus, reviewerID int64) error
}

// DetailStore owns the denormalized alert detail projection.
type DetailStore interface {
	// Upsert writes the detail row for an alert, replacing any previous one.
	// At most one row per alert survives concurrent writers.
	Upsert(ctx context.Context, detail *models.AlertDetail) error

	// Get returns the projection for an alert, or nil when missing.
	Get(ctx context.Context, alertID int64) (*models.AlertDetail, error)
}

// AlertFilter bounds and filters alert listings.
type AlertFilter struct {
	Status   models.AlertStatus
	Severity models.Severity
	Limit    int
	Offset   int
}

// LogAudit logs an audit event and forwards it to the publisher if one is
// configured. Emit failures are logged, never propagated.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event, attrs ...any) {
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		event.RequestID = requestID
	}

	args := append(attrs, "event", string(event.Action), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, string(event.Action), args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
