package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	"stealwatch/pkg/platform/sentinel"
)

// PostgresStore persists keyword alerts in PostgreSQL. The UNIQUE constraint
// on (watchlist_id, record_id) is the deduplication gate: CreateIfAbsent
// relies on ON CONFLICT DO NOTHING, so concurrent sweeps racing on the same
// pair produce exactly one row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed alert store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const alertColumns = `id, watchlist_id, matched_field, matched_value, record_type, record_id, severity, status, reviewed_by, reviewed_at, created_at`

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, alert *models.Alert) (*models.Alert, bool, error) {
	if alert == nil {
		return nil, false, fmt.Errorf("alert is required")
	}
	query := `
		INSERT INTO alerts (watchlist_id, matched_field, matched_value, record_type, record_id, severity, status)
		VALUES ($1, $2, $3, 'credential', $4, $5, 'new')
		ON CONFLICT (watchlist_id, record_id) DO NOTHING
		RETURNING ` + alertColumns
	row := s.db.QueryRowContext(ctx, query,
		alert.CriterionID, string(alert.MatchedField), alert.MatchedValue, alert.RecordID, string(alert.Severity))
	created, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Duplicate (criterion, record) pair: absorbed, not an error.
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("create alert: %w", err)
	}
	return created, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ports.AlertFilter) ([]*models.Alert, int, error) {
	where := `WHERE record_type = 'credential'`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		where += fmt.Sprintf(" AND severity = $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM alerts %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		alertColumns, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// SetStatus moves an alert into a review state. The WHERE clause does not
// filter on current status: re-marking a terminal alert with the other
// terminal status is allowed, matching reviewer workflows, but nothing ever
// writes status back to new.
func (s *PostgresStore) SetStatus(ctx context.Context, id int64, status models.AlertStatus, reviewerID int64) error {
	query := `
		UPDATE alerts
		SET status = $2, reviewed_by = NULLIF($3, 0), reviewed_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, string(status), reviewerID, time.Now())
	if err != nil {
		return fmt.Errorf("set alert status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set alert status rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ListMissingDetails returns the newest credential alerts without a detail
// projection row. Newest-first matches the reviewer-facing priority: fresh
// alerts are the ones being looked at.
func (s *PostgresStore) ListMissingDetails(ctx context.Context, limit int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT ` + alertColumns + `
		FROM alerts a
		WHERE a.record_type = 'credential'
		  AND NOT EXISTS (SELECT 1 FROM credential_alert_details d WHERE d.alert_id = a.id)
		ORDER BY a.created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts missing details: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByDetailPresence(ctx context.Context) (int, int, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE EXISTS (SELECT 1 FROM credential_alert_details d WHERE d.alert_id = a.id))
		FROM alerts a
		WHERE a.record_type = 'credential'
	`
	var total, withDetails int
	if err := s.db.QueryRowContext(ctx, query).Scan(&total, &withDetails); err != nil {
		return 0, 0, fmt.Errorf("count alerts by detail presence: %w", err)
	}
	return total, withDetails, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	a := &models.Alert{}
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime
	err := row.Scan(&a.ID, &a.CriterionID, &a.MatchedField, &a.MatchedValue, &a.RecordType,
		&a.RecordID, &a.Severity, &a.Status, &reviewedBy, &reviewedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if reviewedBy.Valid {
		a.ReviewedBy = &reviewedBy.Int64
	}
	if reviewedAt.Valid {
		a.ReviewedAt = &reviewedAt.Time
	}
	return a, nil
}
