package cardalert

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

// PostgresStore persists card alerts in PostgreSQL. Deduplication works like
// the keyword alert store: UNIQUE (card_watchlist_id, card_id) plus
// ON CONFLICT DO NOTHING.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed card alert store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const cardAlertColumns = `id, card_watchlist_id, matched_bin, card_number, card_id, bank_name, severity, status, reviewed_by, reviewed_at, created_at`

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, alert *models.CardAlert) (*models.CardAlert, bool, error) {
	if alert == nil {
		return nil, false, fmt.Errorf("card alert is required")
	}
	query := `
		INSERT INTO card_alerts (card_watchlist_id, matched_bin, card_number, card_id, bank_name, severity, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'new')
		ON CONFLICT (card_watchlist_id, card_id) DO NOTHING
		RETURNING ` + cardAlertColumns
	row := s.db.QueryRowContext(ctx, query,
		alert.CardCriterionID, alert.MatchedBIN, alert.CardNumber, alert.CardID, alert.BankName, string(alert.Severity))
	created, err := scanCardAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("create card alert: %w", err)
	}
	return created, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.CardAlert, error) {
	query := `SELECT ` + cardAlertColumns + ` FROM card_alerts WHERE id = $1`
	a, err := scanCardAlert(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get card alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ports.AlertFilter) ([]*models.CardAlert, int, error) {
	where := `WHERE TRUE`
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
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM card_alerts `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count card alerts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM card_alerts %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		cardAlertColumns, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list card alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.CardAlert
	for rows.Next() {
		a, err := scanCardAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan card alert: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) SetStatus(ctx context.Context, id int64, status models.AlertStatus, reviewerID int64) error {
	query := `
		UPDATE card_alerts
		SET status = $2, reviewed_by = NULLIF($3, 0), reviewed_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, string(status), reviewerID, time.Now())
	if err != nil {
		return fmt.Errorf("set card alert status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set card alert status rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCardAlert(row rowScanner) (*models.CardAlert, error) {
	a := &models.CardAlert{}
	var reviewedBy sql.NullInt64
	var reviewedAt sql.NullTime
	err := row.Scan(&a.ID, &a.CardCriterionID, &a.MatchedBIN, &a.CardNumber, &a.CardID,
		&a.BankName, &a.Severity, &a.Status, &reviewedBy, &reviewedAt, &a.CreatedAt)
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
