package criteria

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"stealwatch/internal/watchlist/models"
	"stealwatch/pkg/platform/sentinel"
)

// PostgresStore persists watch criteria in PostgreSQL.
// This store is pure I/O; lifecycle rules live in the service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed criteria store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const criterionColumns = `id, keyword, field_type, severity, description, is_active, COALESCE(created_by, 0), created_at`
const cardCriterionColumns = `id, bin_number, bank_name, country, severity, description, is_active, COALESCE(created_by, 0), created_at`

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Criterion, error) {
	query := `SELECT ` + criterionColumns + ` FROM watchlist WHERE is_active = TRUE ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active criteria: %w", err)
	}
	defer rows.Close()
	return scanCriteria(rows)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Criterion, error) {
	query := `SELECT ` + criterionColumns + ` FROM watchlist ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}
	defer rows.Close()
	return scanCriteria(rows)
}

func (s *PostgresStore) ListActiveCard(ctx context.Context) ([]*models.CardCriterion, error) {
	query := `SELECT ` + cardCriterionColumns + ` FROM card_watchlist WHERE is_active = TRUE ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active card criteria: %w", err)
	}
	defer rows.Close()
	return scanCardCriteria(rows)
}

func (s *PostgresStore) ListCard(ctx context.Context) ([]*models.CardCriterion, error) {
	query := `SELECT ` + cardCriterionColumns + ` FROM card_watchlist ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list card criteria: %w", err)
	}
	defer rows.Close()
	return scanCardCriteria(rows)
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Criterion) (*models.Criterion, error) {
	if c == nil {
		return nil, fmt.Errorf("criterion is required")
	}
	query := `
		INSERT INTO watchlist (keyword, field_type, severity, description, is_active, created_by)
		VALUES ($1, $2, $3, $4, TRUE, NULLIF($5, 0))
		RETURNING ` + criterionColumns
	row := s.db.QueryRowContext(ctx, query, c.Keyword, string(c.FieldType), string(c.Severity), c.Description, c.CreatedBy)
	created, err := scanCriterion(row)
	if err != nil {
		return nil, fmt.Errorf("create criterion: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) CreateCard(ctx context.Context, c *models.CardCriterion) (*models.CardCriterion, error) {
	if c == nil {
		return nil, fmt.Errorf("card criterion is required")
	}
	query := `
		INSERT INTO card_watchlist (bin_number, bank_name, country, severity, description, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, TRUE, NULLIF($6, 0))
		RETURNING ` + cardCriterionColumns
	row := s.db.QueryRowContext(ctx, query, c.BIN, c.BankName, c.Country, string(c.Severity), c.Description, c.CreatedBy)
	created, err := scanCardCriterion(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("create card criterion: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, id int64) error {
	return s.toggle(ctx, "watchlist", id)
}

func (s *PostgresStore) DeactivateCard(ctx context.Context, id int64) error {
	return s.toggle(ctx, "card_watchlist", id)
}

func (s *PostgresStore) toggle(ctx context.Context, table string, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate criterion: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate criterion rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Delete removes an unreferenced criterion. The alerts table restricts
// deletion, so a foreign key violation maps to ErrReferenced.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	return s.delete(ctx, `DELETE FROM watchlist WHERE id = $1`, id)
}

func (s *PostgresStore) DeleteCard(ctx context.Context, id int64) error {
	return s.delete(ctx, `DELETE FROM card_watchlist WHERE id = $1`, id)
}

func (s *PostgresStore) delete(ctx context.Context, query string, id int64) error {
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return sentinel.ErrReferenced
		}
		return fmt.Errorf("delete criterion: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete criterion rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) ([]*models.CriterionStats, error) {
	query := `
		SELECT w.id, w.keyword, w.field_type, w.severity, w.description, w.is_active,
		       COALESCE(w.created_by, 0), w.created_at,
		       COUNT(a.id),
		       COUNT(CASE WHEN a.status = 'new' THEN 1 END),
		       COUNT(CASE WHEN a.status = 'reviewed' THEN 1 END),
		       COUNT(CASE WHEN a.status = 'false_positive' THEN 1 END)
		FROM watchlist w
		LEFT JOIN alerts a ON w.id = a.watchlist_id
		GROUP BY w.id
		ORDER BY COUNT(a.id) DESC, w.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("criterion stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.CriterionStats
	for rows.Next() {
		st := &models.CriterionStats{}
		err := rows.Scan(&st.ID, &st.Keyword, &st.FieldType, &st.Severity, &st.Description,
			&st.Active, &st.CreatedBy, &st.CreatedAt,
			&st.AlertCount, &st.NewAlerts, &st.ReviewedAlerts, &st.FalsePositiveAlerts)
		if err != nil {
			return nil, fmt.Errorf("scan criterion stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) CardStats(ctx context.Context) ([]*models.CardCriterionStats, error) {
	query := `
		SELECT cw.id, cw.bin_number, cw.bank_name, cw.country, cw.severity, cw.description,
		       cw.is_active, COALESCE(cw.created_by, 0), cw.created_at,
		       COUNT(ca.id),
		       COUNT(CASE WHEN ca.status = 'new' THEN 1 END),
		       COUNT(CASE WHEN ca.status = 'reviewed' THEN 1 END),
		       COUNT(CASE WHEN ca.status = 'false_positive' THEN 1 END)
		FROM card_watchlist cw
		LEFT JOIN card_alerts ca ON cw.id = ca.card_watchlist_id
		GROUP BY cw.id
		ORDER BY COUNT(ca.id) DESC, cw.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("card criterion stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.CardCriterionStats
	for rows.Next() {
		st := &models.CardCriterionStats{}
		err := rows.Scan(&st.ID, &st.BIN, &st.BankName, &st.Country, &st.Severity, &st.Description,
			&st.Active, &st.CreatedBy, &st.CreatedAt,
			&st.AlertCount, &st.NewAlerts, &st.ReviewedAlerts, &st.FalsePositiveAlerts)
		if err != nil {
			return nil, fmt.Errorf("scan card criterion stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCriterion(row rowScanner) (*models.Criterion, error) {
	c := &models.Criterion{}
	err := row.Scan(&c.ID, &c.Keyword, &c.FieldType, &c.Severity, &c.Description, &c.Active, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCardCriterion(row rowScanner) (*models.CardCriterion, error) {
	c := &models.CardCriterion{}
	err := row.Scan(&c.ID, &c.BIN, &c.BankName, &c.Country, &c.Severity, &c.Description, &c.Active, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCriteria(rows *sql.Rows) ([]*models.Criterion, error) {
	var out []*models.Criterion
	for rows.Next() {
		c, err := scanCriterion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan criterion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCardCriteria(rows *sql.Rows) ([]*models.CardCriterion, error) {
	var out []*models.CardCriterion
	for rows.Next() {
		c, err := scanCardCriterion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card criterion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
