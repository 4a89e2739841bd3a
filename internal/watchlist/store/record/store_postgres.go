package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stealwatch/internal/watchlist/models"
	"stealwatch/pkg/platform/sentinel"
)

// PostgresStore reads harvested records. The engine never writes to these
// tables; exclusion of already-alerted records happens here so one round trip
// returns only actionable matches.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const credentialColumns = `c.id, COALESCE(c.domain, ''), COALESCE(c.url, ''), COALESCE(c.username, ''), COALESCE(c.password, ''), COALESCE(c.stealer_type, ''), COALESCE(c.system_info_id, 0), c.created_at`

// FindCredentialsByField matches keyword as a case-insensitive substring of
// the selected attribute. IP criteria match against the host's IP rendered as
// text, so partial prefixes like "41.36." behave like the other fields.
func (s *PostgresStore) FindCredentialsByField(ctx context.Context, fieldType models.FieldType, keyword string, criterionID int64, limit int) ([]*models.CredentialRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var query string
	switch fieldType {
	case models.FieldDomain:
		query = `
			SELECT ` + credentialColumns + `
			FROM credentials c
			WHERE LOWER(c.domain) LIKE '%' || LOWER($1) || '%'`
	case models.FieldUsername:
		query = `
			SELECT ` + credentialColumns + `
			FROM credentials c
			WHERE LOWER(c.username) LIKE '%' || LOWER($1) || '%'`
	case models.FieldURL:
		query = `
			SELECT ` + credentialColumns + `
			FROM credentials c
			WHERE LOWER(c.url) LIKE '%' || LOWER($1) || '%'`
	case models.FieldIP:
		query = `
			SELECT ` + credentialColumns + `
			FROM credentials c
			LEFT JOIN system_info s ON c.system_info_id = s.id
			WHERE CAST(s.ip AS TEXT) LIKE '%' || $1 || '%'`
	default:
		return nil, fmt.Errorf("unsupported field type %q", fieldType)
	}

	query += `
		  AND NOT EXISTS (
			SELECT 1 FROM alerts a
			WHERE a.record_type = 'credential' AND a.watchlist_id = $2 AND a.record_id = c.id
		  )
		ORDER BY c.created_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, keyword, criterionID, limit)
	if err != nil {
		return nil, fmt.Errorf("find credentials by %s: %w", fieldType, err)
	}
	defer rows.Close()

	var out []*models.CredentialRecord
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindCardsByBIN matches on exact 6-digit prefix equality; BIN criteria are
// high-precision, unlike the substring keyword criteria.
func (s *PostgresStore) FindCardsByBIN(ctx context.Context, bin string, criterionID int64, limit int) ([]*models.CardRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT c.id, c.number, COALESCE(c.cardholder, ''), COALESCE(c.card_type, ''),
		       COALESCE(c.expiry, ''), COALESCE(c.system_info_id, 0), c.created_at
		FROM cards c
		WHERE LEFT(c.number, 6) = $1
		  AND NOT EXISTS (
			SELECT 1 FROM card_alerts ca
			WHERE ca.card_watchlist_id = $2 AND ca.card_id = c.id
		  )
		ORDER BY c.created_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, bin, criterionID, limit)
	if err != nil {
		return nil, fmt.Errorf("find cards by bin: %w", err)
	}
	defer rows.Close()

	var out []*models.CardRecord
	for rows.Next() {
		c := &models.CardRecord{}
		err := rows.Scan(&c.ID, &c.Number, &c.Cardholder, &c.CardType, &c.Expiry, &c.HostID, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCredential(ctx context.Context, id int64) (*models.CredentialRecord, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials c WHERE c.id = $1`
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetHostMetadata(ctx context.Context, hostID int64) (*models.HostMetadata, error) {
	if hostID == 0 {
		return nil, nil
	}
	query := `
		SELECT id, COALESCE(country, ''), COALESCE(CAST(ip AS TEXT), ''),
		       COALESCE(computer_name, ''), COALESCE(os_version, ''), COALESCE(machine_user, '')
		FROM system_info
		WHERE id = $1
	`
	h := &models.HostMetadata{}
	err := s.db.QueryRowContext(ctx, query, hostID).Scan(
		&h.ID, &h.Country, &h.IP, &h.ComputerName, &h.OSVersion, &h.MachineUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A dangling host reference skips enrichment, it never fails it.
			return nil, nil
		}
		return nil, fmt.Errorf("get host metadata: %w", err)
	}
	return h, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.CredentialRecord, error) {
	c := &models.CredentialRecord{}
	err := row.Scan(&c.ID, &c.Domain, &c.URL, &c.Username, &c.Password, &c.StealerType, &c.HostID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}
