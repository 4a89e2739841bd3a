package detail

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stealwatch/internal/watchlist/models"
)

// PostgresStore owns the credential_alert_details projection. Upsert keys on
// alert_id so the live materializer and the reconciliation sweeper can race
// without ever producing two rows for one alert.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed detail store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, d *models.AlertDetail) error {
	if d == nil {
		return fmt.Errorf("alert detail is required")
	}
	query := `
		INSERT INTO credential_alert_details (
			alert_id, credential_id, domain, url, username, password,
			stealer_type, system_country, system_ip, computer_name,
			os_version, machine_user
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (alert_id) DO UPDATE SET
			credential_id = EXCLUDED.credential_id,
			domain = EXCLUDED.domain,
			url = EXCLUDED.url,
			username = EXCLUDED.username,
			password = EXCLUDED.password,
			stealer_type = EXCLUDED.stealer_type,
			system_country = EXCLUDED.system_country,
			system_ip = EXCLUDED.system_ip,
			computer_name = EXCLUDED.computer_name,
			os_version = EXCLUDED.os_version,
			machine_user = EXCLUDED.machine_user
	`
	_, err := s.db.ExecContext(ctx, query,
		d.AlertID, d.CredentialID, d.Domain, d.URL, d.Username, d.Password,
		d.StealerType, d.Country, d.IP, d.ComputerName, d.OSVersion, d.MachineUser)
	if err != nil {
		return fmt.Errorf("upsert alert detail: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, alertID int64) (*models.AlertDetail, error) {
	query := `
		SELECT alert_id, credential_id, domain, url, username, password,
		       stealer_type, system_country, system_ip, computer_name,
		       os_version, machine_user
		FROM credential_alert_details
		WHERE alert_id = $1
	`
	d := &models.AlertDetail{}
	err := s.db.QueryRowContext(ctx, query, alertID).Scan(
		&d.AlertID, &d.CredentialID, &d.Domain, &d.URL, &d.Username, &d.Password,
		&d.StealerType, &d.Country, &d.IP, &d.ComputerName, &d.OSVersion, &d.MachineUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Missing projection is a normal state, not an error.
			return nil, nil
		}
		return nil, fmt.Errorf("get alert detail: %w", err)
	}
	return d, nil
}
