//go:build integration

package record_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/store/alert"
	"stealwatch/internal/watchlist/store/cardalert"
	criteriastore "stealwatch/internal/watchlist/store/criteria"
	"stealwatch/internal/watchlist/store/record"
	"stealwatch/pkg/platform/sentinel"
	"stealwatch/pkg/testutil/containers"
)

// The record store is read-only, so every test seeds the harvested tables
// directly with SQL.
type PostgresRecordSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *record.PostgresStore
	criteria *criteriastore.PostgresStore

	hostID                          int64
	credGmail, credYahoo, credMixed int64
	cardMatch                       int64
}

func TestPostgresRecordSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRecordSuite))
}

func (s *PostgresRecordSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = record.NewPostgres(s.postgres.DB)
	s.criteria = criteriastore.NewPostgres(s.postgres.DB)
}

func (s *PostgresRecordSuite) TearDownSuite() {
	s.postgres.Close(context.Background())
}

func (s *PostgresRecordSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx))

	s.hostID = s.insertHost(ctx, "Egypt", "41.36.10.25", "DESKTOP-A1", "Windows 10 Pro", "ahmed")

	s.credGmail = s.insertCredential(ctx, "mail.gmail.com", "https://mail.gmail.com/login",
		"victim@gmail.com", "hunter2", "redline", &s.hostID)
	s.credYahoo = s.insertCredential(ctx, "portal.yahoo.com", "https://portal.yahoo.com",
		"someone@yahoo.com", "pass", "raccoon", nil)
	s.credMixed = s.insertCredential(ctx, "GMAILX.example.net", "https://gmailx.example.net",
		"other@example.net", "pw", "lumma", nil)

	s.cardMatch = s.insertCard(ctx, "5594441234567890", "AHMED HASSAN", &s.hostID)
	s.insertCard(ctx, "5594431234567890", "MONA ALI", nil)
	s.insertCard(ctx, "55944", "TRUNCATED", nil)
}

func (s *PostgresRecordSuite) insertHost(ctx context.Context, country, ip, computer, osVersion, user string) int64 {
	var id int64
	err := s.postgres.DB.QueryRowContext(ctx, `
		INSERT INTO system_info (country, ip, computer_name, os_version, machine_user)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		country, ip, computer, osVersion, user).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *PostgresRecordSuite) insertCredential(ctx context.Context, domain, url, username, password, stealer string, hostID *int64) int64 {
	var id int64
	err := s.postgres.DB.QueryRowContext(ctx, `
		INSERT INTO credentials (domain, url, username, password, stealer_type, system_info_id)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		domain, url, username, password, stealer, hostID).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *PostgresRecordSuite) insertCard(ctx context.Context, number, holder string, hostID *int64) int64 {
	var id int64
	err := s.postgres.DB.QueryRowContext(ctx, `
		INSERT INTO cards (number, cardholder, card_type, expiry, system_info_id)
		VALUES ($1, $2, 'Mastercard', '12/27', $3) RETURNING id`,
		number, holder, hostID).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *PostgresRecordSuite) newCriterion(ctx context.Context, keyword string, field models.FieldType) *models.Criterion {
	c, err := s.criteria.Create(ctx, &models.Criterion{
		Keyword: keyword, FieldType: field, Severity: models.SeverityHigh,
	})
	s.Require().NoError(err)
	return c
}

func recordIDs(creds []*models.CredentialRecord) []int64 {
	ids := make([]int64, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.ID)
	}
	return ids
}

// === Credential matching ===

func (s *PostgresRecordSuite) TestDomainSubstringCaseInsensitive() {
	ctx := context.Background()
	criterion := s.newCriterion(ctx, "gmail", models.FieldDomain)

	creds, err := s.store.FindCredentialsByField(ctx, models.FieldDomain, "gmail", criterion.ID, 50)
	s.Require().NoError(err)
	s.ElementsMatch([]int64{s.credGmail, s.credMixed}, recordIDs(creds))
}

func (s *PostgresRecordSuite) TestUsernameMatch() {
	ctx := context.Background()
	criterion := s.newCriterion(ctx, "yahoo", models.FieldUsername)

	creds, err := s.store.FindCredentialsByField(ctx, models.FieldUsername, "yahoo", criterion.ID, 50)
	s.Require().NoError(err)
	s.ElementsMatch([]int64{s.credYahoo}, recordIDs(creds))
}

func (s *PostgresRecordSuite) TestURLMatch() {
	ctx := context.Background()
	criterion := s.newCriterion(ctx, "gmail.com/login", models.FieldURL)

	creds, err := s.store.FindCredentialsByField(ctx, models.FieldURL, "gmail.com/login", criterion.ID, 50)
	s.Require().NoError(err)
	s.ElementsMatch([]int64{s.credGmail}, recordIDs(creds))
}

func (s *PostgresRecordSuite) TestIPMatchJoinsHost() {
	ctx := context.Background()
	criterion := s.newCriterion(ctx, "41.36.", models.FieldIP)

	// Only the credential whose host carries the IP matches; hostless
	// credentials fall out of the join.
	creds, err := s.store.FindCredentialsByField(ctx, models.FieldIP, "41.36.", criterion.ID, 50)
	s.Require().NoError(err)
	s.ElementsMatch([]int64{s.credGmail}, recordIDs(creds))
}

func (s *PostgresRecordSuite) TestUnsupportedFieldType() {
	_, err := s.store.FindCredentialsByField(context.Background(), models.FieldType("email"), "x", 1, 50)
	s.Error(err)
}

func (s *PostgresRecordSuite) TestAlreadyAlertedExcludedPerCriterion() {
	ctx := context.Background()
	first := s.newCriterion(ctx, "gmail", models.FieldDomain)
	second := s.newCriterion(ctx, "mail", models.FieldDomain)

	alerts := alert.NewPostgres(s.postgres.DB)
	_, inserted, err := alerts.CreateIfAbsent(ctx, &models.Alert{
		CriterionID:  first.ID,
		MatchedField: models.FieldDomain,
		MatchedValue: "mail.gmail.com",
		RecordID:     s.credGmail,
		Severity:     models.SeverityHigh,
	})
	s.Require().NoError(err)
	s.Require().True(inserted)

	// The alerted pair disappears for its own criterion only.
	creds, err := s.store.FindCredentialsByField(ctx, models.FieldDomain, "gmail", first.ID, 50)
	s.Require().NoError(err)
	s.ElementsMatch([]int64{s.credMixed}, recordIDs(creds))

	creds, err = s.store.FindCredentialsByField(ctx, models.FieldDomain, "gmail", second.ID, 50)
	s.Require().NoError(err)
	s.ElementsMatch([]int64{s.credGmail, s.credMixed}, recordIDs(creds))
}

func (s *PostgresRecordSuite) TestLimitCapsResults() {
	ctx := context.Background()
	criterion := s.newCriterion(ctx, "gmail", models.FieldDomain)

	creds, err := s.store.FindCredentialsByField(ctx, models.FieldDomain, "gmail", criterion.ID, 1)
	s.Require().NoError(err)
	s.Len(creds, 1)
}

// === Card matching ===

func (s *PostgresRecordSuite) TestCardBINExactPrefix() {
	ctx := context.Background()
	criterion, err := s.criteria.CreateCard(ctx, &models.CardCriterion{
		BIN: "559444", BankName: "NBE", Country: "EG", Severity: models.SeverityHigh,
	})
	s.Require().NoError(err)

	cards, err := s.store.FindCardsByBIN(ctx, "559444", criterion.ID, 50)
	s.Require().NoError(err)
	s.Require().Len(cards, 1)
	s.Equal(s.cardMatch, cards[0].ID)
	s.Equal("5594441234567890", cards[0].Number)
	s.Equal("AHMED HASSAN", cards[0].Cardholder)
}

func (s *PostgresRecordSuite) TestCardAlreadyAlertedExcluded() {
	ctx := context.Background()
	criterion, err := s.criteria.CreateCard(ctx, &models.CardCriterion{
		BIN: "559444", BankName: "NBE", Country: "EG", Severity: models.SeverityHigh,
	})
	s.Require().NoError(err)

	cardAlerts := cardalert.NewPostgres(s.postgres.DB)
	_, inserted, err := cardAlerts.CreateIfAbsent(ctx, &models.CardAlert{
		CardCriterionID: criterion.ID,
		MatchedBIN:      "559444",
		CardNumber:      "5594441234567890",
		CardID:          s.cardMatch,
		BankName:        "NBE",
		Severity:        models.SeverityHigh,
	})
	s.Require().NoError(err)
	s.Require().True(inserted)

	cards, err := s.store.FindCardsByBIN(ctx, "559444", criterion.ID, 50)
	s.Require().NoError(err)
	s.Empty(cards)
}

// === Single-record lookups ===

func (s *PostgresRecordSuite) TestGetCredential() {
	ctx := context.Background()

	cred, err := s.store.GetCredential(ctx, s.credGmail)
	s.Require().NoError(err)
	s.Equal("mail.gmail.com", cred.Domain)
	s.Equal("victim@gmail.com", cred.Username)
	s.Equal("hunter2", cred.Password)
	s.Equal("redline", cred.StealerType)
	s.Equal(s.hostID, cred.HostID)

	_, err = s.store.GetCredential(ctx, 987654)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRecordSuite) TestGetHostMetadata() {
	ctx := context.Background()

	host, err := s.store.GetHostMetadata(ctx, s.hostID)
	s.Require().NoError(err)
	s.Require().NotNil(host)
	s.Equal("Egypt", host.Country)
	s.Equal("41.36.10.25", host.IP)
	s.Equal("DESKTOP-A1", host.ComputerName)
	s.Equal("Windows 10 Pro", host.OSVersion)
	s.Equal("ahmed", host.MachineUser)

	// Zero and dangling host references are normal, not errors.
	host, err = s.store.GetHostMetadata(ctx, 0)
	s.NoError(err)
	s.Nil(host)

	host, err = s.store.GetHostMetadata(ctx, 987654)
	s.NoError(err)
	s.Nil(host)
}
