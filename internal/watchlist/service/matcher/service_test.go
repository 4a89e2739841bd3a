package matcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stealwatch/internal/watchlist/models"
	"stealwatch/internal/watchlist/ports"
	alertstore "stealwatch/internal/watchlist/store/alert"
	criteriastore "stealwatch/internal/watchlist/store/criteria"
	recordstore "stealwatch/internal/watchlist/store/record"
)

type MatcherSuite struct {
	suite.Suite
	criteria *criteriastore.MemoryStore
	records  *recordstore.MemoryStore
	alerts   *alertstore.MemoryStore
	service  *Service
}

func TestMatcherSuite(t *testing.T) {
	suite.Run(t, new(MatcherSuite))
}

func (s *MatcherSuite) SetupTest() {
	s.criteria = criteriastore.NewMemory()
	s.records = recordstore.NewMemory()
	s.alerts = alertstore.NewMemory()
	s.records.SetAlertedChecks(s.alerts.Alerted, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var err error
	s.service, err = New(s.criteria, s.records, s.alerts, nil, WithLogger(logger))
	s.Require().NoError(err)
}

func (s *MatcherSuite) addCriterion(keyword string, field models.FieldType) *models.Criterion {
	created, err := s.criteria.Create(context.Background(), &models.Criterion{
		Keyword:   keyword,
		FieldType: field,
		Severity:  models.SeverityHigh,
	})
	s.Require().NoError(err)
	return created
}

func (s *MatcherSuite) addCredential(id int64, domain, username, url string) {
	s.records.AddCredential(&models.CredentialRecord{
		ID:        id,
		Domain:    domain,
		Username:  username,
		URL:       url,
		CreatedAt: time.Now(),
	})
}

func (s *MatcherSuite) TestSubstringMatchingIsCaseInsensitive() {
	s.addCriterion("gmail", models.FieldDomain)
	s.addCredential(1, "mail.GMAIL.com", "", "")
	s.addCredential(2, "gmailx.example", "", "")
	s.addCredential(3, "yahoo.com", "", "")

	created, err := s.service.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(2, created)
}

func (s *MatcherSuite) TestSweepIsIdempotent() {
	s.addCriterion("corp.example", models.FieldDomain)
	s.addCredential(1, "login.corp.example", "", "")

	created, err := s.service.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(1, created)

	// Unchanged corpus: the second pass creates nothing.
	created, err = s.service.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(0, created)
}

func (s *MatcherSuite) TestEachCriterionAlertsIndependently() {
	s.addCriterion("example", models.FieldDomain)
	s.addCriterion("admin", models.FieldUsername)
	s.addCredential(1, "portal.example.com", "admin@corp", "")

	created, err := s.service.Sweep(context.Background())
	s.Require().NoError(err)
	// One record, two criteria, two alerts.
	s.Equal(2, created)
}

func (s *MatcherSuite) TestUnknownFieldTypeIsSkipped() {
	bad, err := s.criteria.Create(context.Background(), &models.Criterion{
		Keyword:   "x",
		FieldType: models.FieldType("passport_number"),
		Severity:  models.SeverityLow,
	})
	s.Require().NoError(err)
	s.addCriterion("example", models.FieldDomain)
	s.addCredential(1, "a.example.com", "", "")

	created, err := s.service.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(1, created)

	// Removing the unknown criterion is still possible.
	s.NoError(s.criteria.Delete(context.Background(), bad.ID))
}

func (s *MatcherSuite) TestMatchLimitBoundsOneSweep() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(s.criteria, s.records, s.alerts, nil,
		WithLogger(logger), WithMatchLimit(2))
	s.Require().NoError(err)

	s.addCriterion("example", models.FieldDomain)
	for i := int64(1); i <= 5; i++ {
		s.addCredential(i, "host.example.com", "", "")
	}

	created, err := svc.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(2, created)

	// Later sweeps drain the backlog.
	created, err = svc.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(2, created)

	created, err = svc.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(1, created)
}

func (s *MatcherSuite) TestInactiveCriteriaDoNotMatch() {
	c := s.addCriterion("example", models.FieldDomain)
	s.Require().NoError(s.criteria.Deactivate(context.Background(), c.ID))
	s.addCredential(1, "a.example.com", "", "")

	created, err := s.service.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(0, created)
}

func (s *MatcherSuite) TestAlertSnapshotsMatchedValue() {
	c := s.addCriterion("gmail", models.FieldDomain)
	s.addCredential(7, "mail.gmail.com", "", "")

	_, err := s.service.Sweep(context.Background())
	s.Require().NoError(err)

	alerts, _, err := s.alerts.List(context.Background(), ports.AlertFilter{})
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal(c.ID, alerts[0].CriterionID)
	s.Equal(int64(7), alerts[0].RecordID)
	s.Equal(models.FieldDomain, alerts[0].MatchedField)
	s.Equal("mail.gmail.com", alerts[0].MatchedValue)
	s.Equal(models.StatusNew, alerts[0].Status)
	s.Equal(models.SeverityHigh, alerts[0].Severity)
}

type failingMaterializer struct {
	calls int
}

func (m *failingMaterializer) Materialize(context.Context, *models.Alert) (bool, error) {
	m.calls++
	return false, errors.New("projection store down")
}

func (s *MatcherSuite) TestDetailFailureDoesNotFailAlertCreation() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mat := &failingMaterializer{}
	svc, err := New(s.criteria, s.records, s.alerts, mat, WithLogger(logger))
	s.Require().NoError(err)

	s.addCriterion("example", models.FieldDomain)
	s.addCredential(1, "a.example.com", "", "")

	created, err := svc.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(1, created)
	s.Equal(1, mat.calls)
}

type brokenRecordStore struct {
	recordstore.MemoryStore
}

func (b *brokenRecordStore) FindCredentialsByField(context.Context, models.FieldType, string, int64, int) ([]*models.CredentialRecord, error) {
	return nil, errors.New("connection reset")
}

func (s *MatcherSuite) TestStoreFailureAbortsSweep() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(s.criteria, &brokenRecordStore{}, s.alerts, nil, WithLogger(logger))
	s.Require().NoError(err)

	s.addCriterion("example", models.FieldDomain)

	_, err = svc.Sweep(context.Background())
	s.Require().Error(err)
	s.Contains(err.Error(), "failed to search credentials")
}

func (s *MatcherSuite) TestNilStoresRejected() {
	_, err := New(nil, s.records, s.alerts, nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "required")
}

func (s *MatcherSuite) TestIPCriterionMatchesHostAddress() {
	s.addCriterion("41.36.", models.FieldIP)
	s.records.AddHost(&models.HostMetadata{ID: 10, IP: "41.36.22.9"})
	s.records.AddCredential(&models.CredentialRecord{ID: 1, Domain: "x", HostID: 10, CreatedAt: time.Now()})
	s.records.AddCredential(&models.CredentialRecord{ID: 2, Domain: "y", CreatedAt: time.Now()})

	created, err := s.service.Sweep(context.Background())
	s.Require().NoError(err)
	s.Equal(1, created)

	alerts, _, err := s.alerts.List(context.Background(), ports.AlertFilter{})
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal("41.36.22.9", alerts[0].MatchedValue)
}
