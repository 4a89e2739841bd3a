//go:build integration

package criteria_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"stealwatch/internal/watchlist/models"
	alertstore "stealwatch/internal/watchlist/store/alert"
	"stealwatch/internal/watchlist/store/criteria"
	"stealwatch/pkg/platform/sentinel"
	"stealwatch/pkg/testutil/containers"
)

type PostgresCriteriaSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *criteria.PostgresStore
	alerts   *alertstore.PostgresStore
}

func TestPostgresCriteriaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresCriteriaSuite))
}

func (s *PostgresCriteriaSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = criteria.NewPostgres(s.postgres.DB)
	s.alerts = alertstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresCriteriaSuite) TearDownSuite() {
	s.postgres.Close(context.Background())
}

func (s *PostgresCriteriaSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background()))
}

func (s *PostgresCriteriaSuite) createKeyword(keyword string) *models.Criterion {
	created, err := s.store.Create(context.Background(), &models.Criterion{
		Keyword:   keyword,
		FieldType: models.FieldDomain,
		Severity:  models.SeverityHigh,
	})
	s.Require().NoError(err)
	return created
}

func (s *PostgresCriteriaSuite) TestCreateListDeactivate() {
	created := s.createKeyword("gmail.com")
	s.NotZero(created.ID)
	s.True(created.Active)
	s.Zero(created.CreatedBy)

	active, err := s.store.ListActive(context.Background())
	s.Require().NoError(err)
	s.Require().Len(active, 1)

	s.Require().NoError(s.store.Deactivate(context.Background(), created.ID))

	active, err = s.store.ListActive(context.Background())
	s.Require().NoError(err)
	s.Empty(active)

	all, err := s.store.List(context.Background())
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.False(all[0].Active)
}

func (s *PostgresCriteriaSuite) TestDeactivateUnknown() {
	err := s.store.Deactivate(context.Background(), 404)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresCriteriaSuite) TestDeleteRestrictedByAlerts() {
	created := s.createKeyword("gmail.com")

	_, inserted, err := s.alerts.CreateIfAbsent(context.Background(), &models.Alert{
		CriterionID:  created.ID,
		MatchedField: models.FieldDomain,
		MatchedValue: "mail.gmail.com",
		RecordID:     1,
		Severity:     models.SeverityHigh,
	})
	s.Require().NoError(err)
	s.Require().True(inserted)

	err = s.store.Delete(context.Background(), created.ID)
	s.Require().ErrorIs(err, sentinel.ErrReferenced)

	// Without alert history the delete goes through.
	other := s.createKeyword("yahoo.com")
	s.Require().NoError(s.store.Delete(context.Background(), other.ID))
}

func (s *PostgresCriteriaSuite) TestCreateCardDuplicateBIN() {
	_, err := s.store.CreateCard(context.Background(), &models.CardCriterion{
		BIN:      "559444",
		BankName: "NBE",
		Country:  "EG",
		Severity: models.SeverityHigh,
	})
	s.Require().NoError(err)

	_, err = s.store.CreateCard(context.Background(), &models.CardCriterion{
		BIN:      "559444",
		BankName: "NBE again",
		Country:  "EG",
		Severity: models.SeverityLow,
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresCriteriaSuite) TestStatsAggregation() {
	busy := s.createKeyword("gmail.com")
	idle := s.createKeyword("yahoo.com")

	for recordID := int64(1); recordID <= 3; recordID++ {
		_, _, err := s.alerts.CreateIfAbsent(context.Background(), &models.Alert{
			CriterionID:  busy.ID,
			MatchedField: models.FieldDomain,
			RecordID:     recordID,
			Severity:     models.SeverityHigh,
		})
		s.Require().NoError(err)
	}
	s.Require().NoError(s.alerts.SetStatus(context.Background(), 1, models.StatusReviewed, 0))

	stats, err := s.store.Stats(context.Background())
	s.Require().NoError(err)
	s.Require().Len(stats, 2)

	// Busiest criterion first.
	s.Equal(busy.ID, stats[0].ID)
	s.Equal(3, stats[0].AlertCount)
	s.Equal(2, stats[0].NewAlerts)
	s.Equal(1, stats[0].ReviewedAlerts)
	s.Equal(idle.ID, stats[1].ID)
	s.Zero(stats[1].AlertCount)
}
