package criteria

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"stealwatch/internal/binref"
	"stealwatch/internal/watchlist/models"
	alertstore "stealwatch/internal/watchlist/store/alert"
	cardalertstore "stealwatch/internal/watchlist/store/cardalert"
	criteriastore "stealwatch/internal/watchlist/store/criteria"
)

type CriteriaSuite struct {
	suite.Suite
	store      *criteriastore.MemoryStore
	alerts     *alertstore.MemoryStore
	cardAlerts *cardalertstore.MemoryStore
	service    *Service
}

func TestCriteriaSuite(t *testing.T) {
	suite.Run(t, new(CriteriaSuite))
}

func (s *CriteriaSuite) SetupTest() {
	s.store = criteriastore.NewMemory()
	s.alerts = alertstore.NewMemory()
	s.cardAlerts = cardalertstore.NewMemory()
	s.store.SetReferenceChecks(s.alerts.Referenced, s.cardAlerts.Referenced)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var err error
	s.service, err = New(s.store, WithLogger(logger))
	s.Require().NoError(err)
}

// === Keyword criteria ===

func (s *CriteriaSuite) TestCreateDefaultsAndTrims() {
	created, err := s.service.Create(context.Background(), &models.Criterion{
		Keyword:   "  gmail.com  ",
		FieldType: models.FieldDomain,
	}, 7)
	s.Require().NoError(err)
	s.Equal("gmail.com", created.Keyword)
	s.Equal(models.SeverityMedium, created.Severity)
	s.True(created.Active)
	s.Equal(int64(7), created.CreatedBy)
}

func (s *CriteriaSuite) TestCreateValidation() {
	s.Run("blank keyword", func() {
		_, err := s.service.Create(context.Background(), &models.Criterion{
			Keyword:   "   ",
			FieldType: models.FieldDomain,
		}, 7)
		s.Require().Error(err)
		s.Contains(err.Error(), "keyword is required")
	})

	s.Run("unknown field type", func() {
		_, err := s.service.Create(context.Background(), &models.Criterion{
			Keyword:   "gmail",
			FieldType: models.FieldType("hostname"),
		}, 7)
		s.Require().Error(err)
		s.Contains(err.Error(), "invalid field type")
	})

	s.Run("unknown severity", func() {
		_, err := s.service.Create(context.Background(), &models.Criterion{
			Keyword:   "gmail",
			FieldType: models.FieldDomain,
			Severity:  models.Severity("catastrophic"),
		}, 7)
		s.Require().Error(err)
		s.Contains(err.Error(), "invalid severity")
	})
}

func (s *CriteriaSuite) TestDeleteUnreferencedCriterion() {
	created, err := s.service.Create(context.Background(), &models.Criterion{
		Keyword:   "gmail",
		FieldType: models.FieldDomain,
	}, 7)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(context.Background(), created.ID, 7))

	list, err := s.service.List(context.Background())
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *CriteriaSuite) TestDeleteReferencedCriterionConflicts() {
	created, err := s.service.Create(context.Background(), &models.Criterion{
		Keyword:   "gmail",
		FieldType: models.FieldDomain,
	}, 7)
	s.Require().NoError(err)

	_, _, err = s.alerts.CreateIfAbsent(context.Background(), &models.Alert{
		CriterionID:  created.ID,
		RecordID:     1,
		MatchedField: models.FieldDomain,
		Severity:     models.SeverityMedium,
	})
	s.Require().NoError(err)

	err = s.service.Delete(context.Background(), created.ID, 7)
	s.Require().Error(err)
	s.Contains(err.Error(), "deactivate it instead")

	// Deactivation remains available and keeps history intact.
	s.Require().NoError(s.service.Deactivate(context.Background(), created.ID))
	list, err := s.service.List(context.Background())
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.False(list[0].Active)
}

func (s *CriteriaSuite) TestDeleteUnknownCriterion() {
	err := s.service.Delete(context.Background(), 404, 7)
	s.Require().Error(err)
	s.Contains(err.Error(), "criterion not found")
}

// === BIN criteria ===

func (s *CriteriaSuite) TestCreateCardValidatesBIN() {
	for _, bin := range []string{"", "12345", "1234567", "55944x"} {
		_, err := s.service.CreateCard(context.Background(), &models.CardCriterion{BIN: bin}, 7)
		s.Require().Error(err, "bin %q", bin)
		s.Contains(err.Error(), "bin must be exactly 6 digits")
	}
}

func (s *CriteriaSuite) TestCreateCardFillsBankFromDirectory() {
	bins, err := binref.Load()
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(s.store, WithLogger(logger), WithBINDirectory(bins))
	s.Require().NoError(err)

	info, ok := bins.Lookup("559444")
	s.Require().True(ok)

	created, err := svc.CreateCard(context.Background(), &models.CardCriterion{BIN: "559444"}, 7)
	s.Require().NoError(err)
	s.Equal(info.Issuer, created.BankName)
	s.Equal("EG", created.Country)
	s.Equal(models.SeverityHigh, created.Severity)
}

func (s *CriteriaSuite) TestCreateCardKeepsExplicitBankName() {
	created, err := s.service.CreateCard(context.Background(), &models.CardCriterion{
		BIN:      "999999",
		BankName: "Some Foreign Bank",
		Country:  "ae",
	}, 7)
	s.Require().NoError(err)
	s.Equal("Some Foreign Bank", created.BankName)
	s.Equal("AE", created.Country)
}

func (s *CriteriaSuite) TestCreateCardDuplicateBINConflicts() {
	_, err := s.service.CreateCard(context.Background(), &models.CardCriterion{BIN: "559444"}, 7)
	s.Require().NoError(err)

	_, err = s.service.CreateCard(context.Background(), &models.CardCriterion{BIN: "559444"}, 7)
	s.Require().Error(err)
	s.Contains(err.Error(), "bin already on the watchlist")
}

func (s *CriteriaSuite) TestDeleteReferencedCardCriterionConflicts() {
	created, err := s.service.CreateCard(context.Background(), &models.CardCriterion{BIN: "559444"}, 7)
	s.Require().NoError(err)

	_, _, err = s.cardAlerts.CreateIfAbsent(context.Background(), &models.CardAlert{
		CardCriterionID: created.ID,
		CardID:          1,
		MatchedBIN:      "559444",
		Severity:        models.SeverityHigh,
	})
	s.Require().NoError(err)

	err = s.service.DeleteCard(context.Background(), created.ID, 7)
	s.Require().Error(err)
	s.Contains(err.Error(), "deactivate it instead")
}

// === Stats ===

func (s *CriteriaSuite) TestStatsCoversBothKinds() {
	kw, err := s.service.Create(context.Background(), &models.Criterion{
		Keyword:   "gmail",
		FieldType: models.FieldDomain,
	}, 7)
	s.Require().NoError(err)
	card, err := s.service.CreateCard(context.Background(), &models.CardCriterion{BIN: "559444"}, 7)
	s.Require().NoError(err)

	_, _, err = s.alerts.CreateIfAbsent(context.Background(), &models.Alert{
		CriterionID:  kw.ID,
		RecordID:     1,
		MatchedField: models.FieldDomain,
		Severity:     models.SeverityMedium,
	})
	s.Require().NoError(err)

	stats, err := s.service.Stats(context.Background())
	s.Require().NoError(err)
	s.Require().Len(stats.Keyword, 1)
	s.Require().Len(stats.Card, 1)
	s.Equal(kw.ID, stats.Keyword[0].Criterion.ID)
	s.Equal(card.ID, stats.Card[0].CardCriterion.ID)
}
