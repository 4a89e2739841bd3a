//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"stealwatch/internal/audit"
	"stealwatch/pkg/testutil/containers"
)

const auditTopic = "stealwatch.audit"

type KafkaPublisherSuite struct {
	suite.Suite
	kafka     *containers.KafkaContainer
	publisher *audit.KafkaPublisher
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.kafka = containers.NewKafkaContainer(s.T())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	publisher, err := audit.NewKafkaPublisher(ctx, []string{s.kafka.Broker}, auditTopic)
	s.Require().NoError(err)
	s.publisher = publisher
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	s.publisher.Close()
	s.kafka.Close(context.Background())
}

// consumeAction reads the topic from the start until it sees an event with
// the wanted action. Earlier tests' records are skipped, not drained.
func (s *KafkaPublisherSuite) consumeAction(ctx context.Context, action audit.Action) (*kgo.Record, audit.Event) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Broker),
		kgo.ConsumeTopics(auditTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	for {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(fetches.Err())
		for _, record := range fetches.Records() {
			var event audit.Event
			s.Require().NoError(json.Unmarshal(record.Value, &event))
			if event.Action == action {
				return record, event
			}
		}
	}
}

func (s *KafkaPublisherSuite) TestEmitRoundTrip() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.publisher.Emit(ctx, audit.Event{
		Action:      audit.ActionAlertCreated,
		AlertID:     42,
		CriterionID: 7,
		RecordID:    99,
		Severity:    "high",
	})
	s.Require().NoError(err)

	record, got := s.consumeAction(ctx, audit.ActionAlertCreated)
	s.Equal(string(audit.ActionAlertCreated), string(record.Key))
	s.Equal(int64(42), got.AlertID)
	s.Equal(int64(7), got.CriterionID)
	s.Equal(int64(99), got.RecordID)
	s.Equal("high", got.Severity)

	// The publisher stamps identity and time when the caller leaves them out.
	s.NotEmpty(got.ID)
	s.False(got.Timestamp.IsZero())
}

func (s *KafkaPublisherSuite) TestExplicitIdentityPreserved() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	err := s.publisher.Emit(ctx, audit.Event{
		ID:        "event-001",
		Action:    audit.ActionAlertDismissed,
		Timestamp: at,
		AlertID:   5,
		ActorID:   7,
	})
	s.Require().NoError(err)

	_, got := s.consumeAction(ctx, audit.ActionAlertDismissed)
	s.Equal("event-001", got.ID)
	s.True(at.Equal(got.Timestamp))
	s.Equal(int64(7), got.ActorID)
}
