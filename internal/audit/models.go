// Package audit emits engine events for downstream security tooling. Events
// are advisory: a failed emit never fails the operation that produced it.
package audit

import (
	"time"
)

// Action names the engine operation an event records.
type Action string

const (
	ActionAlertCreated     Action = "alert_created"
	ActionCardAlertCreated Action = "card_alert_created"
	ActionAlertReviewed    Action = "alert_reviewed"
	ActionAlertDismissed   Action = "alert_dismissed"
	ActionCriterionCreated Action = "criterion_created"
	ActionCriterionRemoved Action = "criterion_removed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	AlertID     int64     `json:"alert_id,omitempty"`
	CriterionID int64     `json:"criterion_id,omitempty"`
	RecordID    int64     `json:"record_id,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	ActorID     int64     `json:"actor_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}
