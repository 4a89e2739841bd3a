package models

import (
	"time"

	dErrors "stealwatch/pkg/errors"
)

// FieldType selects which credential attribute a keyword criterion matches.
type FieldType string

const (
	FieldDomain   FieldType = "domain"
	FieldUsername FieldType = "username"
	FieldIP       FieldType = "ip"
	FieldURL      FieldType = "url"
)

// IsValid checks if the field type is one of the supported enum values.
// Unknown values are possible in stored criteria written by newer versions;
// matchers skip them with a warning rather than failing the sweep.
func (f FieldType) IsValid() bool {
	switch f {
	case FieldDomain, FieldUsername, FieldIP, FieldURL:
		return true
	}
	return false
}

// ParseFieldType creates a FieldType from a string, validating it.
func ParseFieldType(s string) (FieldType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "field type cannot be empty")
	}
	f := FieldType(s)
	if !f.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid field type: must be domain, username, ip or url")
	}
	return f, nil
}

// Severity ranks analyst attention, it does not affect matching.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AlertStatus is the review state of an alert.
//
// Transitions: new → reviewed, new → false_positive. Both review states are
// terminal with respect to new: a reviewed alert may be re-marked with the
// other terminal status, but nothing ever moves an alert back to new.
type AlertStatus string

const (
	StatusNew           AlertStatus = "new"
	StatusReviewed      AlertStatus = "reviewed"
	StatusFalsePositive AlertStatus = "false_positive"
)

func (s AlertStatus) IsValid() bool {
	switch s {
	case StatusNew, StatusReviewed, StatusFalsePositive:
		return true
	}
	return false
}

func (s AlertStatus) IsTerminal() bool {
	return s == StatusReviewed || s == StatusFalsePositive
}

// Criterion is an analyst-defined keyword watch rule.
//
// Criteria referenced by alerts are deactivated, never hard-deleted; the
// store refuses deletion while alerts point at the criterion.
type Criterion struct {
	ID          int64     `json:"id"`
	Keyword     string    `json:"keyword"`
	FieldType   FieldType `json:"field_type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Active      bool      `json:"is_active"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// CardCriterion is an analyst-defined card BIN watch rule. Matching is exact
// 6-digit prefix equality, not substring.
type CardCriterion struct {
	ID          int64     `json:"id"`
	BIN         string    `json:"bin_number"`
	BankName    string    `json:"bank_name"`
	Country     string    `json:"country"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Active      bool      `json:"is_active"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// BINLength is the number of leading card digits identifying the issuer.
const BINLength = 6

// CredentialRecord is a harvested credential. Read-only to this engine.
type CredentialRecord struct {
	ID          int64     `json:"id"`
	Domain      string    `json:"domain"`
	URL         string    `json:"url"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	StealerType string    `json:"stealer_type"`
	HostID      int64     `json:"system_info_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// CardRecord is a harvested payment card. Read-only to this engine.
type CardRecord struct {
	ID         int64     `json:"id"`
	Number     string    `json:"number"`
	Cardholder string    `json:"cardholder"`
	CardType   string    `json:"card_type"`
	Expiry     string    `json:"expiry"`
	HostID     int64     `json:"system_info_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// BIN returns the first six digits of the card number, or "" when the number
// is too short to carry one.
func (c *CardRecord) BIN() string {
	if len(c.Number) < BINLength {
		return ""
	}
	return c.Number[:BINLength]
}

// HostMetadata describes the infected machine a record was harvested from.
// Zero or one per credential/card. Read-only to this engine.
type HostMetadata struct {
	ID           int64  `json:"id"`
	Country      string `json:"country"`
	IP           string `json:"ip"`
	ComputerName string `json:"computer_name"`
	OSVersion    string `json:"os_version"`
	MachineUser  string `json:"machine_user"`
}

// Alert records one credential record matching one keyword criterion. At most
// one alert exists per (criterion, record) pair; the alert store's uniqueness
// constraint is the engine's only hard consistency guarantee.
type Alert struct {
	ID           int64       `json:"id"`
	CriterionID  int64       `json:"watchlist_id"`
	MatchedField FieldType   `json:"matched_field"`
	MatchedValue string      `json:"matched_value"`
	RecordType   string      `json:"record_type"`
	RecordID     int64       `json:"record_id"`
	Severity     Severity    `json:"severity"`
	Status       AlertStatus `json:"status"`
	ReviewedBy   *int64      `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time  `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// RecordTypeCredential is the only record type keyword alerts carry today.
const RecordTypeCredential = "credential"

// CardAlert records one card record matching one BIN criterion. Unique per
// (card criterion, card) pair.
type CardAlert struct {
	ID              int64       `json:"id"`
	CardCriterionID int64       `json:"card_watchlist_id"`
	MatchedBIN      string      `json:"matched_bin"`
	CardNumber      string      `json:"card_number"`
	CardID          int64       `json:"card_id"`
	BankName        string      `json:"bank_name"`
	Severity        Severity    `json:"severity"`
	Status          AlertStatus `json:"status"`
	ReviewedBy      *int64      `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time  `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// AlertDetail is the denormalized enrichment snapshot for one credential
// alert. At most one per alert; created lazily after the alert exists and
// rebuilt in place by the reconciliation sweeper. Absence is a normal state
// every reader must handle by falling back to a live join.
type AlertDetail struct {
	AlertID      int64   `json:"alert_id"`
	CredentialID int64   `json:"credential_id"`
	Domain       *string `json:"domain"`
	URL          *string `json:"url"`
	Username     *string `json:"username"`
	Password     *string `json:"password"`
	StealerType  *string `json:"stealer_type"`
	Country      *string `json:"system_country"`
	IP           *string `json:"system_ip"`
	ComputerName *string `json:"computer_name"`
	OSVersion    *string `json:"os_version"`
	MachineUser  *string `json:"machine_user"`
}

// Coverage summarizes how far the detail projection lags behind alerts.
type Coverage struct {
	Total       int       `json:"total_credential_alerts"`
	WithDetails int       `json:"alerts_with_details"`
	Missing     int       `json:"alerts_missing_details"`
	Percentage  float64   `json:"coverage_percentage"`
	ComputedAt  time.Time `json:"computed_at"`
}

// CriterionStats aggregates alert counts for one keyword criterion.
type CriterionStats struct {
	Criterion
	AlertCount          int `json:"alert_count"`
	NewAlerts           int `json:"new_alerts"`
	ReviewedAlerts      int `json:"reviewed_alerts"`
	FalsePositiveAlerts int `json:"false_positive_alerts"`
}

// CardCriterionStats aggregates alert counts for one BIN criterion.
type CardCriterionStats struct {
	CardCriterion
	AlertCount          int `json:"alert_count"`
	NewAlerts           int `json:"new_alerts"`
	ReviewedAlerts      int `json:"reviewed_alerts"`
	FalsePositiveAlerts int `json:"false_positive_alerts"`
}
