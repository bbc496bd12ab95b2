// Package domain defines the persistence models for behavioral signals,
// mood entries, crisis alerts, quality metrics, and trusted contacts.
// These types are mapped with GORM and form the core data layer of the
// wellness backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// SignalKind enumerates the recognized behavioral signal kinds. The set is
// closed: every kind carries a fixed engagement weight (see scoring package),
// and the normalizer rejects anything outside this enumeration.
type SignalKind string

const (
	SignalCompletion SignalKind = "completion"
	SignalRetry      SignalKind = "retry"
	SignalDuration   SignalKind = "duration"
	SignalSkip       SignalKind = "skip"
	SignalDropoff    SignalKind = "dropoff"
)

// AllSignalKinds lists every recognized kind. Used by the normalizer for
// validation and by the scorer's construction-time weight check.
var AllSignalKinds = []SignalKind{
	SignalCompletion, SignalRetry, SignalDuration, SignalSkip, SignalDropoff,
}

// Valid reports whether k is one of the recognized signal kinds.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalCompletion, SignalRetry, SignalDuration, SignalSkip, SignalDropoff:
		return true
	}
	return false
}

// Signal is a discrete behavioral event recorded against a user session.
// Signals are immutable once recorded; engagement scores are re-derived from
// the current signal set rather than updated in place.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID / SessionID: owning user and session; indexed together for
//     score computation queries.
//   - Kind: one of the closed SignalKind enumeration (enforced by DB check).
//   - Value: structured payload recorded as JSON text; the core treats it as
//     opaque evidence.
//   - OccurredAt: client-reported event time.
type Signal struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string         `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_session_signals,priority:1"`
	SessionID  string         `json:"session_id"  gorm:"type:varchar(64);not null;index:idx_session_signals,priority:2"`
	Kind       SignalKind     `json:"kind"        gorm:"type:varchar(16);not null;check:kind IN ('completion','retry','duration','skip','dropoff')"`
	Value      string         `json:"value,omitempty" gorm:"type:text"`
	OccurredAt time.Time      `json:"occurred_at" gorm:"not null"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Signal.
func (Signal) TableName() string { return "signals" }

// MoodEntry is a self-reported mood on the 1-10 scale with optional emotion
// labels. Entries are immutable and ordered per user by OccurredAt; the
// crisis detector consumes the most recent N entries.
type MoodEntry struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string         `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_moods,priority:1"`
	Score      int            `json:"score"       gorm:"not null;check:score BETWEEN 1 AND 10"`
	Emotions   []string       `json:"emotions,omitempty" gorm:"serializer:json;type:text"`
	OccurredAt time.Time      `json:"occurred_at" gorm:"not null;index:idx_user_moods,priority:2"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for MoodEntry.
func (MoodEntry) TableName() string { return "mood_entries" }

// AlertState is the lifecycle state of a CrisisAlert.
type AlertState string

const (
	AlertPending     AlertState = "pending"
	AlertDispatching AlertState = "dispatching"
	AlertDelivered   AlertState = "delivered"
	AlertFailed      AlertState = "failed"
	AlertSuppressed  AlertState = "suppressed"
)

// Active reports whether the state counts toward the at-most-one-active-alert
// invariant.
func (s AlertState) Active() bool {
	return s == AlertPending || s == AlertDispatching
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// Failed -> Dispatching covers the retry path; everything else follows
// Pending -> Dispatching -> {Delivered, Failed}. Suppressed and Delivered are
// terminal.
func (s AlertState) CanTransition(next AlertState) bool {
	switch s {
	case AlertPending:
		return next == AlertDispatching || next == AlertSuppressed
	case AlertDispatching:
		return next == AlertDelivered || next == AlertFailed
	case AlertFailed:
		return next == AlertDispatching
	}
	return false
}

// CrisisAlert is the mutable record owned by the alert lifecycle manager for
// its entire life. At most one alert per user may be in an active state
// (pending/dispatching) at any time; concurrent triggers escalate the active
// alert instead of spawning a parallel one.
//
// NotifiedContacts preserves the exact order in which contacts were notified,
// which matters for audit (configured priority, e.g. therapist before parent).
type CrisisAlert struct {
	ID               string         `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID           string         `json:"user_id"        gorm:"type:varchar(64);not null;index:idx_user_alerts"`
	SeverityLevel    int            `json:"severity_level" gorm:"not null"`
	TriggerPattern   string         `json:"trigger_pattern" gorm:"type:text;not null"`
	State            AlertState     `json:"state"          gorm:"type:varchar(16);not null;index;check:state IN ('pending','dispatching','delivered','failed','suppressed')"`
	NotifiedContacts []string       `json:"notified_contacts,omitempty" gorm:"serializer:json;type:text"`
	TriggerCount     int            `json:"trigger_count"  gorm:"not null;default:1"`
	AttemptCount     int            `json:"attempt_count"  gorm:"not null;default:0"`
	LastAttemptAt    *time.Time     `json:"last_attempt_at,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for CrisisAlert.
func (CrisisAlert) TableName() string { return "crisis_alerts" }

// QualityMetric is an append-only snapshot of a single quality assessment
// (response quality, quiz accuracy, satisfaction) for some entity, carrying
// the assessor's confidence in [0,1].
type QualityMetric struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	MetricType   string    `json:"metric_type"   gorm:"type:varchar(64);not null;index:idx_metric_entity,priority:3"`
	EntityID     string    `json:"entity_id"     gorm:"type:varchar(64);not null;index:idx_metric_entity,priority:1"`
	EntityType   string    `json:"entity_type"   gorm:"type:varchar(32);not null;index:idx_metric_entity,priority:2"`
	Score        float64   `json:"score"         gorm:"not null"`
	Confidence   float64   `json:"confidence"    gorm:"not null"`
	CalculatedAt time.Time `json:"calculated_at" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for QualityMetric.
func (QualityMetric) TableName() string { return "quality_metrics" }

// Contact is a trusted contact registered for crisis notification. Contacts
// are notified in ascending Priority order when an alert dispatches.
type Contact struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"  gorm:"type:varchar(64);not null;index:idx_user_contacts"`
	Name      string         `json:"name"     gorm:"type:varchar(128);not null"`
	Kind      string         `json:"kind"     gorm:"type:varchar(16);not null;check:kind IN ('email','sms','push')"`
	Address   string         `json:"address"  gorm:"type:varchar(255);not null"`
	Priority  int            `json:"priority" gorm:"not null;default:100"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string { return "contacts" }

// EngagementScore is the derived [0,1] engagement measure for a user session.
// It is recomputed on demand from the current signal set and never stored
// authoritatively; only a short-lived cache may hold it.
type EngagementScore struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Value       float64   `json:"value"`
	SignalCount int       `json:"signal_count"`
	ComputedAt  time.Time `json:"computed_at"`
}

// CrisisDetermination is the stateless outcome of one crisis evaluation over
// a user's recent mood window. Facets break the single trigger boolean into
// the distinct risk signatures that produced it.
type CrisisDetermination struct {
	UserID        string      `json:"user_id"`
	Triggered     bool        `json:"triggered"`
	RapidDecline  bool        `json:"rapid_decline"`
	ConsistentLow bool        `json:"consistent_low"`
	Severity      int         `json:"severity"`
	TriggerWindow []MoodEntry `json:"trigger_window,omitempty"`
	EvaluatedAt   time.Time   `json:"evaluated_at"`
}
