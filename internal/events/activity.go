// Package events defines the payloads published for swim activity changes.
package events

import "time"

// Event types as stored in the outbox.
const (
	TypeActivityRecorded = "swim.activity.recorded"
	TypeActivityDeleted  = "swim.activity.deleted"
)

// Topics the event types are routed to.
const (
	TopicActivityRecorded = "swim_activity_recorded"
	TopicActivityDeleted  = "swim_activity_deleted"
)

// ActivityRecorded is emitted whenever an activity is imported or re-imported.
type ActivityRecorded struct {
	ActivityID      string    `json:"activity_id"`
	TenantID        string    `json:"tenant_id"`
	UserID          string    `json:"user_id"`
	Date            time.Time `json:"date"`
	Distance        int       `json:"distance"`
	DurationMinutes int       `json:"duration_minutes"`
	Pace            string    `json:"pace"`
	Feeling         string    `json:"feeling"`
	IntervalCount   int       `json:"interval_count"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// ActivityDeleted is emitted when an activity is removed.
type ActivityDeleted struct {
	ActivityID string    `json:"activity_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// Owner is the common header every activity event carries. Consumers decode it first to find
// whose projection to refresh without caring about the concrete type.
type Owner struct {
	ActivityID string `json:"activity_id"`
	TenantID   string `json:"tenant_id"`
	UserID     string `json:"user_id"`
}
