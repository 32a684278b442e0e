package domain

import "time"

// SecurityEventType names a suspicious or audited action
type SecurityEventType string

const (
	EventUserCreated         SecurityEventType = "user_created"
	EventSelfReferral        SecurityEventType = "self_referral"
	EventInvalidReferrer     SecurityEventType = "invalid_referrer"
	EventDuplicateCompletion SecurityEventType = "duplicate_completion"
	EventSuspendedAction     SecurityEventType = "suspended_user_action"
	EventOverdraftAttempt    SecurityEventType = "overdraft_attempt"
	EventDuplicateUpdate     SecurityEventType = "duplicate_update"
	EventBadWebhookSecret    SecurityEventType = "bad_webhook_secret"
	EventUserStatusChanged   SecurityEventType = "user_status_changed"
)

// SecurityEvent Model. Rows are appended and never updated.
type SecurityEvent struct {
	ID        uint              `gorm:"primaryKey" json:"id"`                     // Primary key
	UserID    int64             `gorm:"index" json:"user_id"`                     // 0 when no user is known
	EventType SecurityEventType `gorm:"size:64;index;not null" json:"event_type"` // What happened
	Details   map[string]any    `gorm:"serializer:json;type:text" json:"details"` // Free-form context
	CreatedAt time.Time         `gorm:"index" json:"created_at"`                  // Time of the event
}
