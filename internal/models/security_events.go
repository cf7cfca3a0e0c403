package models

import "time"

type SecurityEventType string

const (
	EventLoginSucceeded     SecurityEventType = "login_succeeded"
	EventLoginFailed        SecurityEventType = "login_failed"
	EventSecondFactorFailed SecurityEventType = "second_factor_failed"
	EventAccountLocked      SecurityEventType = "account_locked"
	EventSessionIssued      SecurityEventType = "session_issued"
	EventSessionRevoked     SecurityEventType = "session_revoked"
	EventSessionExpired     SecurityEventType = "session_expired"
	EventSessionSuperseded  SecurityEventType = "session_superseded"
	EventOTPEnabled         SecurityEventType = "otp_enabled"
	EventOTPDisabled        SecurityEventType = "otp_disabled"
	EventPasswordReset      SecurityEventType = "password_reset"
	EventPasswordChanged    SecurityEventType = "password_changed"
	EventAdminDeletion      SecurityEventType = "admin_deletion"
)

// SecurityEvent is an audit record fanned out to the event sinks.
type SecurityEvent struct {
	EventID     string            `json:"event_id"`
	EventBucket int               `json:"event_bucket"`
	EventDate   string            `json:"event_date"`
	EventTime   time.Time         `json:"event_time"`
	EventType   SecurityEventType `json:"event_type"`
	UserID      int64             `json:"user_id,omitempty"`
	Email       string            `json:"email,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Factor      string            `json:"factor,omitempty"`
	IPAddress   string            `json:"ip_address,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
}
