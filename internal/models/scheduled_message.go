package models

import "time"

// Scheduled message statuses
const (
	ScheduledPending   = "pending"
	ScheduledSent      = "sent"
	ScheduledFailed    = "failed"
	ScheduledCancelled = "cancelled"
)

// Recurrence values
const (
	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// ScheduledMessage is a message queued for delivery at ScheduledFor
type ScheduledMessage struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	ConnectionID  string     `json:"connection_id"`
	PhoneNumber   string     `json:"phone_number"`
	Message       string     `json:"message"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	Recurrence    string     `json:"recurrence"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastError     string     `json:"last_error,omitempty"`
	// NextAttemptAt is set while a failed occurrence waits for its retry
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsRecurring reports whether the message re-arms after delivery
func (m *ScheduledMessage) IsRecurring() bool {
	return m.Recurrence != "" && m.Recurrence != RecurrenceNone
}

// ScheduledMessageRequest is the create/update body for scheduled messages
type ScheduledMessageRequest struct {
	ConnectionID string    `json:"connection_id"`
	PhoneNumber  string    `json:"phone_number"`
	Message      string    `json:"message"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Recurrence   string    `json:"recurrence"`
}

// DispatchResult summarises one dispatcher pass
type DispatchResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}
