package models

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// IsTerminal reports whether no further transition is possible from s.
// Sent is not terminal: the task can still be completed or cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

type Reminder struct {
	ReminderID      int64      `json:"reminder_id"`
	UserID          int64      `json:"user_id"`
	Phone           string     `json:"phone_number,omitempty"` // joined from users on due queries
	Task            string     `json:"task"`
	ScheduledTime   time.Time  `json:"scheduled_time"`
	Status          Status     `json:"status"`
	Confirmed       bool       `json:"confirmed"`
	ParentID        *int64     `json:"parent_id"`
	RecurrenceCount int        `json:"recurrence_count"`
	RetryCount      int        `json:"retry_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SentAt          *time.Time `json:"sent_at"`
	// FailedAt is stamped when delivery gave up; the reminder stays pending
	// until it expires but is no longer due.
	FailedAt *time.Time `json:"delivery_failed_at,omitempty"`
}

// GroupRootID returns the id shared by every member of the reminder's
// escalation group: the parent for siblings, the reminder itself for roots.
func (r *Reminder) GroupRootID() int64 {
	if r.ParentID != nil {
		return *r.ParentID
	}
	return r.ReminderID
}

// IsRoot returns true if this reminder heads its escalation group
func (r *Reminder) IsRoot() bool {
	return r.ParentID == nil
}
