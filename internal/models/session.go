package models

import "time"

// Session statuses. Scheduled is the initial state; completed and
// cancelled are terminal.
const (
	SessionStatusScheduled = "scheduled"
	SessionStatusConfirmed = "confirmed"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

const (
	SessionTypeInPerson = "in_person"
	SessionTypeOnline   = "online"
	SessionTypeHybrid   = "hybrid"
)

type Session struct {
	ID                int64      `json:"id"`
	TrainerID         int64      `json:"trainer_id"`
	ClientID          int64      `json:"client_id"`
	WorkoutID         *int64     `json:"workout_id,omitempty"`
	Date              time.Time  `json:"date"`
	StartTime         string     `json:"start_time"`
	DurationMinutes   int        `json:"duration_minutes"`
	SessionType       string     `json:"session_type"`
	Location          *string    `json:"location,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
	Status            string     `json:"status"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurringPattern  *string    `json:"recurring_pattern,omitempty"`
	RecurringEndDate  *time.Time `json:"recurring_end_date,omitempty"`
	DayOfWeek         *int       `json:"day_of_week,omitempty"`
	RecurringParentID *int64     `json:"recurring_parent_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SessionChange is an append-only audit record written when a session is
// cancelled. Rows are never mutated or deleted.
type SessionChange struct {
	ID           int64     `json:"id"`
	SessionID    int64     `json:"session_id"`
	ChangeType   string    `json:"change_type"`
	PreviousDate time.Time `json:"previous_date"`
	PreviousTime string    `json:"previous_time"`
	Reason       *string   `json:"reason,omitempty"`
	ChangedBy    int64     `json:"changed_by"`
	CreatedAt    time.Time `json:"created_at"`
}
