package models

import "time"

// Workout is a reusable workout template a session can link to.
type Workout struct {
	ID          int64     `json:"id"`
	TrainerID   int64     `json:"trainer_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
