package models

import "time"

const (
	RoleTrainer = "trainer"
	RoleClient  = "client"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	FullName     *string   `json:"full_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TrainerClient links a client account to a trainer. Session operations
// require an active link between the acting trainer and the target client.
type TrainerClient struct {
	ID        int64     `json:"id"`
	TrainerID int64     `json:"trainer_id"`
	ClientID  int64     `json:"client_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientSummary is the trainer-facing view of a linked client.
type ClientSummary struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	FullName *string `json:"full_name"`
	Status   string  `json:"status"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
