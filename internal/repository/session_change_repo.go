package repository

import (
	"context"
	"time"

	"github.com/ygdillon/fitlink/internal/models"
)

type CreateSessionChangeInput struct {
	SessionID    int64
	ChangeType   string
	PreviousDate time.Time
	PreviousTime string
	Reason       *string
	ChangedBy    int64
}

// SessionChangeRepository manages the append-only audit trail. Rows are
// only ever inserted and read.
type SessionChangeRepository struct {
	db DBTX
}

func NewSessionChangeRepository(db DBTX) *SessionChangeRepository {
	return &SessionChangeRepository{db: db}
}

func (r *SessionChangeRepository) Create(
	ctx context.Context,
	input CreateSessionChangeInput,
) (*models.SessionChange, error) {
	query := `
		INSERT INTO session_changes (session_id, change_type, previous_date, previous_time, reason, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, session_id, change_type, previous_date, previous_time, reason, changed_by, created_at
	`

	var change models.SessionChange
	err := r.db.QueryRow(
		ctx,
		query,
		input.SessionID,
		input.ChangeType,
		input.PreviousDate,
		input.PreviousTime,
		input.Reason,
		input.ChangedBy,
	).Scan(
		&change.ID,
		&change.SessionID,
		&change.ChangeType,
		&change.PreviousDate,
		&change.PreviousTime,
		&change.Reason,
		&change.ChangedBy,
		&change.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &change, nil
}

func (r *SessionChangeRepository) ListBySessionID(
	ctx context.Context,
	sessionID int64,
) ([]models.SessionChange, error) {
	query := `
		SELECT id, session_id, change_type, previous_date, previous_time, reason, changed_by, created_at
		FROM session_changes
		WHERE session_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]models.SessionChange, 0)
	for rows.Next() {
		var change models.SessionChange
		if err := rows.Scan(
			&change.ID,
			&change.SessionID,
			&change.ChangeType,
			&change.PreviousDate,
			&change.PreviousTime,
			&change.Reason,
			&change.ChangedBy,
			&change.CreatedAt,
		); err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return changes, nil
}
