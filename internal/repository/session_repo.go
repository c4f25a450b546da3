package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ygdillon/fitlink/internal/models"
)

const sessionColumns = `
	id, trainer_id, client_id, workout_id, session_date, start_time, duration_min,
	session_type, location, notes, status, is_recurring, recurring_pattern,
	recurring_end_date, day_of_week, recurring_parent_id, created_at, updated_at`

type CreateSessionRow struct {
	TrainerID         int64
	ClientID          int64
	WorkoutID         *int64
	Date              time.Time
	StartTime         string
	DurationMinutes   int
	SessionType       string
	Location          *string
	Notes             *string
	IsRecurring       bool
	RecurringPattern  *string
	RecurringEndDate  *time.Time
	DayOfWeek         *int
	RecurringParentID *int64
}

// UpdateSessionFields carries the mutable session columns for a partial
// update. A nil pointer means the column is left untouched; an empty
// string for Location or Notes clears the column to NULL.
type UpdateSessionFields struct {
	Date            *time.Time
	StartTime       *string
	DurationMinutes *int
	SessionType     *string
	Location        *string
	Notes           *string
	Status          *string
}

type SessionListFilter struct {
	TrainerID int64
	ClientID  int64
	Status    string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.TrainerID,
		&session.ClientID,
		&session.WorkoutID,
		&session.Date,
		&session.StartTime,
		&session.DurationMinutes,
		&session.SessionType,
		&session.Location,
		&session.Notes,
		&session.Status,
		&session.IsRecurring,
		&session.RecurringPattern,
		&session.RecurringEndDate,
		&session.DayOfWeek,
		&session.RecurringParentID,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) Create(ctx context.Context, input CreateSessionRow) (*models.Session, error) {
	query := `
		INSERT INTO sessions (
			trainer_id, client_id, workout_id, session_date, start_time, duration_min,
			session_type, location, notes, status, is_recurring, recurring_pattern,
			recurring_end_date, day_of_week, recurring_parent_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'scheduled', $10, $11, $12, $13, $14)
		RETURNING` + sessionColumns

	row := r.db.QueryRow(
		ctx,
		query,
		input.TrainerID,
		input.ClientID,
		input.WorkoutID,
		input.Date,
		input.StartTime,
		input.DurationMinutes,
		input.SessionType,
		input.Location,
		input.Notes,
		input.IsRecurring,
		input.RecurringPattern,
		input.RecurringEndDate,
		input.DayOfWeek,
		input.RecurringParentID,
	)
	return scanSession(row)
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM sessions
		WHERE id = $1
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID))
}

func (r *SessionRepository) GetByIDForTrainer(ctx context.Context, sessionID, trainerID int64) (*models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM sessions
		WHERE id = $1 AND trainer_id = $2
	`
	return scanSession(r.db.QueryRow(ctx, query, sessionID, trainerID))
}

// ListActiveOnDate returns the scheduled and confirmed sessions for a
// trainer on a calendar date in id order. excludeID, when non-zero,
// removes that session from the candidate set (used by updates so a
// session does not conflict with itself).
func (r *SessionRepository) ListActiveOnDate(
	ctx context.Context,
	trainerID int64,
	date time.Time,
	excludeID int64,
) ([]models.Session, error) {
	args := []any{trainerID, date}
	exclusion := ""
	if excludeID > 0 {
		args = append(args, excludeID)
		exclusion = "AND id <> $3"
	}

	query := fmt.Sprintf(`SELECT%s
		FROM sessions
		WHERE trainer_id = $1
		  AND session_date = $2
		  AND status IN ('scheduled', 'confirmed')
		  %s
		ORDER BY id ASC
	`, sessionColumns, exclusion)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *SessionRepository) List(ctx context.Context, filter SessionListFilter) ([]models.Session, error) {
	args := []any{filter.TrainerID}
	whereParts := []string{"trainer_id = $1"}

	if filter.ClientID > 0 {
		args = append(args, filter.ClientID)
		whereParts = append(whereParts, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		whereParts = append(whereParts, fmt.Sprintf("session_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		whereParts = append(whereParts, fmt.Sprintf("session_date <= $%d", len(args)))
	}

	limitClause := ""
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		limitClause = fmt.Sprintf("LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			limitClause += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	query := fmt.Sprintf(`SELECT%s
		FROM sessions
		WHERE %s
		ORDER BY session_date ASC, start_time ASC, id ASC
		%s
	`, sessionColumns, strings.Join(whereParts, " AND "), limitClause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *SessionRepository) CountForList(ctx context.Context, filter SessionListFilter) (int, error) {
	args := []any{filter.TrainerID}
	whereParts := []string{"trainer_id = $1"}

	if filter.ClientID > 0 {
		args = append(args, filter.ClientID)
		whereParts = append(whereParts, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		whereParts = append(whereParts, fmt.Sprintf("session_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		whereParts = append(whereParts, fmt.Sprintf("session_date <= $%d", len(args)))
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM sessions WHERE %s",
		strings.Join(whereParts, " AND "),
	)

	var total int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListChildren returns every session whose recurring_parent_id is
// parentID, in id order. The recurrence tree is exactly one level deep.
func (r *SessionRepository) ListChildren(ctx context.Context, parentID int64) ([]models.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM sessions
		WHERE recurring_parent_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// UpdateFields writes only the supplied columns plus updated_at. Returns
// pgx.ErrNoRows when the session does not exist.
func (r *SessionRepository) UpdateFields(
	ctx context.Context,
	sessionID int64,
	fields UpdateSessionFields,
) (*models.Session, error) {
	args := []any{sessionID}
	setParts := []string{"updated_at = NOW()"}

	addSet := func(column string, value any) {
		args = append(args, value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.Date != nil {
		addSet("session_date", *fields.Date)
	}
	if fields.StartTime != nil {
		addSet("start_time", *fields.StartTime)
	}
	if fields.DurationMinutes != nil {
		addSet("duration_min", *fields.DurationMinutes)
	}
	if fields.SessionType != nil {
		addSet("session_type", *fields.SessionType)
	}
	if fields.Location != nil {
		addSet("location", nullableText(*fields.Location))
	}
	if fields.Notes != nil {
		addSet("notes", nullableText(*fields.Notes))
	}
	if fields.Status != nil {
		addSet("status", *fields.Status)
	}

	query := fmt.Sprintf(`
		UPDATE sessions
		SET %s
		WHERE id = $1
		RETURNING%s
	`, strings.Join(setParts, ", "), sessionColumns)

	return scanSession(r.db.QueryRow(ctx, query, args...))
}

func (r *SessionRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	sessionID int64,
	currentStatus string,
	nextStatus string,
) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING` + sessionColumns

	return scanSession(r.db.QueryRow(ctx, query, sessionID, currentStatus, nextStatus))
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func nullableText(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
