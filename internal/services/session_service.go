package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ygdillon/fitlink/internal/models"
	"github.com/ygdillon/fitlink/internal/repository"
	"github.com/ygdillon/fitlink/pkg/schedule"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrConflict               = errors.New("session conflict")
	ErrClientNotFound         = errors.New("client not found")
	ErrSessionNotFound        = errors.New("session not found")
	ErrWorkoutNotFound        = errors.New("workout not found")
)

// ConflictError reports which existing session blocked the requested
// slot. errors.Is(err, ErrConflict) matches it.
type ConflictError struct {
	ClientName string
	Date       time.Time
	StartTime  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"time conflicts with an existing session for %s at %s on %s",
		e.ClientName,
		e.StartTime,
		e.Date.Format("2006-01-02"),
	)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type SessionService struct {
	db          *pgxpool.Pool
	sessionRepo *repository.SessionRepository
	changeRepo  *repository.SessionChangeRepository
	clientRepo  *repository.ClientRepository
	workoutRepo *repository.WorkoutRepository
	userRepo    userReader
}

func NewSessionService(
	db *pgxpool.Pool,
	sessionRepo *repository.SessionRepository,
	changeRepo *repository.SessionChangeRepository,
	clientRepo *repository.ClientRepository,
	workoutRepo *repository.WorkoutRepository,
	userRepo userReader,
) *SessionService {
	return &SessionService{
		db:          db,
		sessionRepo: sessionRepo,
		changeRepo:  changeRepo,
		clientRepo:  clientRepo,
		workoutRepo: workoutRepo,
		userRepo:    userRepo,
	}
}

type CreateSessionInput struct {
	ClientID        int64
	WorkoutID       *int64
	Date            time.Time
	StartTime       string
	DurationMinutes int
	SessionType     string
	Location        *string
	Notes           *string
}

type RecurringSeriesInput struct {
	CreateSessionInput
	Pattern   string
	EndDate   time.Time
	DayOfWeek *int
}

type RecurringSeriesResult struct {
	Parent       *models.Session  `json:"parent"`
	Children     []models.Session `json:"children"`
	SkippedDates []string         `json:"skipped_dates"`
	Summary      string           `json:"summary"`
}

type UpdateSessionInput struct {
	Date            *time.Time
	StartTime       *string
	DurationMinutes *int
	SessionType     *string
	Location        *string
	Notes           *string
	Status          *string
}

func (s *SessionService) CreateSession(
	ctx context.Context,
	trainerID int64,
	input CreateSessionInput,
) (*models.Session, error) {
	if err := s.normalizeCreateInput(&input); err != nil {
		return nil, err
	}
	if err := s.checkAssociations(ctx, trainerID, input); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", trainerID); err != nil {
		return nil, err
	}

	conflict, err := s.findConflict(ctx, txSessionRepo, trainerID, input.Date, input.StartTime, input.DurationMinutes, 0)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return nil, s.conflictError(ctx, conflict)
	}

	session, err := txSessionRepo.Create(ctx, repository.CreateSessionRow{
		TrainerID:       trainerID,
		ClientID:        input.ClientID,
		WorkoutID:       input.WorkoutID,
		Date:            input.Date,
		StartTime:       input.StartTime,
		DurationMinutes: input.DurationMinutes,
		SessionType:     input.SessionType,
		Location:        input.Location,
		Notes:           input.Notes,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return session, nil
}

// CreateRecurringSeries books a whole series in one transaction. A
// conflict on the first date aborts the request; conflicts on later
// dates skip that occurrence and are reported back, not treated as
// failures.
func (s *SessionService) CreateRecurringSeries(
	ctx context.Context,
	trainerID int64,
	input RecurringSeriesInput,
) (*RecurringSeriesResult, error) {
	if err := s.normalizeCreateInput(&input.CreateSessionInput); err != nil {
		return nil, err
	}
	if !schedule.ValidPattern(input.Pattern) {
		return nil, ErrInvalidInput
	}
	if input.EndDate.IsZero() {
		return nil, ErrInvalidInput
	}
	if input.DayOfWeek != nil && (*input.DayOfWeek < 0 || *input.DayOfWeek > 6) {
		return nil, ErrInvalidInput
	}
	if err := s.checkAssociations(ctx, trainerID, input.CreateSessionInput); err != nil {
		return nil, err
	}

	dates := schedule.GenerateSeries(input.Date, input.EndDate, input.Pattern)
	if len(dates) == 0 {
		return nil, ErrInvalidInput
	}

	dayOfWeek := input.DayOfWeek
	if dayOfWeek == nil {
		anchor := int(input.Date.Weekday())
		dayOfWeek = &anchor
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", trainerID); err != nil {
		return nil, err
	}

	// The first occurrence is a hard precondition: if it conflicts,
	// nothing is written.
	conflict, err := s.findConflict(ctx, txSessionRepo, trainerID, dates[0], input.StartTime, input.DurationMinutes, 0)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return nil, s.conflictError(ctx, conflict)
	}

	parent, err := txSessionRepo.Create(ctx, repository.CreateSessionRow{
		TrainerID:        trainerID,
		ClientID:         input.ClientID,
		WorkoutID:        input.WorkoutID,
		Date:             dates[0],
		StartTime:        input.StartTime,
		DurationMinutes:  input.DurationMinutes,
		SessionType:      input.SessionType,
		Location:         input.Location,
		Notes:            input.Notes,
		IsRecurring:      true,
		RecurringPattern: &input.Pattern,
		RecurringEndDate: &input.EndDate,
		DayOfWeek:        dayOfWeek,
	})
	if err != nil {
		return nil, err
	}

	children := make([]models.Session, 0, len(dates)-1)
	skipped := make([]string, 0)

	// Later occurrences are checked inside the same transaction so the
	// detector sees the rows inserted earlier in this loop.
	for _, occurrence := range dates[1:] {
		conflict, err := s.findConflict(ctx, txSessionRepo, trainerID, occurrence, input.StartTime, input.DurationMinutes, 0)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			skipped = append(skipped, occurrence.Format("2006-01-02"))
			continue
		}

		child, err := txSessionRepo.Create(ctx, repository.CreateSessionRow{
			TrainerID:         trainerID,
			ClientID:          input.ClientID,
			WorkoutID:         input.WorkoutID,
			Date:              occurrence,
			StartTime:         input.StartTime,
			DurationMinutes:   input.DurationMinutes,
			SessionType:       input.SessionType,
			Location:          input.Location,
			Notes:             input.Notes,
			IsRecurring:       true,
			RecurringPattern:  &input.Pattern,
			RecurringEndDate:  &input.EndDate,
			DayOfWeek:         dayOfWeek,
			RecurringParentID: &parent.ID,
		})
		if err != nil {
			return nil, err
		}
		children = append(children, *child)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	created := 1 + len(children)
	return &RecurringSeriesResult{
		Parent:       parent,
		Children:     children,
		SkippedDates: skipped,
		Summary: fmt.Sprintf(
			"Created %d of %d sessions; skipped %d conflicting dates",
			created,
			len(dates),
			len(skipped),
		),
	}, nil
}

func (s *SessionService) UpdateSession(
	ctx context.Context,
	trainerID int64,
	sessionID int64,
	input UpdateSessionInput,
) (*models.Session, error) {
	session, err := s.sessionRepo.GetByIDForTrainer(ctx, sessionID, trainerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if session.Status == models.SessionStatusCompleted || session.Status == models.SessionStatusCancelled {
		return nil, ErrInvalidStateTransition
	}

	if input.Status != nil {
		if err := validateStatusTransition(session.Status, *input.Status); err != nil {
			return nil, err
		}
	}
	if input.StartTime != nil {
		if _, err := schedule.TimeToMinutes(*input.StartTime); err != nil {
			return nil, ErrInvalidInput
		}
	}
	if input.DurationMinutes != nil && *input.DurationMinutes <= 0 {
		return nil, ErrInvalidInput
	}
	if input.SessionType != nil && !validSessionType(*input.SessionType) {
		return nil, ErrInvalidInput
	}
	if input.Date != nil && input.Date.IsZero() {
		return nil, ErrInvalidInput
	}

	fields := repository.UpdateSessionFields{
		Date:            input.Date,
		StartTime:       input.StartTime,
		DurationMinutes: input.DurationMinutes,
		SessionType:     input.SessionType,
		Location:        input.Location,
		Notes:           input.Notes,
		Status:          input.Status,
	}

	timingChanged := input.Date != nil || input.StartTime != nil || input.DurationMinutes != nil
	if !timingChanged {
		updated, err := s.sessionRepo.UpdateFields(ctx, sessionID, fields)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrSessionNotFound
			}
			return nil, err
		}
		return updated, nil
	}

	// Effective slot falls back to the stored values for anything the
	// caller did not supply.
	effectiveDate := session.Date
	if input.Date != nil {
		effectiveDate = *input.Date
	}
	effectiveStart := session.StartTime
	if input.StartTime != nil {
		effectiveStart = *input.StartTime
	}
	effectiveDuration := session.DurationMinutes
	if input.DurationMinutes != nil {
		effectiveDuration = *input.DurationMinutes
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", trainerID); err != nil {
		return nil, err
	}

	conflict, err := s.findConflict(ctx, txSessionRepo, trainerID, effectiveDate, effectiveStart, effectiveDuration, sessionID)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return nil, s.conflictError(ctx, conflict)
	}

	updated, err := txSessionRepo.UpdateFields(ctx, sessionID, fields)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return updated, nil
}

// CancelSession transitions one session to cancelled and appends the
// audit row in the same transaction. Sibling sessions in a recurring
// series are never touched.
func (s *SessionService) CancelSession(
	ctx context.Context,
	trainerID int64,
	sessionID int64,
	reason *string,
) (*models.Session, error) {
	session, err := s.sessionRepo.GetByIDForTrainer(ctx, sessionID, trainerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if session.Status == models.SessionStatusCompleted || session.Status == models.SessionStatusCancelled {
		return nil, ErrInvalidStateTransition
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	txChangeRepo := repository.NewSessionChangeRepository(tx)

	if _, err := txChangeRepo.Create(ctx, repository.CreateSessionChangeInput{
		SessionID:    session.ID,
		ChangeType:   models.SessionStatusCancelled,
		PreviousDate: session.Date,
		PreviousTime: session.StartTime,
		Reason:       reason,
		ChangedBy:    trainerID,
	}); err != nil {
		return nil, err
	}

	cancelled, err := txSessionRepo.UpdateStatusIfCurrent(ctx, session.ID, session.Status, models.SessionStatusCancelled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return cancelled, nil
}

func (s *SessionService) GetSession(
	ctx context.Context,
	trainerID int64,
	sessionID int64,
) (*models.Session, error) {
	session, err := s.sessionRepo.GetByIDForTrainer(ctx, sessionID, trainerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *SessionService) ListSessions(
	ctx context.Context,
	trainerID int64,
	filter repository.SessionListFilter,
) ([]models.Session, int, error) {
	filter.TrainerID = trainerID

	sessions, err := s.sessionRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.sessionRepo.CountForList(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (s *SessionService) GetSessionHistory(
	ctx context.Context,
	trainerID int64,
	sessionID int64,
) ([]models.SessionChange, error) {
	if _, err := s.sessionRepo.GetByIDForTrainer(ctx, sessionID, trainerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s.changeRepo.ListBySessionID(ctx, sessionID)
}

func (s *SessionService) normalizeCreateInput(input *CreateSessionInput) error {
	if input.ClientID <= 0 || input.Date.IsZero() {
		return ErrInvalidInput
	}
	if _, err := schedule.TimeToMinutes(input.StartTime); err != nil {
		return ErrInvalidInput
	}
	if input.DurationMinutes < 0 {
		return ErrInvalidInput
	}
	if input.DurationMinutes == 0 {
		input.DurationMinutes = schedule.DefaultDurationMinutes
	}
	if input.SessionType == "" {
		input.SessionType = models.SessionTypeInPerson
	}
	if !validSessionType(input.SessionType) {
		return ErrInvalidInput
	}
	return nil
}

func (s *SessionService) checkAssociations(
	ctx context.Context,
	trainerID int64,
	input CreateSessionInput,
) error {
	if _, err := s.clientRepo.GetActiveLink(ctx, trainerID, input.ClientID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrClientNotFound
		}
		return err
	}
	if input.WorkoutID != nil {
		if _, err := s.workoutRepo.GetByIDForTrainer(ctx, *input.WorkoutID, trainerID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWorkoutNotFound
			}
			return err
		}
	}
	return nil
}

// findConflict loads the active sessions for (trainer, date) through the
// given repository and returns the first one whose interval overlaps the
// candidate slot, in id order. Running it on a transaction-scoped
// repository makes it see that transaction's own uncommitted inserts.
func (s *SessionService) findConflict(
	ctx context.Context,
	sessions *repository.SessionRepository,
	trainerID int64,
	date time.Time,
	startTime string,
	durationMinutes int,
	excludeID int64,
) (*models.Session, error) {
	candidateStart, err := schedule.TimeToMinutes(startTime)
	if err != nil {
		return nil, ErrInvalidInput
	}

	existing, err := sessions.ListActiveOnDate(ctx, trainerID, date, excludeID)
	if err != nil {
		return nil, err
	}

	for i := range existing {
		existingStart, err := schedule.TimeToMinutes(existing[i].StartTime)
		if err != nil {
			return nil, err
		}
		if schedule.Overlaps(candidateStart, durationMinutes, existingStart, existing[i].DurationMinutes) {
			return &existing[i], nil
		}
	}
	return nil, nil
}

func (s *SessionService) conflictError(ctx context.Context, conflict *models.Session) error {
	clientName := "another client"
	if client, err := s.userRepo.GetByID(ctx, conflict.ClientID); err == nil {
		if client.FullName != nil && *client.FullName != "" {
			clientName = *client.FullName
		} else {
			clientName = client.Email
		}
	}

	return &ConflictError{
		ClientName: clientName,
		Date:       conflict.Date,
		StartTime:  conflict.StartTime,
	}
}

func validSessionType(sessionType string) bool {
	switch sessionType {
	case models.SessionTypeInPerson, models.SessionTypeOnline, models.SessionTypeHybrid:
		return true
	default:
		return false
	}
}

func validateStatusTransition(current, next string) error {
	switch next {
	case models.SessionStatusConfirmed:
		if current != models.SessionStatusScheduled {
			return ErrInvalidStateTransition
		}
	case models.SessionStatusCompleted:
		if current != models.SessionStatusConfirmed {
			return ErrInvalidStateTransition
		}
	case models.SessionStatusCancelled:
		// Cancellation goes through CancelSession so the audit row is
		// written with the status change.
		return ErrInvalidStatus
	default:
		return ErrInvalidStatus
	}
	return nil
}
