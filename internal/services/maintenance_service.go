package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ygdillon/fitlink/internal/models"
	"github.com/ygdillon/fitlink/internal/repository"
)

// MaintenanceService holds batch cleanup operations that sit outside the
// normal session lifecycle. CancelSession deliberately never cascades;
// cancelling a whole series is this separate, explicitly invoked routine.
type MaintenanceService struct {
	db          *pgxpool.Pool
	sessionRepo *repository.SessionRepository
}

func NewMaintenanceService(db *pgxpool.Pool, sessionRepo *repository.SessionRepository) *MaintenanceService {
	return &MaintenanceService{db: db, sessionRepo: sessionRepo}
}

// CancelSeries cancels a recurring parent and all of its non-terminal
// children in one transaction, writing one audit row per cancelled
// session. Returns the number of sessions cancelled.
func (s *MaintenanceService) CancelSeries(
	ctx context.Context,
	trainerID int64,
	parentID int64,
	reason *string,
) (int, error) {
	parent, err := s.sessionRepo.GetByIDForTrainer(ctx, parentID, trainerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSessionNotFound
		}
		return 0, err
	}
	if !parent.IsRecurring || parent.RecurringParentID != nil {
		return 0, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txSessionRepo := repository.NewSessionRepository(tx)
	txChangeRepo := repository.NewSessionChangeRepository(tx)

	// Re-read the parent inside the transaction so the status snapshot
	// matches the rows the updates will see.
	parent, err = txSessionRepo.GetByIDForTrainer(ctx, parentID, trainerID)
	if err != nil {
		return 0, err
	}

	children, err := txSessionRepo.ListChildren(ctx, parent.ID)
	if err != nil {
		return 0, err
	}

	targets := append([]models.Session{*parent}, children...)
	cancelled := 0

	for i := range targets {
		target := &targets[i]
		if target.Status == models.SessionStatusCompleted || target.Status == models.SessionStatusCancelled {
			continue
		}

		if _, err := txChangeRepo.Create(ctx, repository.CreateSessionChangeInput{
			SessionID:    target.ID,
			ChangeType:   models.SessionStatusCancelled,
			PreviousDate: target.Date,
			PreviousTime: target.StartTime,
			Reason:       reason,
			ChangedBy:    trainerID,
		}); err != nil {
			return 0, err
		}

		if _, err := txSessionRepo.UpdateStatusIfCurrent(ctx, target.ID, target.Status, models.SessionStatusCancelled); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return 0, err
		}
		cancelled++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return cancelled, nil
}
