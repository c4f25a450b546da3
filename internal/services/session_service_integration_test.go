package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/ygdillon/fitlink/internal/models"
	"github.com/ygdillon/fitlink/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestSessionServiceRejectsOverlappingCreate(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	trainerID := createTestUser(t, ctx, pool, models.RoleTrainer, "Overlap Trainer")
	firstClientID := createTestUser(t, ctx, pool, models.RoleClient, "Morgan Blake")
	secondClientID := createTestUser(t, ctx, pool, models.RoleClient, "Riley Chen")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, trainerID, firstClientID, secondClientID) })
	linkTestClient(t, ctx, pool, trainerID, firstClientID)
	linkTestClient(t, ctx, pool, trainerID, secondClientID)

	date := time.Date(2030, 3, 15, 0, 0, 0, 0, time.UTC)
	if _, err := service.CreateSession(ctx, trainerID, CreateSessionInput{
		ClientID:        firstClientID,
		Date:            date,
		StartTime:       "10:00",
		DurationMinutes: 60,
	}); err != nil {
		t.Fatalf("first CreateSession: %v", err)
	}

	_, err := service.CreateSession(ctx, trainerID, CreateSessionInput{
		ClientID:        secondClientID,
		Date:            date,
		StartTime:       "10:30",
		DurationMinutes: 45,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if conflictErr.ClientName != "Morgan Blake" || conflictErr.StartTime != "10:00" {
		t.Fatalf("expected conflict to name the blocking session, got %+v", conflictErr)
	}

	// Touching sessions share an endpoint and must coexist.
	if _, err := service.CreateSession(ctx, trainerID, CreateSessionInput{
		ClientID:        secondClientID,
		Date:            date,
		StartTime:       "11:00",
		DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("back-to-back CreateSession: %v", err)
	}
}

func TestRecurringSeriesSkipsConflictingDates(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	trainerID := createTestUser(t, ctx, pool, models.RoleTrainer, "Series Trainer")
	clientID := createTestUser(t, ctx, pool, models.RoleClient, "Series Client")
	otherClientID := createTestUser(t, ctx, pool, models.RoleClient, "Other Client")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, trainerID, clientID, otherClientID) })
	linkTestClient(t, ctx, pool, trainerID, clientID)
	linkTestClient(t, ctx, pool, trainerID, otherClientID)

	// Mondays 2030-06-03 through 2030-07-01: five dates. Block the third.
	blocked := time.Date(2030, 6, 17, 0, 0, 0, 0, time.UTC)
	if _, err := service.CreateSession(ctx, trainerID, CreateSessionInput{
		ClientID:        otherClientID,
		Date:            blocked,
		StartTime:       "09:00",
		DurationMinutes: 60,
	}); err != nil {
		t.Fatalf("blocking CreateSession: %v", err)
	}

	result, err := service.CreateRecurringSeries(ctx, trainerID, RecurringSeriesInput{
		CreateSessionInput: CreateSessionInput{
			ClientID:        clientID,
			Date:            time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC),
			StartTime:       "09:00",
			DurationMinutes: 60,
		},
		Pattern: "weekly",
		EndDate: time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateRecurringSeries: %v", err)
	}

	if result.Parent == nil || !result.Parent.IsRecurring {
		t.Fatalf("expected recurring parent, got %+v", result.Parent)
	}
	if len(result.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(result.Children))
	}
	if len(result.SkippedDates) != 1 || result.SkippedDates[0] != "2030-06-17" {
		t.Fatalf("expected skipped date 2030-06-17, got %v", result.SkippedDates)
	}
	for _, child := range result.Children {
		if child.RecurringParentID == nil || *child.RecurringParentID != result.Parent.ID {
			t.Fatalf("expected child linked to parent %d, got %+v", result.Parent.ID, child)
		}
	}
}

func TestRecurringSeriesFirstDateConflictCreatesNothing(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	trainerID := createTestUser(t, ctx, pool, models.RoleTrainer, "Abort Trainer")
	clientID := createTestUser(t, ctx, pool, models.RoleClient, "Abort Client")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, trainerID, clientID) })
	linkTestClient(t, ctx, pool, trainerID, clientID)

	firstDate := time.Date(2030, 8, 5, 0, 0, 0, 0, time.UTC)
	if _, err := service.CreateSession(ctx, trainerID, CreateSessionInput{
		ClientID:        clientID,
		Date:            firstDate,
		StartTime:       "14:00",
		DurationMinutes: 60,
	}); err != nil {
		t.Fatalf("blocking CreateSession: %v", err)
	}

	_, err := service.CreateRecurringSeries(ctx, trainerID, RecurringSeriesInput{
		CreateSessionInput: CreateSessionInput{
			ClientID:        clientID,
			Date:            firstDate,
			StartTime:       "14:30",
			DurationMinutes: 60,
		},
		Pattern: "weekly",
		EndDate: firstDate.AddDate(0, 0, 21),
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on first date, got %v", err)
	}

	var total int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM sessions WHERE trainer_id = $1", trainerID,
	).Scan(&total); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected only the blocking session to remain, got %d rows", total)
	}
}

func TestUpdateSessionConflictKeepsOriginalTiming(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	trainerID := createTestUser(t, ctx, pool, models.RoleTrainer, "Update Trainer")
	clientID := createTestUser(t, ctx, pool, models.RoleClient, "Update Client")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, trainerID, clientID) })
	linkTestClient(t, ctx, pool, trainerID, clientID)

	date := time.Date(2030, 9, 10, 0, 0, 0, 0, time.UTC)
	if _, err := service.CreateSession(ctx, trainerID, CreateSessionInput{
		ClientID:        clientID,
		Date:            date,
		StartTime:       "09:00",
		DurationMinutes: 60,
	}); err != nil {
		t.Fatalf("first CreateSession: %v", err)
	}
	second, err := service.CreateSession(ctx, trainerID, CreateSessionInput{
		ClientID:        clientID,
		Date:            date,
		StartTime:       "11:00",
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("second CreateSession: %v", err)
	}

	newStart := "09:30"
	if _, err := service.UpdateSession(ctx, trainerID, second.ID, UpdateSessionInput{
		StartTime: &newStart,
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on reschedule, got %v", err)
	}

	reloaded, err := service.GetSession(ctx, trainerID, second.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if reloaded.StartTime != "11:00" || reloaded.DurationMinutes != 60 {
		t.Fatalf("expected timing unchanged after rejected update, got %+v", reloaded)
	}
}

func TestCancelSessionWritesAuditAndLeavesChildren(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)

	trainerID := createTestUser(t, ctx, pool, models.RoleTrainer, "Cancel Trainer")
	clientID := createTestUser(t, ctx, pool, models.RoleClient, "Cancel Client")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, trainerID, clientID) })
	linkTestClient(t, ctx, pool, trainerID, clientID)

	result, err := service.CreateRecurringSeries(ctx, trainerID, RecurringSeriesInput{
		CreateSessionInput: CreateSessionInput{
			ClientID:        clientID,
			Date:            time.Date(2030, 10, 7, 0, 0, 0, 0, time.UTC),
			StartTime:       "08:00",
			DurationMinutes: 45,
		},
		Pattern: "weekly",
		EndDate: time.Date(2030, 10, 21, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateRecurringSeries: %v", err)
	}
	if len(result.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(result.Children))
	}

	reason := "trainer unavailable"
	cancelled, err := service.CancelSession(ctx, trainerID, result.Parent.ID, &reason)
	if err != nil {
		t.Fatalf("CancelSession: %v", err)
	}
	if cancelled.Status != models.SessionStatusCancelled {
		t.Fatalf("expected cancelled parent, got %q", cancelled.Status)
	}

	for _, child := range result.Children {
		got, err := service.GetSession(ctx, trainerID, child.ID)
		if err != nil {
			t.Fatalf("GetSession child %d: %v", child.ID, err)
		}
		if got.Status != models.SessionStatusScheduled {
			t.Fatalf("expected child %d untouched, got %q", child.ID, got.Status)
		}
	}

	changes, err := service.GetSessionHistory(ctx, trainerID, result.Parent.ID)
	if err != nil {
		t.Fatalf("GetSessionHistory: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected one change record, got %d", len(changes))
	}
	if changes[0].ChangeType != models.SessionStatusCancelled {
		t.Fatalf("expected cancellation record, got %q", changes[0].ChangeType)
	}
	if changes[0].Reason == nil || *changes[0].Reason != reason {
		t.Fatalf("expected reason %q, got %+v", reason, changes[0].Reason)
	}
	if changes[0].PreviousTime != "08:00" {
		t.Fatalf("expected previous time 08:00, got %q", changes[0].PreviousTime)
	}

	// Cancelling twice is rejected.
	if _, err := service.CancelSession(ctx, trainerID, result.Parent.ID, nil); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition, got %v", err)
	}
}

func TestCancelSeriesCascadesOverActiveSessions(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationSessionService(pool)
	maintenance := NewMaintenanceService(pool, repository.NewSessionRepository(pool))

	trainerID := createTestUser(t, ctx, pool, models.RoleTrainer, "Cascade Trainer")
	clientID := createTestUser(t, ctx, pool, models.RoleClient, "Cascade Client")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, trainerID, clientID) })
	linkTestClient(t, ctx, pool, trainerID, clientID)

	result, err := service.CreateRecurringSeries(ctx, trainerID, RecurringSeriesInput{
		CreateSessionInput: CreateSessionInput{
			ClientID:        clientID,
			Date:            time.Date(2030, 11, 4, 0, 0, 0, 0, time.UTC),
			StartTime:       "07:30",
			DurationMinutes: 60,
		},
		Pattern: "weekly",
		EndDate: time.Date(2030, 11, 25, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateRecurringSeries: %v", err)
	}

	// One child already cancelled; the cascade must not count it again.
	if _, err := service.CancelSession(ctx, trainerID, result.Children[0].ID, nil); err != nil {
		t.Fatalf("CancelSession child: %v", err)
	}

	reason := "series discontinued"
	count, err := maintenance.CancelSeries(ctx, trainerID, result.Parent.ID, &reason)
	if err != nil {
		t.Fatalf("CancelSeries: %v", err)
	}
	if want := 1 + len(result.Children) - 1; count != want {
		t.Fatalf("expected %d cancellations, got %d", want, count)
	}

	for _, id := range []int64{result.Parent.ID, result.Children[1].ID, result.Children[2].ID} {
		got, err := service.GetSession(ctx, trainerID, id)
		if err != nil {
			t.Fatalf("GetSession %d: %v", id, err)
		}
		if got.Status != models.SessionStatusCancelled {
			t.Fatalf("expected session %d cancelled, got %q", id, got.Status)
		}
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationSessionService(pool *pgxpool.Pool) *SessionService {
	return NewSessionService(
		pool,
		repository.NewSessionRepository(pool),
		repository.NewSessionChangeRepository(pool),
		repository.NewClientRepository(pool),
		repository.NewWorkoutRepository(pool),
		repository.NewUserRepository(pool),
	)
}

func createTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, role, fullName string) int64 {
	t.Helper()

	userRepo := repository.NewUserRepository(pool)
	user := &models.User{
		Email:        fmt.Sprintf("session-test-%s-%d@example.com", role, time.Now().UnixNano()),
		PasswordHash: "test-hash",
		Role:         role,
		FullName:     &fullName,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s): %v", role, err)
	}
	return user.ID
}

func linkTestClient(t *testing.T, ctx context.Context, pool *pgxpool.Pool, trainerID, clientID int64) {
	t.Helper()

	if _, err := repository.NewClientRepository(pool).Link(ctx, trainerID, clientID); err != nil {
		t.Fatalf("Link(%d, %d): %v", trainerID, clientID, err)
	}
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...int64) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx, "DELETE FROM session_changes WHERE session_id IN (SELECT id FROM sessions WHERE trainer_id = ANY($1) OR client_id = ANY($1))", userIDs); err != nil {
		t.Fatalf("cleanup session changes: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM sessions WHERE trainer_id = ANY($1) OR client_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup sessions: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM trainer_clients WHERE trainer_id = ANY($1) OR client_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup trainer clients: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup users: %v", err)
	}
}
