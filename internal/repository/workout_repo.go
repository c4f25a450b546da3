package repository

import (
	"context"

	"github.com/ygdillon/fitlink/internal/models"
)

type CreateWorkoutInput struct {
	TrainerID   int64
	Title       string
	Description *string
}

type WorkoutRepository struct {
	db DBTX
}

func NewWorkoutRepository(db DBTX) *WorkoutRepository {
	return &WorkoutRepository{db: db}
}

func (r *WorkoutRepository) Create(ctx context.Context, input CreateWorkoutInput) (*models.Workout, error) {
	query := `
		INSERT INTO workouts (trainer_id, title, description)
		VALUES ($1, $2, $3)
		RETURNING id, trainer_id, title, description, created_at
	`
	var workout models.Workout
	err := r.db.QueryRow(ctx, query, input.TrainerID, input.Title, input.Description).
		Scan(&workout.ID, &workout.TrainerID, &workout.Title, &workout.Description, &workout.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &workout, nil
}

func (r *WorkoutRepository) GetByIDForTrainer(ctx context.Context, workoutID, trainerID int64) (*models.Workout, error) {
	query := `
		SELECT id, trainer_id, title, description, created_at
		FROM workouts
		WHERE id = $1 AND trainer_id = $2
	`
	var workout models.Workout
	err := r.db.QueryRow(ctx, query, workoutID, trainerID).
		Scan(&workout.ID, &workout.TrainerID, &workout.Title, &workout.Description, &workout.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &workout, nil
}

func (r *WorkoutRepository) ListByTrainer(ctx context.Context, trainerID int64) ([]models.Workout, error) {
	query := `
		SELECT id, trainer_id, title, description, created_at
		FROM workouts
		WHERE trainer_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, trainerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workouts := make([]models.Workout, 0)
	for rows.Next() {
		var workout models.Workout
		if err := rows.Scan(&workout.ID, &workout.TrainerID, &workout.Title, &workout.Description, &workout.CreatedAt); err != nil {
			return nil, err
		}
		workouts = append(workouts, workout)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return workouts, nil
}
