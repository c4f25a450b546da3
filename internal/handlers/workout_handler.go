package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ygdillon/fitlink/internal/models"
	"github.com/ygdillon/fitlink/internal/repository"
)

type WorkoutHandler struct {
	workoutRepo *repository.WorkoutRepository
}

func NewWorkoutHandler(workoutRepo *repository.WorkoutRepository) *WorkoutHandler {
	return &WorkoutHandler{workoutRepo: workoutRepo}
}

type createWorkoutRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

func (h *WorkoutHandler) CreateWorkout(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createWorkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}

	workout, err := h.workoutRepo.Create(c.Context(), repository.CreateWorkoutInput{
		TrainerID:   trainerID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create workout"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"workout": workout})
}

func (h *WorkoutHandler) ListWorkouts(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	workouts, err := h.workoutRepo.ListByTrainer(c.Context(), trainerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list workouts"})
	}

	return c.JSON(fiber.Map{"workouts": workouts})
}
