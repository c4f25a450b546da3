package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/ygdillon/fitlink/internal/models"
	"github.com/ygdillon/fitlink/internal/repository"
	"github.com/ygdillon/fitlink/internal/services"
)

const dateLayout = "2006-01-02"

type SessionHandler struct {
	service     sessionApplicationService
	maintenance seriesMaintenanceService
}

type sessionApplicationService interface {
	CreateSession(ctx context.Context, trainerID int64, input services.CreateSessionInput) (*models.Session, error)
	CreateRecurringSeries(ctx context.Context, trainerID int64, input services.RecurringSeriesInput) (*services.RecurringSeriesResult, error)
	UpdateSession(ctx context.Context, trainerID, sessionID int64, input services.UpdateSessionInput) (*models.Session, error)
	CancelSession(ctx context.Context, trainerID, sessionID int64, reason *string) (*models.Session, error)
	GetSession(ctx context.Context, trainerID, sessionID int64) (*models.Session, error)
	ListSessions(ctx context.Context, trainerID int64, filter repository.SessionListFilter) ([]models.Session, int, error)
	GetSessionHistory(ctx context.Context, trainerID, sessionID int64) ([]models.SessionChange, error)
}

type seriesMaintenanceService interface {
	CancelSeries(ctx context.Context, trainerID, parentID int64, reason *string) (int, error)
}

func NewSessionHandler(service *services.SessionService, maintenance *services.MaintenanceService) *SessionHandler {
	return &SessionHandler{service: service, maintenance: maintenance}
}

type createSessionRequest struct {
	ClientID        int64   `json:"client_id"`
	WorkoutID       *int64  `json:"workout_id"`
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	DurationMinutes int     `json:"duration_minutes"`
	SessionType     string  `json:"session_type"`
	Location        *string `json:"location"`
	Notes           *string `json:"notes"`
}

type createRecurringRequest struct {
	createSessionRequest
	Pattern   string `json:"recurring_pattern"`
	EndDate   string `json:"recurring_end_date"`
	DayOfWeek *int   `json:"day_of_week"`
}

type updateSessionRequest struct {
	Date            *string `json:"date"`
	StartTime       *string `json:"start_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	SessionType     *string `json:"session_type"`
	Location        *string `json:"location"`
	Notes           *string `json:"notes"`
	Status          *string `json:"status"`
}

type cancelSessionRequest struct {
	Reason *string `json:"reason"`
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input, err := req.toInput()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	session, err := h.service.CreateSession(c.Context(), trainerID, *input)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CreateRecurringSeries(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createRecurringRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	base, err := req.toInput()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	endDate, err := time.Parse(dateLayout, strings.TrimSpace(req.EndDate))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "recurring_end_date must be formatted as YYYY-MM-DD"})
	}

	result, err := h.service.CreateRecurringSeries(c.Context(), trainerID, services.RecurringSeriesInput{
		CreateSessionInput: *base,
		Pattern:            strings.TrimSpace(req.Pattern),
		EndDate:            endDate,
		DayOfWeek:          req.DayOfWeek,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	filter := repository.SessionListFilter{
		Status: strings.TrimSpace(c.Query("status")),
	}

	if clientParam := strings.TrimSpace(c.Query("client_id")); clientParam != "" {
		clientID, err := strconv.ParseInt(clientParam, 10, 64)
		if err != nil || clientID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid client_id"})
		}
		filter.ClientID = clientID
	}
	if fromParam := strings.TrimSpace(c.Query("from")); fromParam != "" {
		from, err := time.Parse(dateLayout, fromParam)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "from must be formatted as YYYY-MM-DD"})
		}
		filter.From = &from
	}
	if toParam := strings.TrimSpace(c.Query("to")); toParam != "" {
		to, err := time.Parse(dateLayout, toParam)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "to must be formatted as YYYY-MM-DD"})
		}
		filter.To = &to
	}

	page, limit := parsePageParams(c)
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	sessions, total, err := h.service.ListSessions(c.Context(), trainerID, filter)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{
		"sessions":   sessions,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), trainerID, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) GetSessionHistory(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	changes, err := h.service.GetSessionHistory(c.Context(), trainerID, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"changes": changes})
}

func (h *SessionHandler) UpdateSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req updateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input := services.UpdateSessionInput{
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		SessionType:     req.SessionType,
		Location:        req.Location,
		Notes:           req.Notes,
		Status:          req.Status,
	}
	if req.Date != nil {
		parsed, err := time.Parse(dateLayout, strings.TrimSpace(*req.Date))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date must be formatted as YYYY-MM-DD"})
		}
		input.Date = &parsed
	}

	session, err := h.service.UpdateSession(c.Context(), trainerID, sessionID, input)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req cancelSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	session, err := h.service.CancelSession(c.Context(), trainerID, sessionID, req.Reason)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

// CancelSeries is the maintenance cascade: it cancels a recurring parent
// together with its children, unlike CancelSession which only ever
// touches one row.
func (h *SessionHandler) CancelSeries(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	parentID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req cancelSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	cancelled, err := h.maintenance.CancelSeries(c.Context(), trainerID, parentID, req.Reason)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"cancelled": cancelled})
}

func (r *createSessionRequest) toInput() (*services.CreateSessionInput, error) {
	date, err := time.Parse(dateLayout, strings.TrimSpace(r.Date))
	if err != nil {
		return nil, errors.New("date must be formatted as YYYY-MM-DD")
	}
	if r.DurationMinutes < 0 {
		return nil, errors.New("duration_minutes must be greater than 0")
	}

	return &services.CreateSessionInput{
		ClientID:        r.ClientID,
		WorkoutID:       r.WorkoutID,
		Date:            date,
		StartTime:       strings.TrimSpace(r.StartTime),
		DurationMinutes: r.DurationMinutes,
		SessionType:     strings.TrimSpace(r.SessionType),
		Location:        r.Location,
		Notes:           r.Notes,
	}, nil
}

func parseSessionID(c *fiber.Ctx) (int64, error) {
	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return 0, strconv.ErrSyntax
	}
	return sessionID, nil
}

func mapSessionError(c *fiber.Ctx, err error) error {
	var conflictErr *services.ConflictError

	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &conflictErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": conflictErr.Error()})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).
			JSON(fiber.Map{"error": "Requested time conflicts with another session"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrClientNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Client not found"})
	case errors.Is(err, services.ErrWorkoutNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Workout not found"})
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
