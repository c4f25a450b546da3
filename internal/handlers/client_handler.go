package handlers

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/ygdillon/fitlink/internal/models"
	"github.com/ygdillon/fitlink/internal/repository"
)

type ClientHandler struct {
	clientRepo *repository.ClientRepository
	userRepo   *repository.UserRepository
}

func NewClientHandler(clientRepo *repository.ClientRepository, userRepo *repository.UserRepository) *ClientHandler {
	return &ClientHandler{clientRepo: clientRepo, userRepo: userRepo}
}

type linkClientRequest struct {
	Email string `json:"email"`
}

// LinkClient associates an existing client account with the acting
// trainer, enabling session booking for that client.
func (h *ClientHandler) LinkClient(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req linkClientRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	parsedEmail, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid email format"})
	}

	client, err := h.userRepo.GetByEmail(c.Context(), strings.ToLower(parsedEmail.Address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Client not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to lookup client"})
	}
	if client.Role != models.RoleClient {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Account is not a client"})
	}

	link, err := h.clientRepo.Link(c.Context(), trainerID, client.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to link client"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"link": link})
}

func (h *ClientHandler) ListClients(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != models.RoleTrainer {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	clients, err := h.clientRepo.ListClients(c.Context(), trainerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list clients"})
	}

	return c.JSON(fiber.Map{"clients": clients})
}
