package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ygdillon/fitlink/internal/config"
	"github.com/ygdillon/fitlink/internal/handlers"
	"github.com/ygdillon/fitlink/internal/middleware"
	"github.com/ygdillon/fitlink/internal/repository"
	"github.com/ygdillon/fitlink/internal/services"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	workoutRepo := repository.NewWorkoutRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	changeRepo := repository.NewSessionChangeRepository(db)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	clientHandler := handlers.NewClientHandler(clientRepo, userRepo)
	workoutHandler := handlers.NewWorkoutHandler(workoutRepo)
	sessionService := services.NewSessionService(db, sessionRepo, changeRepo, clientRepo, workoutRepo, userRepo)
	maintenanceService := services.NewMaintenanceService(db, sessionRepo)
	sessionHandler := handlers.NewSessionHandler(sessionService, maintenanceService)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	clients := authProtected.Group("/clients")
	clients.Post("", clientHandler.LinkClient)
	clients.Get("", clientHandler.ListClients)

	workouts := authProtected.Group("/workouts")
	workouts.Post("", workoutHandler.CreateWorkout)
	workouts.Get("", workoutHandler.ListWorkouts)

	sessions := authProtected.Group("/sessions")
	sessions.Post("", sessionHandler.CreateSession)
	sessions.Post("/recurring", sessionHandler.CreateRecurringSeries)
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Get("/:id/history", sessionHandler.GetSessionHistory)
	sessions.Patch("/:id", sessionHandler.UpdateSession)
	sessions.Post("/:id/cancel", sessionHandler.CancelSession)
	sessions.Post("/series/:id/cancel", sessionHandler.CancelSeries)
}
