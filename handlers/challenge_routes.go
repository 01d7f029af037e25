// handlers/challenge_routes.go
package handlers

import (
	"runclub-backend/middleware"
	"runclub-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupChallengeRoutes(app *fiber.App, challengeService *services.ChallengeService) {
	// Public reads
	app.Get("/challenges", challengeService.ListChallenges)
	app.Get("/challenges/:id", challengeService.GetChallenge)
	app.Get("/challenges/:id/participants", challengeService.ListParticipants)

	// 🔐 Secured routes — require user context (userID, roles)
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())
	securedGroup.Post("/challenges/:id/register", challengeService.RegisterParticipant)

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())
	adminGroup.Post("/challenges", challengeService.CreateChallenge)
	adminGroup.Patch("/challenges/:id", challengeService.UpdateChallenge)
	adminGroup.Post("/challenges/:id/lock", challengeService.SetLock)
	adminGroup.Post("/challenges/:id/close-out", challengeService.CloseOut)
	adminGroup.Get("/challenges/:id/excuses", challengeService.ListExcuses)
	adminGroup.Post("/challenges/:id/excuses", challengeService.AddExcuse)
	adminGroup.Delete("/challenges/:id/excuses/:excuseId", challengeService.RemoveExcuse)
}
