// handlers/race_routes.go
package handlers

import (
	"runclub-backend/middleware"
	"runclub-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRaceRoutes(app *fiber.App, raceService *services.RaceService) {
	// Public reads
	app.Get("/races", raceService.ListRaces)
	app.Get("/races/:id", raceService.GetRace)

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())
	adminGroup.Post("/races", raceService.CreateRace)
	adminGroup.Post("/races/:id/banner", raceService.UploadBanner)
	adminGroup.Post("/races/:id/results", raceService.AddResult)
	adminGroup.Post("/races/:id/process-results", raceService.ProcessResults)
}
