// handlers/lucky_draw_routes.go
package handlers

import (
	"runclub-backend/middleware"
	"runclub-backend/models"
	"runclub-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLuckyDrawRoutes(app *fiber.App, luckyDrawService *services.LuckyDrawService) {
	// Public reads — members can see who won a challenge's draw
	app.Get("/challenges/:id/lucky-draws", luckyDrawService.ListChallengeWinners)

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())
	adminGroup.Get("/lucky-draw/winners", luckyDrawService.ListAllWinners)
	adminGroup.Get("/challenges/:id/lucky-draw/entries", luckyDrawService.ListChallengeEntries)
	adminGroup.Post("/challenges/:id/lucky-draw/run", luckyDrawService.RunDrawHandler)
	adminGroup.Patch("/lucky-draw/winners/:id/status", updateAwardStatus(luckyDrawService.DB, &models.LuckyDrawWinner{}))
}
