// handlers/profile_routes.go
package handlers

import (
	"runclub-backend/middleware"
	"runclub-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProfileRoutes(app *fiber.App, profileService *services.ProfileService) {
	// 🔐 Secured routes
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())
	securedGroup.Get("/members/me", profileService.GetMe)

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())
	adminGroup.Get("/members", profileService.SearchMembers)
	adminGroup.Get("/members/pending-pbs", profileService.ListPendingPBs)
	adminGroup.Get("/members/:id", profileService.GetMember)
	adminGroup.Patch("/members/:id", profileService.UpdateMember)
	adminGroup.Post("/members/:id/pb-review", profileService.ReviewPB)
	adminGroup.Get("/members/:id/pb-history", profileService.GetPBHistory)
}
