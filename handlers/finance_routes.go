// handlers/finance_routes.go
package handlers

import (
	"runclub-backend/middleware"
	"runclub-backend/services"

	"github.com/gofiber/fiber/v2"
)

func SetupFinanceRoutes(app *fiber.App, financeService *services.FinanceService) {
	// Admin endpoints — the ledger is treasurer territory
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())
	adminGroup.Get("/finance/summary", financeService.GetSummary)
	adminGroup.Get("/finance/transactions", financeService.ListTransactions)
	adminGroup.Post("/finance/transactions", financeService.CreateTransactionHandler)
	adminGroup.Patch("/finance/transactions/:id/status", financeService.UpdatePaymentStatus)
	adminGroup.Post("/finance/transactions/:id/receipt", financeService.UploadReceipt)
	adminGroup.Get("/finance/categories", financeService.ListCategories)
	adminGroup.Post("/finance/categories", financeService.CreateCategory)
	adminGroup.Get("/finance/reports/categories", financeService.CategoryReport)
}
