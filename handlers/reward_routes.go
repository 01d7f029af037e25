// handlers/reward_routes.go
package handlers

import (
	"errors"
	"log"

	"runclub-backend/middleware"
	"runclub-backend/models"
	"runclub-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func SetupRewardRoutes(app *fiber.App, rewardService *services.RewardService) {
	db := rewardService.DB

	// 🔐 Secured routes — members see their own awards
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())

	securedGroup.Get("/rewards/milestones/mine", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var awards []models.MemberMilestoneReward
		if err := db.Preload("Milestone").
			Where("member_id = ?", userID).
			Order("created_at DESC").
			Find(&awards).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get milestone rewards",
				"cause": err.Error(),
			})
		}
		return c.JSON(awards)
	})

	securedGroup.Get("/rewards/podiums/mine", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var awards []models.MemberPodiumReward
		if err := db.Where("member_id = ?", userID).
			Order("created_at DESC").
			Find(&awards).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get podium rewards",
				"cause": err.Error(),
			})
		}
		return c.JSON(awards)
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	adminGroup.Get("/rewards/milestones", func(c *fiber.Ctx) error {
		var milestones []models.RewardMilestone
		if err := db.Order("race_type, priority DESC").Find(&milestones).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get milestones"})
		}
		return c.JSON(milestones)
	})

	adminGroup.Post("/rewards/milestones", func(c *fiber.Ctx) error {
		var req struct {
			RaceType          string  `json:"race_type"`
			Gender            *string `json:"gender"`
			TimeSeconds       int     `json:"time_seconds"`
			Priority          int     `json:"priority"`
			RewardDescription string  `json:"reward_description"`
			CashAmount        float64 `json:"cash_amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.RaceType != models.RaceCategoryHM && req.RaceType != models.RaceCategoryFM {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "race_type must be HM or FM"})
		}
		if req.TimeSeconds <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "time_seconds must be positive"})
		}

		milestone := models.RewardMilestone{
			ID:                uuid.NewString(),
			RaceType:          req.RaceType,
			Gender:            req.Gender,
			TimeSeconds:       req.TimeSeconds,
			Priority:          req.Priority,
			RewardDescription: req.RewardDescription,
			CashAmount:        req.CashAmount,
			IsActive:          true,
		}
		if err := db.Create(&milestone).Error; err != nil {
			log.Printf("DB Error creating milestone: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create milestone"})
		}
		return c.Status(fiber.StatusCreated).JSON(milestone)
	})

	adminGroup.Patch("/rewards/milestones/:id", func(c *fiber.Ctx) error {
		id := c.Params("id")

		var milestone models.RewardMilestone
		if err := db.First(&milestone, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "milestone not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		var req struct {
			TimeSeconds       *int     `json:"time_seconds"`
			Priority          *int     `json:"priority"`
			RewardDescription *string  `json:"reward_description"`
			CashAmount        *float64 `json:"cash_amount"`
			IsActive          *bool    `json:"is_active"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.TimeSeconds != nil {
			milestone.TimeSeconds = *req.TimeSeconds
		}
		if req.Priority != nil {
			milestone.Priority = *req.Priority
		}
		if req.RewardDescription != nil {
			milestone.RewardDescription = *req.RewardDescription
		}
		if req.CashAmount != nil {
			milestone.CashAmount = *req.CashAmount
		}
		if req.IsActive != nil {
			milestone.IsActive = *req.IsActive
		}
		if err := db.Save(&milestone).Error; err != nil {
			log.Printf("DB Error updating milestone: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update milestone"})
		}
		return c.JSON(milestone)
	})

	adminGroup.Get("/rewards/podium-configs", func(c *fiber.Ctx) error {
		var configs []models.RewardPodiumConfig
		if err := db.Order("podium_type, rank").Find(&configs).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get podium configs"})
		}
		return c.JSON(configs)
	})

	adminGroup.Post("/rewards/podium-configs", func(c *fiber.Ctx) error {
		var req struct {
			PodiumType        string  `json:"podium_type"`
			Rank              int     `json:"rank"`
			RewardDescription string  `json:"reward_description"`
			CashAmount        float64 `json:"cash_amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.PodiumType != models.PodiumTypeOverall && req.PodiumType != models.PodiumTypeAgeGroup {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "podium_type must be overall or age_group"})
		}
		if req.Rank < 1 || req.Rank > 3 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rank must be 1-3"})
		}

		config := models.RewardPodiumConfig{
			ID:                uuid.NewString(),
			PodiumType:        req.PodiumType,
			Rank:              req.Rank,
			RewardDescription: req.RewardDescription,
			CashAmount:        req.CashAmount,
			IsActive:          true,
		}
		if err := db.Create(&config).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "config for this type and rank already exists"})
			}
			log.Printf("DB Error creating podium config: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create podium config"})
		}
		return c.Status(fiber.StatusCreated).JSON(config)
	})

	adminGroup.Get("/rewards/milestone-awards", func(c *fiber.Ctx) error {
		query := db.Preload("Milestone").Order("created_at DESC")
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		var awards []models.MemberMilestoneReward
		if err := query.Find(&awards).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get awards"})
		}
		return c.JSON(awards)
	})

	adminGroup.Patch("/rewards/milestone-awards/:id/status", updateAwardStatus(db, &models.MemberMilestoneReward{}))
	adminGroup.Patch("/rewards/podium-awards/:id/status", updateAwardStatus(db, &models.MemberPodiumReward{}))
}

// updateAwardStatus transitions an award through the delivery workflow
// (pending, approved, delivered, rejected).
func updateAwardStatus(db *gorm.DB, model interface{}) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid award ID"})
		}

		var req struct {
			Status string `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		switch req.Status {
		case models.RewardStatusPending, models.RewardStatusApproved,
			models.RewardStatusDelivered, models.RewardStatusRejected:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid status"})
		}

		result := db.Model(model).Where("id = ?", id).Update("status", req.Status)
		if result.Error != nil {
			log.Printf("DB Error updating award status: %v", result.Error)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update status"})
		}
		if result.RowsAffected == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "award not found"})
		}
		return c.JSON(fiber.Map{"message": "status updated", "status": req.Status})
	}
}
