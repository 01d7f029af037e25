package services

import (
	"errors"
	"log"
	"strconv"

	"runclub-backend/models"
	"runclub-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProfileService owns member profiles: listing, admin edits and the PB
// approval queue for device-detected personal bests.
type ProfileService struct {
	DB *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

// SearchMembers lists members with an accent-insensitive name/email search.
func (s *ProfileService) SearchMembers(c *fiber.Ctx) error {
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	db := s.DB.Model(&models.Profile{}).Order("full_name")
	if c.Query("active") != "all" {
		db = db.Where("is_active = ?", true)
	}

	var members []models.Profile
	if err := db.Find(&members).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "details": err.Error()})
	}

	// Accent folding happens in Go so "nguyen" finds "Nguyễn".
	if query := c.Query("q"); query != "" {
		filtered := members[:0]
		for _, m := range members {
			if utils.MatchesSearch(m.FullName, query) || utils.MatchesSearch(m.Email, query) {
				filtered = append(filtered, m)
			}
		}
		members = filtered
	}
	if len(members) > limit {
		members = members[:limit]
	}
	return c.JSON(members)
}

// GetMember fetches one profile.
func (s *ProfileService) GetMember(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid member ID"})
	}

	var profile models.Profile
	if err := s.DB.First(&profile, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Member not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(profile)
}

// GetMe returns the authenticated member's own profile.
func (s *ProfileService) GetMe(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	var profile models.Profile
	if err := s.DB.First(&profile, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Member not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(profile)
}

// UpdateMember edits profile fields (Admin only).
func (s *ProfileService) UpdateMember(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid member ID"})
	}

	var profile models.Profile
	if err := s.DB.First(&profile, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Member not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		FullName *string `json:"full_name"`
		Gender   *string `json:"gender"`
		Phone    *string `json:"phone"`
		IsActive *bool   `json:"is_active"`
		Role     *string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.FullName != nil {
		profile.FullName = *req.FullName
	}
	if req.Gender != nil {
		profile.Gender = *req.Gender
	}
	if req.Phone != nil {
		profile.Phone = *req.Phone
	}
	if req.IsActive != nil {
		profile.IsActive = *req.IsActive
	}
	if req.Role != nil {
		profile.Role = *req.Role
	}

	if err := s.DB.Save(&profile).Error; err != nil {
		log.Printf("DB Error updating profile: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update member"})
	}
	return c.JSON(profile)
}

// ListPendingPBs lists members with a device-detected PB awaiting approval
// (Admin only).
func (s *ProfileService) ListPendingPBs(c *fiber.Ctx) error {
	var members []models.Profile
	if err := s.DB.
		Where("(pb_hm_seconds IS NOT NULL AND pb_hm_approved = ?) OR (pb_fm_seconds IS NOT NULL AND pb_fm_approved = ?)", false, false).
		Find(&members).Error; err != nil {
		log.Printf("DB Error fetching pending PBs: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch pending PBs"})
	}
	return c.JSON(members)
}

// ReviewPB approves or rejects a pending device-detected PB (Admin only).
// Rejecting reverts the profile to the last approved time from history, or
// clears it when there is none.
func (s *ProfileService) ReviewPB(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid member ID"})
	}

	var req struct {
		Distance string `json:"distance"` // "HM" or "FM"
		Approve  bool   `json:"approve"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Distance != models.RaceCategoryHM && req.Distance != models.RaceCategoryFM {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "distance must be HM or FM"})
	}

	var profile models.Profile
	if err := s.DB.First(&profile, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Member not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	column := "pb_hm_seconds"
	approvedColumn := "pb_hm_approved"
	pending := profile.PBHMSeconds
	approved := profile.PBHMApproved
	if req.Distance == models.RaceCategoryFM {
		column = "pb_fm_seconds"
		approvedColumn = "pb_fm_approved"
		pending = profile.PBFMSeconds
		approved = profile.PBFMApproved
	}
	if pending == nil || approved {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "No pending PB for this distance"})
	}

	updates := map[string]interface{}{approvedColumn: true}
	if !req.Approve {
		// Revert to the last race-backed time; device-only history rows for
		// the rejected time are not a trustworthy fallback.
		var previous models.PBHistory
		err := s.DB.Where("user_id = ? AND distance = ? AND time_seconds <> ? AND race_id IS NOT NULL", id, req.Distance, *pending).
			Order("time_seconds ASC").
			First(&previous).Error
		if err == nil {
			updates[column] = previous.TimeSeconds
		} else if errors.Is(err, gorm.ErrRecordNotFound) {
			updates[column] = nil
		} else {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
	}

	if err := s.DB.Model(&models.Profile{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		log.Printf("DB Error reviewing PB: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to review PB"})
	}

	log.Printf("📋 [PB] %s PB for member %s reviewed: approve=%v", req.Distance, id, req.Approve)
	return c.JSON(fiber.Map{"message": "PB reviewed", "approved": req.Approve})
}

// GetPBHistory lists a member's PB history newest first.
func (s *ProfileService) GetPBHistory(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid member ID"})
	}

	var history []models.PBHistory
	if err := s.DB.Where("user_id = ?", id).Order("achieved_at DESC").Find(&history).Error; err != nil {
		log.Printf("DB Error fetching PB history: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch PB history"})
	}
	return c.JSON(history)
}
