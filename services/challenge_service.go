package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"runclub-backend/models"
	"runclub-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ChallengeService owns the monthly challenge lifecycle: creation, member
// registration, the excuse list and the close-out that settles statuses and
// penalties.
type ChallengeService struct {
	DB      *gorm.DB
	Rewards *RewardService
}

func NewChallengeService(db *gorm.DB, rewards *RewardService) *ChallengeService {
	return &ChallengeService{DB: db, Rewards: rewards}
}

// CreateChallenge creates a monthly challenge (Admin only).
func (s *ChallengeService) CreateChallenge(c *fiber.Ctx) error {
	var req struct {
		Name           string    `json:"name"`
		Description    string    `json:"description"`
		Month          int       `json:"month"`
		Year           int       `json:"year"`
		StartDate      time.Time `json:"start_date"`
		EndDate        time.Time `json:"end_date"`
		MinPaceSeconds *int      `json:"min_pace_seconds"`
		MaxPaceSeconds *int      `json:"max_pace_seconds"`
		PenaltyAmount  float64   `json:"penalty_amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.Month < 1 || req.Month > 12 || req.Year == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name, month and year are required"})
	}
	if !req.EndDate.After(req.StartDate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_date must be after start_date"})
	}

	challenge := models.Challenge{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Slug:          slug.Make(fmt.Sprintf("%s-%d-%02d", req.Name, req.Year, req.Month)),
		Description:   req.Description,
		Month:         req.Month,
		Year:          req.Year,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Status:        models.ChallengeStatusOpen,
		PenaltyAmount: req.PenaltyAmount,
	}
	if req.MinPaceSeconds != nil {
		challenge.MinPaceSeconds = *req.MinPaceSeconds
	}
	if req.MaxPaceSeconds != nil {
		challenge.MaxPaceSeconds = *req.MaxPaceSeconds
	}

	if err := s.DB.Create(&challenge).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "A challenge with this slug already exists"})
		}
		log.Printf("DB Error creating challenge: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create challenge"})
	}
	return c.Status(fiber.StatusCreated).JSON(challenge)
}

// ListChallenges lists challenges newest first with participant counts.
func (s *ChallengeService) ListChallenges(c *fiber.Ctx) error {
	query := s.DB.Model(&models.Challenge{})
	if year := c.QueryInt("year"); year > 0 {
		query = query.Where("year = ?", year)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var challenges []models.Challenge
	if err := query.Order("year DESC, month DESC").Find(&challenges).Error; err != nil {
		log.Printf("DB Error fetching challenges: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch challenges"})
	}

	for i := range challenges {
		var count int64
		if err := s.DB.Model(&models.ChallengeParticipant{}).
			Where("challenge_id = ?", challenges[i].ID).
			Count(&count).Error; err == nil {
			challenges[i].ParticipantsCount = count
		}
	}
	return c.JSON(challenges)
}

// GetChallenge fetches one challenge by id or slug.
func (s *ChallengeService) GetChallenge(c *fiber.Ctx) error {
	idOrSlug := c.Params("id")

	var challenge models.Challenge
	err := byIDOrSlug(s.DB, idOrSlug).First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Challenge not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var count int64
	s.DB.Model(&models.ChallengeParticipant{}).Where("challenge_id = ?", challenge.ID).Count(&count)
	challenge.ParticipantsCount = count
	return c.JSON(challenge)
}

// UpdateChallenge updates mutable fields (Admin only). Locked challenges
// reject edits.
func (s *ChallengeService) UpdateChallenge(c *fiber.Ctx) error {
	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}
	if challenge.IsLocked {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Challenge is locked"})
	}

	var req struct {
		Name           *string    `json:"name"`
		Description    *string    `json:"description"`
		StartDate      *time.Time `json:"start_date"`
		EndDate        *time.Time `json:"end_date"`
		Status         *string    `json:"status"`
		MinPaceSeconds *int       `json:"min_pace_seconds"`
		MaxPaceSeconds *int       `json:"max_pace_seconds"`
		PenaltyAmount  *float64   `json:"penalty_amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name != nil {
		challenge.Name = *req.Name
	}
	if req.Description != nil {
		challenge.Description = *req.Description
	}
	if req.StartDate != nil {
		challenge.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		challenge.EndDate = *req.EndDate
	}
	if req.Status != nil {
		challenge.Status = *req.Status
	}
	if req.MinPaceSeconds != nil {
		challenge.MinPaceSeconds = *req.MinPaceSeconds
	}
	if req.MaxPaceSeconds != nil {
		challenge.MaxPaceSeconds = *req.MaxPaceSeconds
	}
	if req.PenaltyAmount != nil {
		challenge.PenaltyAmount = *req.PenaltyAmount
	}

	if err := s.DB.Save(challenge).Error; err != nil {
		log.Printf("DB Error updating challenge: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update challenge"})
	}
	return c.JSON(challenge)
}

// SetLock locks or unlocks a challenge (Admin only).
func (s *ChallengeService) SetLock(c *fiber.Ctx) error {
	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}

	var req struct {
		Locked bool `json:"locked"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := s.DB.Model(challenge).Update("is_locked", req.Locked).Error; err != nil {
		log.Printf("DB Error locking challenge: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update lock"})
	}
	log.Printf("🔒 [CHALLENGE] %s locked=%v", challenge.Name, req.Locked)
	return c.JSON(fiber.Map{"message": "Lock updated", "is_locked": req.Locked})
}

// RegisterParticipant signs the authenticated member up with a target
// distance. Registration closes when the challenge is locked.
func (s *ChallengeService) RegisterParticipant(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found in context"})
	}

	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}
	if challenge.IsLocked {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Challenge is locked"})
	}

	var req struct {
		TargetKm float64 `json:"target_km"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TargetKm <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_km must be positive"})
	}

	participant := models.ChallengeParticipant{
		ID:          uuid.NewString(),
		ChallengeID: challenge.ID,
		UserID:      userID,
		TargetKm:    req.TargetKm,
		Status:      models.ParticipantStatusActive,
	}
	if err := s.DB.Create(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already registered for this challenge"})
		}
		log.Printf("DB Error registering participant: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to register"})
	}
	return c.Status(fiber.StatusCreated).JSON(participant)
}

// ListParticipants lists a challenge's participants ordered by distance,
// with an accent-insensitive name search.
func (s *ChallengeService) ListParticipants(c *fiber.Ctx) error {
	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}

	var participants []models.ChallengeParticipant
	if err := s.DB.Preload("Profile").
		Where("challenge_id = ?", challenge.ID).
		Order("actual_km DESC").
		Find(&participants).Error; err != nil {
		log.Printf("DB Error fetching participants: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch participants"})
	}

	// Accent folding happens here rather than in SQL so "nguyen" finds "Nguyễn".
	if search := c.Query("search"); search != "" {
		filtered := participants[:0]
		for _, p := range participants {
			if utils.MatchesSearch(p.Profile.FullName, search) || utils.MatchesSearch(p.Profile.Email, search) {
				filtered = append(filtered, p)
			}
		}
		participants = filtered
	}
	return c.JSON(participants)
}

// AddExcuse exempts a member from the penalty for this challenge (Admin
// only).
func (s *ChallengeService) AddExcuse(c *fiber.Ctx) error {
	adminID, _ := c.Locals("user_id").(string)

	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}

	var req struct {
		UserID string `json:"user_id"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}

	excuse := models.ChallengeExcuse{
		ID:          uuid.NewString(),
		ChallengeID: challenge.ID,
		UserID:      req.UserID,
		Reason:      req.Reason,
		CreatedBy:   adminID,
	}
	if err := s.DB.Create(&excuse).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Member is already excused"})
		}
		log.Printf("DB Error creating excuse: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create excuse"})
	}
	return c.Status(fiber.StatusCreated).JSON(excuse)
}

// ListExcuses lists a challenge's excuse list (Admin only).
func (s *ChallengeService) ListExcuses(c *fiber.Ctx) error {
	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}

	var excuses []models.ChallengeExcuse
	if err := s.DB.Where("challenge_id = ?", challenge.ID).Order("created_at").Find(&excuses).Error; err != nil {
		log.Printf("DB Error fetching excuses: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch excuses"})
	}
	return c.JSON(excuses)
}

// RemoveExcuse deletes one excuse (Admin only).
func (s *ChallengeService) RemoveExcuse(c *fiber.Ctx) error {
	excuseID := c.Params("excuseId")
	if _, err := uuid.Parse(excuseID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid excuse ID"})
	}

	result := s.DB.Delete(&models.ChallengeExcuse{}, "id = ?", excuseID)
	if result.Error != nil {
		log.Printf("DB Error deleting excuse: %v", result.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete excuse"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Excuse not found"})
	}
	return c.JSON(fiber.Map{"message": "Excuse removed"})
}

// CloseOut settles a finished challenge: participant statuses flip to
// completed/failed from their aggregates, penalties are applied, and the
// challenge ends locked. Safe to call twice.
func (s *ChallengeService) CloseOut(c *fiber.Ctx) error {
	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}
	if time.Now().Before(challenge.EndDate) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Challenge has not ended yet"})
	}

	summary, err := s.closeOut(challenge)
	if err != nil {
		log.Printf("❌ [CHALLENGE] Close-out failed for %s: %v", challenge.Name, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Close-out failed"})
	}
	return c.JSON(fiber.Map{"message": "Challenge closed", "penalties": summary})
}

// CloseOutEnded runs close-out for every unlocked challenge whose sync
// window has passed. Called by the scheduler.
func (s *ChallengeService) CloseOutEnded(now time.Time) {
	var challenges []models.Challenge
	if err := s.DB.Where("is_locked = ? AND status <> ?", false, models.ChallengeStatusCompleted).
		Find(&challenges).Error; err != nil {
		log.Printf("⚠️ [CHALLENGE] Failed to load challenges for close-out: %v", err)
		return
	}

	for i := range challenges {
		if now.Before(challenges[i].SyncDeadline()) {
			continue
		}
		if _, err := s.closeOut(&challenges[i]); err != nil {
			log.Printf("❌ [CHALLENGE] Scheduled close-out failed for %s: %v", challenges[i].Name, err)
		}
	}
}

func (s *ChallengeService) closeOut(challenge *models.Challenge) (*PenaltySummary, error) {
	var participants []models.ChallengeParticipant
	if err := s.DB.Where("challenge_id = ? AND status = ?", challenge.ID, models.ParticipantStatusActive).
		Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	for _, p := range participants {
		status := models.ParticipantStatusFailed
		if p.IsCompleted {
			status = models.ParticipantStatusCompleted
		}
		if err := s.DB.Model(&models.ChallengeParticipant{}).
			Where("id = ?", p.ID).
			Update("status", status).Error; err != nil {
			return nil, fmt.Errorf("settle participant %s: %w", p.ID, err)
		}

		// Finishers earn a lucky draw ticket. The unique index keeps a
		// repeated close-out from handing out a second one.
		if status == models.ParticipantStatusCompleted {
			entry := models.LuckyDrawEntry{
				ID:          uuid.NewString(),
				ChallengeID: challenge.ID,
				UserID:      p.UserID,
			}
			if err := s.DB.Create(&entry).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
				log.Printf("⚠️ [CHALLENGE] Failed to create lucky draw entry for member %s: %v", p.UserID, err)
			}
		}
	}

	var summary *PenaltySummary
	if challenge.PenaltyAmount > 0 {
		var err error
		summary, err = s.Rewards.ApplyMonthlyPenalties(challenge)
		if err != nil {
			return nil, fmt.Errorf("apply penalties: %w", err)
		}
	}

	if err := s.DB.Model(challenge).Updates(map[string]interface{}{
		"status":    models.ChallengeStatusCompleted,
		"is_locked": true,
	}).Error; err != nil {
		return nil, fmt.Errorf("complete challenge: %w", err)
	}

	log.Printf("🏁 [CHALLENGE] %s closed out", challenge.Name)
	return summary, nil
}

// byIDOrSlug routes a path parameter to the right column. The id columns are
// uuid-typed, so on Postgres a slug must never reach the id predicate: the
// driver cannot encode arbitrary text as a uuid parameter.
func byIDOrSlug(db *gorm.DB, param string) *gorm.DB {
	if _, err := uuid.Parse(param); err == nil {
		return db.Where("id = ?", param)
	}
	return db.Where("slug = ?", param)
}

func (s *ChallengeService) loadChallenge(c *fiber.Ctx) (*models.Challenge, error) {
	idOrSlug := c.Params("id")

	var challenge models.Challenge
	err := byIDOrSlug(s.DB, idOrSlug).First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Challenge not found"})
	}
	if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return &challenge, nil
}
