package services

import (
	"errors"
	"log"
	"time"

	"runclub-backend/models"
	"runclub-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// RaceService owns official races and their results, and drives the reward
// evaluators when an admin processes a finished race.
type RaceService struct {
	DB      *gorm.DB
	Rewards *RewardService
	R2      *utils.R2Client
}

func NewRaceService(db *gorm.DB, rewards *RewardService, r2 *utils.R2Client) *RaceService {
	return &RaceService{DB: db, Rewards: rewards, R2: r2}
}

// CreateRace creates a race (Admin only).
func (s *RaceService) CreateRace(c *fiber.Ctx) error {
	var req struct {
		Name        string    `json:"name"`
		Location    string    `json:"location"`
		RaceDate    time.Time `json:"race_date"`
		Description string    `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.RaceDate.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and race_date are required"})
	}

	race := models.Race{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		Location:    req.Location,
		RaceDate:    req.RaceDate,
		Description: req.Description,
	}
	if err := s.DB.Create(&race).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "A race with this slug already exists"})
		}
		log.Printf("DB Error creating race: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create race"})
	}
	return c.Status(fiber.StatusCreated).JSON(race)
}

// ListRaces lists races newest first.
func (s *RaceService) ListRaces(c *fiber.Ctx) error {
	var races []models.Race
	if err := s.DB.Order("race_date DESC").Find(&races).Error; err != nil {
		log.Printf("DB Error fetching races: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch races"})
	}
	return c.JSON(races)
}

// GetRace fetches one race by id or slug, including its results.
func (s *RaceService) GetRace(c *fiber.Ctx) error {
	race, fail := s.loadRace(c, true)
	if race == nil {
		return fail
	}
	return c.JSON(race)
}

// UploadBanner attaches a banner image to a race (Admin only).
func (s *RaceService) UploadBanner(c *fiber.Ctx) error {
	race, fail := s.loadRace(c, false)
	if race == nil {
		return fail
	}

	fileHeader, err := c.FormFile("banner")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "banner file is required"})
	}

	url, err := s.R2.UploadFormFile(c.Context(), fileHeader, "race-banners/"+race.ID)
	if err != nil {
		log.Printf("❌ [RACE] Banner upload failed for race %s: %v", race.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload banner"})
	}

	if err := s.DB.Model(race).Update("banner_url", url).Error; err != nil {
		log.Printf("DB Error saving banner URL: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save banner URL"})
	}
	return c.JSON(fiber.Map{"message": "Banner uploaded", "banner_url": url})
}

// AddResult records one member's official result (Admin only).
func (s *RaceService) AddResult(c *fiber.Ctx) error {
	race, fail := s.loadRace(c, false)
	if race == nil {
		return fail
	}

	var req struct {
		UserID          string `json:"user_id"`
		Distance        string `json:"distance"`
		ChipTimeSeconds int    `json:"chip_time_seconds"`
		OfficialRank    *int   `json:"official_rank"`
		AgeGroupRank    *int   `json:"age_group_rank"`
		BibNumber       string `json:"bib_number"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" || req.ChipTimeSeconds <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and a positive chip_time_seconds are required"})
	}

	result := models.RaceResult{
		ID:              uuid.NewString(),
		RaceID:          race.ID,
		UserID:          req.UserID,
		Distance:        req.Distance,
		ChipTimeSeconds: req.ChipTimeSeconds,
		OfficialRank:    req.OfficialRank,
		AgeGroupRank:    req.AgeGroupRank,
		BibNumber:       req.BibNumber,
	}
	if err := s.DB.Create(&result).Error; err != nil {
		log.Printf("DB Error creating race result: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create result"})
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// ResultOutcome is one row of a processing report.
type ResultOutcome struct {
	RaceResultID string       `json:"race_result_id"`
	UserID       string       `json:"user_id"`
	Milestone    *AwardResult `json:"milestone,omitempty"`
	Overall      *AwardResult `json:"overall,omitempty"`
	AgeGroup     *AwardResult `json:"age_group,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// ProcessResults runs the reward evaluators over every result of a race
// (Admin only). One failing result never stops the rest; evaluators are
// idempotent so re-processing a race is safe.
func (s *RaceService) ProcessResults(c *fiber.Ctx) error {
	race, fail := s.loadRace(c, false)
	if race == nil {
		return fail
	}

	var results []models.RaceResult
	if err := s.DB.Where("race_id = ?", race.ID).Find(&results).Error; err != nil {
		log.Printf("DB Error fetching race results: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch results"})
	}

	outcomes := make([]ResultOutcome, 0, len(results))
	for i := range results {
		outcomes = append(outcomes, s.processOne(race, &results[i]))
	}

	if err := s.DB.Model(race).Update("is_processed", true).Error; err != nil {
		log.Printf("DB Error marking race processed: %v", err)
	}

	log.Printf("🎽 [RACE] Processed %d results for %s", len(results), race.Name)
	return c.JSON(fiber.Map{"race_id": race.ID, "outcomes": outcomes})
}

func (s *RaceService) processOne(race *models.Race, result *models.RaceResult) ResultOutcome {
	outcome := ResultOutcome{RaceResultID: result.ID, UserID: result.UserID}

	var profile models.Profile
	if err := s.DB.First(&profile, "id = ?", result.UserID).Error; err != nil {
		outcome.Error = "member profile not found"
		log.Printf("⚠️ [RACE] No profile for result %s (user %s): %v", result.ID, result.UserID, err)
		return outcome
	}

	milestone, err := s.Rewards.CheckMilestoneReward(result.UserID, result, profile.Gender)
	if err != nil {
		log.Printf("❌ [RACE] Milestone evaluation failed for result %s: %v", result.ID, err)
	}
	outcome.Milestone = milestone

	if result.OfficialRank != nil {
		overall, err := s.Rewards.CheckPodiumReward(result.UserID, result, models.PodiumTypeOverall, *result.OfficialRank)
		if err != nil {
			log.Printf("❌ [RACE] Overall podium evaluation failed for result %s: %v", result.ID, err)
		}
		outcome.Overall = overall
	}
	if result.AgeGroupRank != nil {
		ageGroup, err := s.Rewards.CheckPodiumReward(result.UserID, result, models.PodiumTypeAgeGroup, *result.AgeGroupRank)
		if err != nil {
			log.Printf("❌ [RACE] Age-group podium evaluation failed for result %s: %v", result.ID, err)
		}
		outcome.AgeGroup = ageGroup
	}

	s.updatePersonalBest(race, result, &profile)
	return outcome
}

// updatePersonalBest records a faster official chip time as the member's new
// PB. Official results come from a timing company, so they are stored
// pre-approved, unlike device-detected PBs.
func (s *RaceService) updatePersonalBest(race *models.Race, result *models.RaceResult, profile *models.Profile) {
	category := ClassifyMilestoneCategory(result.Distance)
	if category == "" {
		return
	}

	var current *int
	column := "pb_hm_seconds"
	approvedColumn := "pb_hm_approved"
	if category == models.RaceCategoryFM {
		current = profile.PBFMSeconds
		column = "pb_fm_seconds"
		approvedColumn = "pb_fm_approved"
	} else {
		current = profile.PBHMSeconds
	}

	if current != nil && result.ChipTimeSeconds >= *current {
		return
	}

	if err := s.DB.Model(&models.Profile{}).Where("id = ?", profile.ID).
		Updates(map[string]interface{}{
			column:         result.ChipTimeSeconds,
			approvedColumn: true,
		}).Error; err != nil {
		log.Printf("⚠️ [RACE] Failed to update %s PB for member %s: %v", category, profile.ID, err)
		return
	}

	history := models.PBHistory{
		ID:          uuid.NewString(),
		UserID:      profile.ID,
		Distance:    category,
		TimeSeconds: result.ChipTimeSeconds,
		AchievedAt:  race.RaceDate,
		RaceID:      &race.ID,
	}
	if err := s.DB.Create(&history).Error; err != nil {
		log.Printf("⚠️ [RACE] Failed to append PB history for member %s: %v", profile.ID, err)
	}
	log.Printf("⏱️ [RACE] New %s PB for member %s: %ds", category, profile.ID, result.ChipTimeSeconds)
}

func (s *RaceService) loadRace(c *fiber.Ctx, withResults bool) (*models.Race, error) {
	idOrSlug := c.Params("id")

	query := s.DB
	if withResults {
		query = query.Preload("Results")
	}

	var race models.Race
	err := byIDOrSlug(query, idOrSlug).First(&race).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Race not found"})
	}
	if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return &race, nil
}
