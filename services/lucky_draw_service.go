package services

import (
	"errors"
	"log"
	"math/rand"
	"time"

	"runclub-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// luckyDrawWinnerTarget is how many winners a challenge's draw aims for; the
// completed flag flips once the target is reached.
const luckyDrawWinnerTarget = 2

const defaultLuckyDrawPrize = "Lucky draw prize"

// LuckyDrawService runs the per-challenge lucky draw. Entries come from
// challenge close-out; the draw itself is admin-triggered, picks randomly
// among undrawn entries and never picks the same member twice for one
// challenge.
type LuckyDrawService struct {
	DB *gorm.DB
}

func NewLuckyDrawService(db *gorm.DB) *LuckyDrawService {
	return &LuckyDrawService{DB: db}
}

// DrawSummary reports one draw run.
type DrawSummary struct {
	ChallengeID  string                   `json:"challenge_id"`
	Drawn        []models.LuckyDrawWinner `json:"drawn"`
	TotalWinners int                      `json:"total_winners"`
	Completed    bool                     `json:"completed"`
	Message      string                   `json:"message,omitempty"`
}

// RunDraw draws winners for a challenge up to numWinners in total, counting
// winners from earlier runs. Members who already won this challenge's draw
// are excluded; re-running a finished draw is a no-op.
func (s *LuckyDrawService) RunDraw(challenge *models.Challenge, numWinners int, prize string) (*DrawSummary, error) {
	if numWinners <= 0 {
		numWinners = luckyDrawWinnerTarget
	}
	if prize == "" {
		prize = defaultLuckyDrawPrize
	}
	summary := &DrawSummary{ChallengeID: challenge.ID}

	var existing []models.LuckyDrawWinner
	if err := s.DB.Where("challenge_id = ?", challenge.ID).Find(&existing).Error; err != nil {
		return nil, err
	}
	summary.TotalWinners = len(existing)
	if len(existing) >= numWinners {
		summary.Completed = summary.TotalWinners >= luckyDrawWinnerTarget
		summary.Message = "Challenge already has enough winners"
		return summary, nil
	}
	won := make(map[string]bool, len(existing))
	for _, w := range existing {
		won[w.MemberID] = true
	}

	var entries []models.LuckyDrawEntry
	if err := s.DB.Where("challenge_id = ? AND is_drawn = ?", challenge.ID, false).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	eligible := entries[:0]
	for _, e := range entries {
		if !won[e.UserID] {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		summary.Message = "No eligible entries"
		return summary, nil
	}

	rand.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	toPick := numWinners - len(existing)
	if toPick > len(eligible) {
		toPick = len(eligible)
	}

	now := time.Now()
	for _, e := range eligible[:toPick] {
		winner := models.LuckyDrawWinner{
			ID:                uuid.NewString(),
			ChallengeID:       challenge.ID,
			MemberID:          e.UserID,
			RewardDescription: prize,
			Status:            models.RewardStatusPending,
		}
		if err := s.DB.Create(&winner).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return nil, err
		}
		if err := s.DB.Model(&models.LuckyDrawEntry{}).
			Where("id = ?", e.ID).
			Updates(map[string]interface{}{"is_drawn": true, "drawn_at": now}).Error; err != nil {
			log.Printf("⚠️ [LUCKY-DRAW] Failed to mark entry %s drawn: %v", e.ID, err)
		}
		summary.Drawn = append(summary.Drawn, winner)
	}
	summary.TotalWinners = len(existing) + len(summary.Drawn)

	if summary.TotalWinners >= luckyDrawWinnerTarget {
		summary.Completed = true
		if err := s.DB.Model(&models.Challenge{}).
			Where("id = ?", challenge.ID).
			Update("lucky_draw_completed", true).Error; err != nil {
			log.Printf("⚠️ [LUCKY-DRAW] Failed to flag challenge %s completed: %v", challenge.ID, err)
		}
	}

	log.Printf("🎰 [LUCKY-DRAW] Challenge %s: drew %d winner(s), %d total",
		challenge.Name, len(summary.Drawn), summary.TotalWinners)
	return summary, nil
}

// RunDrawHandler triggers a draw for one challenge (Admin only).
func (s *LuckyDrawService) RunDrawHandler(c *fiber.Ctx) error {
	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}

	var req struct {
		NumWinners        int    `json:"num_winners"`
		RewardDescription string `json:"reward_description"`
	}
	if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	summary, err := s.RunDraw(challenge, req.NumWinners, req.RewardDescription)
	if err != nil {
		log.Printf("❌ [LUCKY-DRAW] Draw failed for challenge %s: %v", challenge.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Draw failed"})
	}
	return c.JSON(summary)
}

// ListChallengeWinners lists one challenge's draw winners, oldest first.
func (s *LuckyDrawService) ListChallengeWinners(c *fiber.Ctx) error {
	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}

	var winners []models.LuckyDrawWinner
	if err := s.DB.Preload("Profile").
		Where("challenge_id = ?", challenge.ID).
		Order("created_at").
		Find(&winners).Error; err != nil {
		log.Printf("DB Error fetching lucky draw winners: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch winners"})
	}
	return c.JSON(fiber.Map{"winners": winners})
}

// ListAllWinners lists winners across all challenges, newest first (Admin
// only).
func (s *LuckyDrawService) ListAllWinners(c *fiber.Ctx) error {
	query := s.DB.Preload("Profile").Preload("Challenge").Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var winners []models.LuckyDrawWinner
	if err := query.Find(&winners).Error; err != nil {
		log.Printf("DB Error fetching lucky draw winners: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch winners"})
	}
	return c.JSON(winners)
}

// ListChallengeEntries lists a challenge's entries (Admin only).
func (s *LuckyDrawService) ListChallengeEntries(c *fiber.Ctx) error {
	challenge, fail := s.loadChallenge(c)
	if challenge == nil {
		return fail
	}

	var entries []models.LuckyDrawEntry
	if err := s.DB.Preload("Profile").
		Where("challenge_id = ?", challenge.ID).
		Order("created_at").
		Find(&entries).Error; err != nil {
		log.Printf("DB Error fetching lucky draw entries: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch entries"})
	}
	return c.JSON(entries)
}

func (s *LuckyDrawService) loadChallenge(c *fiber.Ctx) (*models.Challenge, error) {
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
