package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"runclub-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AwardResult is what each evaluator hands back to its caller. Expected
// ineligibility (no qualifying tier, already awarded) is not an error.
type AwardResult struct {
	Awarded       bool   `json:"awarded"`
	Reason        string `json:"reason,omitempty"`
	AwardID       string `json:"award_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func notAwarded(reason string) *AwardResult {
	return &AwardResult{Awarded: false, Reason: reason}
}

// RewardService runs the three reward evaluators: time milestones, podium
// placements and monthly penalties. All three share the same shape: compute
// eligibility, check uniqueness, create the ledger transaction, insert the
// award referencing it.
type RewardService struct {
	DB      *gorm.DB
	Finance *FinanceService
}

func NewRewardService(db *gorm.DB, finance *FinanceService) *RewardService {
	return &RewardService{DB: db, Finance: finance}
}

// ClassifyMilestoneCategory derives HM/FM from the organizer's free-text
// distance field ("21km", "Half Marathon", "42K", ...). Empty when the text
// matches neither category.
func ClassifyMilestoneCategory(distance string) string {
	d := strings.ToLower(distance)
	switch {
	case strings.Contains(d, "21"), strings.Contains(d, "half"), strings.Contains(d, "hm"):
		return models.RaceCategoryHM
	case strings.Contains(d, "42"), strings.Contains(d, "full"), strings.Contains(d, "fm"), strings.Contains(d, "marathon"):
		return models.RaceCategoryFM
	}
	return ""
}

// CheckMilestoneReward awards the best (highest-priority) active milestone
// the chip time meets for the member's gender and race category. Best tier
// wins; lower tiers are never awarded alongside it. A member holds each
// milestone at most once, ever, across all races.
func (s *RewardService) CheckMilestoneReward(memberID string, result *models.RaceResult, gender string) (*AwardResult, error) {
	category := ClassifyMilestoneCategory(result.Distance)
	if category == "" {
		return notAwarded("unknown-category"), nil
	}

	var milestones []models.RewardMilestone
	query := s.DB.Where("race_type = ? AND is_active = ?", category, true)
	if gender != "" {
		query = query.Where("gender IS NULL OR gender = ?", gender)
	} else {
		query = query.Where("gender IS NULL")
	}
	if err := query.Order("priority DESC").Find(&milestones).Error; err != nil {
		return notAwarded("db-error"), fmt.Errorf("load milestones: %w", err)
	}
	if len(milestones) == 0 {
		return notAwarded("no-milestones"), nil
	}

	var candidate *models.RewardMilestone
	for i := range milestones {
		if result.ChipTimeSeconds <= milestones[i].TimeSeconds {
			candidate = &milestones[i]
			break
		}
	}
	if candidate == nil {
		return notAwarded("no-qualify"), nil
	}

	var existing int64
	if err := s.DB.Model(&models.MemberMilestoneReward{}).
		Where("member_id = ? AND milestone_id = ?", memberID, candidate.ID).
		Count(&existing).Error; err != nil {
		return notAwarded("db-error"), fmt.Errorf("check existing milestone awards: %w", err)
	}
	if existing > 0 {
		return notAwarded("already-awarded"), nil
	}

	txnID := s.createRewardTransaction(memberID, candidate.CashAmount,
		fmt.Sprintf("Milestone reward: %s", candidate.RewardDescription))

	award := models.MemberMilestoneReward{
		ID:                   uuid.NewString(),
		MemberID:             memberID,
		MilestoneID:          candidate.ID,
		RaceID:               result.RaceID,
		RaceResultID:         result.ID,
		AchievedTimeSeconds:  result.ChipTimeSeconds,
		RewardDescription:    candidate.RewardDescription,
		CashAmount:           candidate.CashAmount,
		Status:               models.RewardStatusPending,
		RelatedTransactionID: txnID,
	}
	if err := s.DB.Create(&award).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race with a concurrent evaluation. The unique index on
			// (member, milestone) is the source of truth.
			return notAwarded("already-awarded"), nil
		}
		log.Printf("❌ [REWARD] Failed to insert milestone award for member %s (txn %v kept for reconciliation): %v",
			memberID, txnID, err)
		return notAwarded("db-error"), fmt.Errorf("insert milestone award: %w", err)
	}

	res := &AwardResult{Awarded: true, AwardID: award.ID}
	if txnID != nil {
		res.TransactionID = *txnID
	}
	log.Printf("🏆 [REWARD] Milestone %q awarded to member %s (chip %ds)",
		candidate.RewardDescription, memberID, result.ChipTimeSeconds)
	return res, nil
}

// CheckPodiumReward awards the configured podium reward for ranks 1-3 in the
// given ranking type. Unlike milestones the same member can win again in
// other races; only the identical (member, config, race result) combination
// is blocked.
func (s *RewardService) CheckPodiumReward(memberID string, result *models.RaceResult, podiumType string, rank int) (*AwardResult, error) {
	if rank < 1 || rank > 3 {
		return notAwarded("rank-not-podium"), nil
	}

	var config models.RewardPodiumConfig
	err := s.DB.Where("podium_type = ? AND rank = ? AND is_active = ?", podiumType, rank, true).
		First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notAwarded("no-config"), nil
	}
	if err != nil {
		return notAwarded("db-error"), fmt.Errorf("load podium config: %w", err)
	}

	var existing int64
	if err := s.DB.Model(&models.MemberPodiumReward{}).
		Where("member_id = ? AND podium_config_id = ? AND race_result_id = ?", memberID, config.ID, result.ID).
		Count(&existing).Error; err != nil {
		return notAwarded("db-error"), fmt.Errorf("check existing podium awards: %w", err)
	}
	if existing > 0 {
		return notAwarded("already-awarded-for-this-result"), nil
	}

	txnID := s.createRewardTransaction(memberID, config.CashAmount,
		fmt.Sprintf("Podium reward (%s - rank %d): %s", podiumType, rank, config.RewardDescription))

	award := models.MemberPodiumReward{
		ID:                   uuid.NewString(),
		MemberID:             memberID,
		PodiumConfigID:       config.ID,
		RaceResultID:         result.ID,
		RaceID:               result.RaceID,
		PodiumType:           podiumType,
		Rank:                 rank,
		RewardDescription:    config.RewardDescription,
		CashAmount:           config.CashAmount,
		Status:               models.RewardStatusPending,
		RelatedTransactionID: txnID,
	}
	if err := s.DB.Create(&award).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return notAwarded("already-awarded-for-this-result"), nil
		}
		log.Printf("❌ [REWARD] Failed to insert podium award for member %s (txn %v kept for reconciliation): %v",
			memberID, txnID, err)
		return notAwarded("db-error"), fmt.Errorf("insert podium award: %w", err)
	}

	res := &AwardResult{Awarded: true, AwardID: award.ID}
	if txnID != nil {
		res.TransactionID = *txnID
	}
	log.Printf("🥇 [REWARD] Podium %s rank %d awarded to member %s", podiumType, rank, memberID)
	return res, nil
}

// createRewardTransaction creates the payout ledger row and returns its id,
// or nil when the reward carries no cash or the insert failed. A failed
// insert does not block the award; the gap is logged for reconciliation.
func (s *RewardService) createRewardTransaction(memberID string, amount float64, description string) *string {
	if amount <= 0 {
		return nil
	}
	txn, err := s.Finance.CreateTransaction(models.CategoryRewardPayout, amount, description, &memberID)
	if err != nil {
		log.Printf("⚠️ [REWARD] Failed to create payout transaction for member %s: %v", memberID, err)
		return nil
	}
	return &txn.ID
}

// PenaltySummary reports one close-out run.
type PenaltySummary struct {
	Fined   []string `json:"fined"`
	Skipped []string `json:"skipped"`
	Errors  []string `json:"errors"`
}

// ApplyMonthlyPenalties fines every active member who either never
// registered for the challenge or finished with status "failed". Members on
// the challenge's excuse list are never fined. Each member gets at most one
// fine per challenge even if the close-out runs twice: the fine transaction
// carries a challenge tag that is checked before inserting.
func (s *RewardService) ApplyMonthlyPenalties(challenge *models.Challenge) (*PenaltySummary, error) {
	if challenge.PenaltyAmount <= 0 {
		return nil, fmt.Errorf("challenge %s has no penalty amount configured", challenge.ID)
	}

	var members []models.Profile
	if err := s.DB.Where("is_active = ?", true).Find(&members).Error; err != nil {
		return nil, fmt.Errorf("load active members: %w", err)
	}

	var excuses []models.ChallengeExcuse
	if err := s.DB.Where("challenge_id = ?", challenge.ID).Find(&excuses).Error; err != nil {
		return nil, fmt.Errorf("load excuses: %w", err)
	}
	excused := make(map[string]bool, len(excuses))
	for _, e := range excuses {
		excused[e.UserID] = true
	}

	var participants []models.ChallengeParticipant
	if err := s.DB.Where("challenge_id = ?", challenge.ID).Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	statusByUser := make(map[string]string, len(participants))
	for _, p := range participants {
		statusByUser[p.UserID] = p.Status
	}

	summary := &PenaltySummary{}
	tag := penaltyTag(challenge.ID)

	for _, m := range members {
		if excused[m.ID] {
			summary.Skipped = append(summary.Skipped, m.ID)
			continue
		}

		status, registered := statusByUser[m.ID]
		if registered && status != models.ParticipantStatusFailed {
			summary.Skipped = append(summary.Skipped, m.ID)
			continue
		}

		already, err := s.Finance.HasTaggedTransaction(models.CategoryFine, m.ID, tag)
		if err != nil {
			summary.Errors = append(summary.Errors, m.ID)
			log.Printf("⚠️ [PENALTY] Failed to check prior fine for member %s: %v", m.ID, err)
			continue
		}
		if already {
			summary.Skipped = append(summary.Skipped, m.ID)
			continue
		}

		reason := "unregistered"
		if registered {
			reason = "failed"
		}
		description := fmt.Sprintf("Monthly penalty (%s): %s %s", reason, challenge.Name, tag)
		if _, err := s.Finance.CreateTransaction(models.CategoryFine, challenge.PenaltyAmount, description, &m.ID); err != nil {
			summary.Errors = append(summary.Errors, m.ID)
			log.Printf("❌ [PENALTY] Failed to create fine for member %s: %v", m.ID, err)
			continue
		}
		summary.Fined = append(summary.Fined, m.ID)
	}

	log.Printf("💸 [PENALTY] Challenge %s close-out: %d fined, %d skipped, %d errors",
		challenge.Name, len(summary.Fined), len(summary.Skipped), len(summary.Errors))
	return summary, nil
}

// penaltyTag embeds the challenge id in the fine description so a re-run of
// the close-out can find prior fines.
func penaltyTag(challengeID string) string {
	return "[challenge:" + challengeID + "]"
}
