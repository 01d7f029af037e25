package models

// Reward/award statuses
const (
	RewardStatusPending   = "pending"
	RewardStatusApproved  = "approved"
	RewardStatusDelivered = "delivered"
	RewardStatusRejected  = "rejected"
)

// Podium ranking types
const (
	PodiumTypeOverall  = "overall"
	PodiumTypeAgeGroup = "age_group"
)

// RewardMilestone is an admin-managed time threshold for a race category.
// Higher priority means a better tier; the evaluator scans priority-desc and
// awards the first threshold the chip time meets.
type RewardMilestone struct {
	ID                string  `json:"id" gorm:"primaryKey;type:uuid"`
	RaceType          string  `json:"race_type" gorm:"not null;index"` // "HM" or "FM"
	Gender            *string `json:"gender,omitempty" gorm:"index"`   // nil = any gender
	TimeSeconds       int     `json:"time_seconds" gorm:"not null"`
	Priority          int     `json:"priority" gorm:"not null"`
	RewardDescription string  `json:"reward_description"`
	CashAmount        float64 `json:"cash_amount" gorm:"default:0"`
	IsActive          bool    `json:"is_active" gorm:"default:true"`

	Timestamps
}

// MemberMilestoneReward records a milestone award. The unique index on
// (member_id, milestone_id) makes "one award per milestone per member ever"
// hold even under concurrent result processing.
type MemberMilestoneReward struct {
	ID           string `json:"id" gorm:"primaryKey;type:uuid"`
	MemberID     string `json:"member_id" gorm:"not null;uniqueIndex:idx_member_milestone"`
	MilestoneID  string `json:"milestone_id" gorm:"not null;uniqueIndex:idx_member_milestone"`
	RaceID       string `json:"race_id"`
	RaceResultID string `json:"race_result_id"`

	AchievedTimeSeconds  int     `json:"achieved_time_seconds"`
	RewardDescription    string  `json:"reward_description"`
	CashAmount           float64 `json:"cash_amount"`
	Status               string  `json:"status" gorm:"default:'pending'"`
	RelatedTransactionID *string `json:"related_transaction_id,omitempty"`

	Timestamps

	Milestone RewardMilestone `json:"milestone,omitempty" gorm:"foreignKey:MilestoneID"`
}

// RewardPodiumConfig is the reward attached to finishing rank 1-3 in either
// the overall or the age-group ranking.
type RewardPodiumConfig struct {
	ID                string  `json:"id" gorm:"primaryKey;type:uuid"`
	PodiumType        string  `json:"podium_type" gorm:"not null;uniqueIndex:idx_podium_type_rank"` // "overall" / "age_group"
	Rank              int     `json:"rank" gorm:"not null;uniqueIndex:idx_podium_type_rank"`
	RewardDescription string  `json:"reward_description"`
	CashAmount        float64 `json:"cash_amount" gorm:"default:0"`
	IsActive          bool    `json:"is_active" gorm:"default:true"`

	Timestamps
}

// MemberPodiumReward records a podium award. Members can win repeatedly
// across races; only the identical (member, config, race result) combination
// is blocked, enforced by the unique index.
type MemberPodiumReward struct {
	ID             string `json:"id" gorm:"primaryKey;type:uuid"`
	MemberID       string `json:"member_id" gorm:"not null;uniqueIndex:idx_member_podium_result"`
	PodiumConfigID string `json:"podium_config_id" gorm:"not null;uniqueIndex:idx_member_podium_result"`
	RaceResultID   string `json:"race_result_id" gorm:"not null;uniqueIndex:idx_member_podium_result"`
	RaceID         string `json:"race_id"`

	PodiumType           string  `json:"podium_type"`
	Rank                 int     `json:"rank"`
	RewardDescription    string  `json:"reward_description"`
	CashAmount           float64 `json:"cash_amount"`
	Status               string  `json:"status" gorm:"default:'pending'"`
	RelatedTransactionID *string `json:"related_transaction_id,omitempty"`

	Timestamps
}
