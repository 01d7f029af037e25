package models

import "time"

// LuckyDrawEntry is one member's ticket in a challenge's draw. Entries are
// created at close-out for participants who completed the challenge and stay
// eligible until a draw picks them.
type LuckyDrawEntry struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	ChallengeID string `json:"challenge_id" gorm:"not null;uniqueIndex:idx_entry_challenge_user"`
	UserID      string `json:"user_id" gorm:"not null;uniqueIndex:idx_entry_challenge_user"`

	IsDrawn bool       `json:"is_drawn" gorm:"default:false"`
	DrawnAt *time.Time `json:"drawn_at,omitempty"`

	Timestamps

	Profile Profile `json:"profile,omitempty" gorm:"foreignKey:UserID"`
}

// LuckyDrawWinner records a drawn prize. A member wins each challenge's draw
// at most once, enforced by the unique index; the status field follows the
// same delivery workflow as the other award types.
type LuckyDrawWinner struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	ChallengeID string `json:"challenge_id" gorm:"not null;uniqueIndex:idx_winner_challenge_member"`
	MemberID    string `json:"member_id" gorm:"not null;uniqueIndex:idx_winner_challenge_member"`

	RewardDescription string `json:"reward_description"`
	Status            string `json:"status" gorm:"default:'pending'"`

	Timestamps

	Challenge Challenge `json:"challenge,omitempty" gorm:"foreignKey:ChallengeID"`
	Profile   Profile   `json:"profile,omitempty" gorm:"foreignKey:MemberID"`
}
