package models

import (
	"time"
)

// Challenge statuses
const (
	ChallengeStatusOpen       = "Open"
	ChallengeStatusInProgress = "In Progress"
	ChallengeStatusCompleted  = "Completed"
)

// Participant statuses set at close-out
const (
	ParticipantStatusActive    = "active"
	ParticipantStatusCompleted = "completed"
	ParticipantStatusFailed    = "failed"
)

// Challenge is a monthly distance challenge with a fixed date window.
// Pace limits are seconds per km; activities outside the band do not count.
type Challenge struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string    `json:"name" gorm:"not null"`
	Slug        string    `json:"slug" gorm:"uniqueIndex"`
	Description string    `json:"description"`
	Month       int       `json:"month" gorm:"not null"`
	Year        int       `json:"year" gorm:"not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	Status      string    `json:"status" gorm:"default:'Open'"`

	// IsLocked freezes the challenge: no sync, no registration changes.
	IsLocked bool `json:"is_locked" gorm:"default:false"`

	MinPaceSeconds int     `json:"min_pace_seconds" gorm:"default:240"`
	MaxPaceSeconds int     `json:"max_pace_seconds" gorm:"default:720"`
	PenaltyAmount  float64 `json:"penalty_amount" gorm:"default:0"`

	// LuckyDrawCompleted flips once the challenge has its full set of draw
	// winners.
	LuckyDrawCompleted bool `json:"lucky_draw_completed" gorm:"default:false"`

	Timestamps

	// Calculated fields (not stored in DB)
	ParticipantsCount int64 `json:"participants_count,omitempty" gorm:"-"`
}

// SyncDeadline is the last moment activity sync may still run for this
// challenge: end date plus a 10 day grace window.
func (c *Challenge) SyncDeadline() time.Time {
	return c.EndDate.AddDate(0, 0, 10)
}

// ChallengeParticipant links a member to a challenge. The aggregate columns
// are a cache fully overwritten on every sync; they are never incremented.
type ChallengeParticipant struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	ChallengeID string `json:"challenge_id" gorm:"not null;uniqueIndex:idx_challenge_user"`
	UserID      string `json:"user_id" gorm:"not null;uniqueIndex:idx_challenge_user"`

	TargetKm float64 `json:"target_km" gorm:"not null"`
	Status   string  `json:"status" gorm:"default:'active'"`

	// Aggregates, recomputed from the full validated activity set each sync.
	ActualKm        float64    `json:"actual_km" gorm:"default:0"`
	AvgPaceSeconds  int        `json:"avg_pace_seconds" gorm:"default:0"`
	TotalActivities int        `json:"total_activities" gorm:"default:0"`
	AvgHeartrate    *float64   `json:"avg_heartrate,omitempty"`
	AvgCadence      *float64   `json:"avg_cadence,omitempty"`
	TotalElevation  float64    `json:"total_elevation" gorm:"default:0"`
	IsCompleted     bool       `json:"is_completed" gorm:"default:false"`
	CompletionRate  float64    `json:"completion_rate" gorm:"default:0"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`

	Timestamps

	Challenge Challenge `json:"challenge,omitempty" gorm:"foreignKey:ChallengeID"`
	Profile   Profile   `json:"profile,omitempty" gorm:"foreignKey:UserID"`
}

// ChallengeExcuse exempts a member from the monthly penalty for one
// challenge (injury, travel, approved leave).
type ChallengeExcuse struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	ChallengeID string `json:"challenge_id" gorm:"not null;uniqueIndex:idx_excuse_challenge_user"`
	UserID      string `json:"user_id" gorm:"not null;uniqueIndex:idx_excuse_challenge_user"`
	Reason      string `json:"reason"`
	CreatedBy   string `json:"created_by"`

	Timestamps
}
