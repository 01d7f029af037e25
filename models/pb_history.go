package models

import (
	"time"
)

// PBHistory is an append-only log of detected personal bests. Rows are
// written by the sync pipeline before admin approval, so a rejected PB still
// leaves an audit trail.
type PBHistory struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      string    `json:"user_id" gorm:"not null;index"`
	Distance    string    `json:"distance" gorm:"not null"` // "HM" or "FM"
	TimeSeconds int       `json:"time_seconds" gorm:"not null"`
	AchievedAt  time.Time `json:"achieved_at"`
	RaceID      *string   `json:"race_id,omitempty"`
	ActivityID  *string   `json:"activity_id,omitempty"`

	Timestamps
}

func (PBHistory) TableName() string {
	return "pb_history"
}
