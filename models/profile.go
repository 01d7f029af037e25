package models

import (
	"time"

	"gorm.io/gorm"
)

// Profile mirrors a club member account. Strava tokens live directly on the
// row; the sync worker mutates them in place on refresh.
type Profile struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	FullName string `json:"full_name"`
	Email    string `json:"email" gorm:"uniqueIndex"`
	Gender   string `json:"gender"` // "male", "female" or empty
	Phone    string `json:"phone,omitempty"`
	IsActive bool   `json:"is_active" gorm:"default:true;index"`
	Role     string `json:"role" gorm:"default:'member'"`

	// Strava connection
	StravaID             *int64  `json:"strava_id,omitempty" gorm:"index"`
	StravaAccessToken    string  `json:"-"`
	StravaRefreshToken   string  `json:"-"`
	StravaTokenExpiresAt int64   `json:"-"` // unix seconds
	StravaAthleteName    *string `json:"strava_athlete_name,omitempty"`

	// Personal bests (seconds). A freshly synced PB is written with the
	// approved flag false and stays hidden until an admin approves it.
	PBHMSeconds  *int  `json:"pb_hm_seconds,omitempty" gorm:"column:pb_hm_seconds"`
	PBHMApproved bool  `json:"pb_hm_approved" gorm:"column:pb_hm_approved;default:true"`
	PBFMSeconds  *int  `json:"pb_fm_seconds,omitempty" gorm:"column:pb_fm_seconds"`
	PBFMApproved bool  `json:"pb_fm_approved" gorm:"column:pb_fm_approved;default:true"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// HasStravaConnection reports whether the member ever linked a Strava account.
func (p *Profile) HasStravaConnection() bool {
	return p.StravaID != nil && p.StravaRefreshToken != ""
}
