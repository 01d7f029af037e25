package models

import (
	"time"
)

// Activity is one synced Strava activity. StravaActivityID is the natural
// key: re-syncing the same window upserts instead of duplicating rows.
// The raw payload is kept for audit.
type Activity struct {
	ID               string `json:"id" gorm:"primaryKey;type:uuid"`
	StravaActivityID int64  `json:"strava_activity_id" gorm:"uniqueIndex;not null"`
	UserID           string `json:"user_id" gorm:"not null;index"`

	Name        string  `json:"name"`
	Type        string  `json:"type" gorm:"default:'Run'"`
	Distance    float64 `json:"distance"`     // meters
	MovingTime  int     `json:"moving_time"`  // seconds
	ElapsedTime int     `json:"elapsed_time"` // seconds

	AverageHeartrate   *float64 `json:"average_heartrate,omitempty"`
	MaxHeartrate       *float64 `json:"max_heartrate,omitempty"`
	AverageCadence     *float64 `json:"average_cadence,omitempty"`
	TotalElevationGain *float64 `json:"total_elevation_gain,omitempty"`
	MapSummaryPolyline *string  `json:"map_summary_polyline,omitempty"`

	StartDate      *time.Time `json:"start_date,omitempty" gorm:"index"`
	StartDateLocal *time.Time `json:"start_date_local,omitempty"`
	Timezone       *string    `json:"timezone,omitempty"`

	// WorkoutType 1 marks a run race on Strava; used for PB detection.
	WorkoutType *int `json:"workout_type,omitempty"`

	RawJSON string `json:"-" gorm:"type:jsonb"`

	Timestamps
}

// PaceSecondsPerKm returns the computed pace, or 0 when distance or moving
// time is non-positive.
func (a *Activity) PaceSecondsPerKm() int {
	if a.Distance <= 0 || a.MovingTime <= 0 {
		return 0
	}
	return int(float64(a.MovingTime)/(a.Distance/1000) + 0.5)
}
