package models

import (
	"time"
)

// Race distance categories
const (
	RaceCategoryHM = "HM"
	RaceCategoryFM = "FM"
)

// Race is an official timed event members compete in.
type Race struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string    `json:"name" gorm:"not null"`
	Slug        string    `json:"slug" gorm:"uniqueIndex"`
	Location    string    `json:"location"`
	RaceDate    time.Time `json:"race_date" gorm:"not null"`
	BannerURL   string    `json:"banner_url"`
	Description string    `json:"description"`
	IsProcessed bool      `json:"is_processed" gorm:"default:false"`

	Timestamps

	Results []RaceResult `json:"results,omitempty" gorm:"foreignKey:RaceID"`
}

// RaceResult is one member's official chip-timed result in a race.
// Distance is free text from the organizer ("21km", "Half Marathon", "42K").
type RaceResult struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	RaceID string `json:"race_id" gorm:"not null;index"`
	UserID string `json:"user_id" gorm:"not null;index"`

	Distance        string `json:"distance"`
	ChipTimeSeconds int    `json:"chip_time_seconds" gorm:"not null"`
	OfficialRank    *int   `json:"official_rank,omitempty"`
	AgeGroupRank    *int   `json:"age_group_rank,omitempty"`
	BibNumber       string `json:"bib_number,omitempty"`

	Timestamps

	Race    Race    `json:"race,omitempty" gorm:"foreignKey:RaceID"`
	Profile Profile `json:"profile,omitempty" gorm:"foreignKey:UserID"`
}
