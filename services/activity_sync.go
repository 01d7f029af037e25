package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"runclub-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Per-account skip conditions. These mark an account as skipped in the batch
// report; they are not failures.
var (
	ErrChallengeNotFound = errors.New("no challenge for current month")
	ErrChallengeLocked   = errors.New("challenge is locked")
	ErrSyncWindowExpired = errors.New("challenge sync window expired")
	ErrNotRegistered     = errors.New("user is not registered for challenge")
)

// SyncResult summarizes one member's sync pass.
type SyncResult struct {
	TotalKm         float64  `json:"total_km"`
	AvgPaceSeconds  int      `json:"avg_pace_seconds"`
	TotalActivities int      `json:"total_activities"`
	AvgHeartrate    *float64 `json:"avg_heartrate,omitempty"`
	AvgCadence      *float64 `json:"avg_cadence,omitempty"`
	TotalElevation  float64  `json:"total_elevation"`
	NewPBs          int      `json:"new_pbs"`
	CompletionRate  float64  `json:"completion_rate"`
	IsCompleted     bool     `json:"is_completed"`
}

// ActivitySyncService validates, persists and aggregates Strava activities
// for challenge participants.
type ActivitySyncService struct {
	DB     *gorm.DB
	Strava *StravaClient
}

func NewActivitySyncService(db *gorm.DB, strava *StravaClient) *ActivitySyncService {
	return &ActivitySyncService{DB: db, Strava: strava}
}

// CalculatePacePerKm returns pace in seconds per km, rounded to the nearest
// second, or 0 when distance or time is non-positive.
func CalculatePacePerKm(distanceMeters float64, movingTimeSeconds int) int {
	if distanceMeters <= 0 || movingTimeSeconds <= 0 {
		return 0
	}
	return int(math.Round(float64(movingTimeSeconds) / (distanceMeters / 1000)))
}

// ResolveChallengeForSync finds the challenge covering the given moment and
// enforces the sync window: locked challenges and challenges more than 10
// days past their end date refuse syncs.
func (s *ActivitySyncService) ResolveChallengeForSync(now time.Time) (*models.Challenge, error) {
	var challenge models.Challenge
	err := s.DB.Where("month = ? AND year = ?", int(now.Month()), now.Year()).First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if challenge.IsLocked {
		return nil, ErrChallengeLocked
	}
	if now.After(challenge.SyncDeadline()) {
		return nil, ErrSyncWindowExpired
	}
	return &challenge, nil
}

// SyncUserActivities fetches the member's Strava activities for the
// challenge window, upserts the valid ones and overwrites the participant
// aggregate with totals recomputed from scratch. Re-running is idempotent:
// activities upsert on their provider id and the aggregate is a pure
// function of the validated set.
func (s *ActivitySyncService) SyncUserActivities(ctx context.Context, userID string, challenge *models.Challenge) (*SyncResult, error) {
	var participant models.ChallengeParticipant
	err := s.DB.Where("challenge_id = ? AND user_id = ?", challenge.ID, userID).First(&participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("load participant: %w", err)
	}

	var profile models.Profile
	if err := s.DB.Where("id = ?", userID).First(&profile).Error; err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	accessToken, err := s.Strava.RefreshToken(ctx, &profile)
	if err != nil {
		return nil, err
	}

	after := challenge.StartDate.Unix()
	before := challenge.EndDate.AddDate(0, 0, 1).Unix() // one day of buffer for timezones
	raw, err := s.Strava.FetchActivities(ctx, accessToken, after, before)
	if err != nil {
		return nil, err
	}

	valid := s.filterValid(raw, challenge)
	for i := range valid {
		if err := s.upsertActivity(userID, &valid[i]); err != nil {
			log.Printf("[SYNC] ⚠️ Failed to upsert activity %d for user %s: %v", valid[i].ID, userID, err)
		}
	}

	result := aggregate(valid)
	result.IsCompleted = participant.TargetKm > 0 && result.TotalKm >= participant.TargetKm
	if participant.TargetKm > 0 {
		result.CompletionRate = round2(result.TotalKm / participant.TargetKm * 100)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"actual_km":        result.TotalKm,
		"avg_pace_seconds": result.AvgPaceSeconds,
		"total_activities": result.TotalActivities,
		"avg_heartrate":    result.AvgHeartrate,
		"avg_cadence":      result.AvgCadence,
		"total_elevation":  result.TotalElevation,
		"is_completed":     result.IsCompleted,
		"completion_rate":  result.CompletionRate,
		"last_synced_at":   &now,
	}
	if err := s.DB.Model(&models.ChallengeParticipant{}).
		Where("id = ?", participant.ID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("persist participant aggregate: %w", err)
	}

	result.NewPBs = s.detectPersonalBests(&profile, valid)

	s.RecalcParticipantAggregates(challenge.ID, participant.ID)

	return result, nil
}

// filterValid keeps Run/Walk activities with positive distance and moving
// time whose pace falls inside the challenge's band, bounds inclusive.
// Everything else is logged and silently excluded.
func (s *ActivitySyncService) filterValid(raw []StravaActivity, challenge *models.Challenge) []StravaActivity {
	minPace := challenge.MinPaceSeconds
	maxPace := challenge.MaxPaceSeconds
	if minPace <= 0 {
		minPace = 240
	}
	if maxPace <= 0 {
		maxPace = 720
	}

	var valid []StravaActivity
	for _, a := range raw {
		if !a.IsRun() {
			continue
		}
		if a.Distance <= 0 || a.MovingTime <= 0 {
			log.Printf("[SYNC] Skipping activity %d: non-positive distance/time", a.ID)
			continue
		}
		pace := CalculatePacePerKm(a.Distance, a.MovingTime)
		if pace < minPace || pace > maxPace {
			log.Printf("[SYNC] Skipping activity %d: pace %ds/km outside [%d, %d]", a.ID, pace, minPace, maxPace)
			continue
		}
		valid = append(valid, a)
	}
	return valid
}

func aggregate(valid []StravaActivity) *SyncResult {
	var totalMeters, totalElevation, hrSum, cadenceSum float64
	var totalSeconds int
	for _, a := range valid {
		totalMeters += a.Distance
		totalSeconds += a.MovingTime
		if a.TotalElevationGain != nil {
			totalElevation += *a.TotalElevationGain
		}
		if a.AverageHeartrate != nil {
			hrSum += *a.AverageHeartrate
		}
		if a.AverageCadence != nil {
			cadenceSum += *a.AverageCadence
		}
	}

	result := &SyncResult{
		TotalKm:         round2(totalMeters / 1000),
		TotalActivities: len(valid),
		TotalElevation:  round2(totalElevation),
	}
	if result.TotalKm > 0 {
		result.AvgPaceSeconds = int(math.Round(float64(totalSeconds) / result.TotalKm))
	}
	if len(valid) > 0 {
		hr := round2(hrSum / float64(len(valid)))
		cadence := round2(cadenceSum / float64(len(valid)))
		result.AvgHeartrate = &hr
		result.AvgCadence = &cadence
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *ActivitySyncService) upsertActivity(userID string, a *StravaActivity) error {
	rawJSON, _ := json.Marshal(a)

	row := models.Activity{
		ID:                 uuid.NewString(),
		StravaActivityID:   a.ID,
		UserID:             userID,
		Name:               a.Name,
		Type:               a.Type,
		Distance:           a.Distance,
		MovingTime:         a.MovingTime,
		ElapsedTime:        a.ElapsedTime,
		AverageHeartrate:   a.AverageHeartrate,
		MaxHeartrate:       a.MaxHeartrate,
		AverageCadence:     a.AverageCadence,
		TotalElevationGain: a.TotalElevationGain,
		StartDate:          a.StartDate,
		StartDateLocal:     a.StartDateLocal,
		Timezone:           a.Timezone,
		WorkoutType:        a.WorkoutType,
		RawJSON:            string(rawJSON),
	}
	if row.Type == "" {
		row.Type = a.SportType
	}
	if a.Map != nil && a.Map.SummaryPolyline != "" {
		row.MapSummaryPolyline = &a.Map.SummaryPolyline
	}

	return s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strava_activity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "type", "distance", "moving_time", "elapsed_time",
			"average_heartrate", "max_heartrate", "average_cadence",
			"total_elevation_gain", "map_summary_polyline",
			"start_date", "start_date_local", "timezone",
			"workout_type", "raw_json", "updated_at",
		}),
	}).Create(&row).Error
}

// detectPersonalBests scans race-flagged activities for new HM/FM bests.
// A strictly faster time is written immediately but marked unapproved, and a
// history row is appended; approval is a human step.
func (s *ActivitySyncService) detectPersonalBests(profile *models.Profile, valid []StravaActivity) int {
	newPBs := 0
	for _, a := range valid {
		if !a.IsRace() {
			continue
		}
		category := ClassifyRaceDistance(a.Name, a.Distance)
		if category == "" {
			log.Printf("[SYNC] Race activity %d could not be classified (%q, %.0fm)", a.ID, a.Name, a.Distance)
			continue
		}

		var current *int
		if category == models.RaceCategoryHM {
			current = profile.PBHMSeconds
		} else {
			current = profile.PBFMSeconds
		}
		if current != nil && a.MovingTime >= *current {
			continue
		}

		updates := map[string]interface{}{}
		if category == models.RaceCategoryHM {
			updates["pb_hm_seconds"] = a.MovingTime
			updates["pb_hm_approved"] = false
		} else {
			updates["pb_fm_seconds"] = a.MovingTime
			updates["pb_fm_approved"] = false
		}
		if err := s.DB.Model(&models.Profile{}).Where("id = ?", profile.ID).Updates(updates).Error; err != nil {
			log.Printf("[SYNC] ⚠️ Failed to update %s PB for user %s: %v", category, profile.ID, err)
			continue
		}

		achievedAt := time.Now()
		if a.StartDate != nil {
			achievedAt = *a.StartDate
		}
		var activityID *string
		if a.ID > 0 {
			idStr := fmt.Sprintf("%d", a.ID)
			activityID = &idStr
		}
		hist := models.PBHistory{
			ID:          uuid.NewString(),
			UserID:      profile.ID,
			Distance:    category,
			TimeSeconds: a.MovingTime,
			AchievedAt:  achievedAt,
			ActivityID:  activityID,
		}
		if err := s.DB.Create(&hist).Error; err != nil {
			log.Printf("[SYNC] ⚠️ Failed to append pb_history for user %s: %v", profile.ID, err)
		}

		// Keep the in-memory copy current so a faster race later in the
		// same batch compares against this PB.
		t := a.MovingTime
		if category == models.RaceCategoryHM {
			profile.PBHMSeconds = &t
		} else {
			profile.PBFMSeconds = &t
		}
		newPBs++
		log.Printf("[SYNC] 🏅 New %s PB for user %s: %ds (pending approval)", category, profile.ID, a.MovingTime)
	}
	return newPBs
}

// ClassifyRaceDistance infers HM/FM from the activity name, falling back to
// distance-range heuristics.
func ClassifyRaceDistance(name string, distanceMeters float64) string {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "HALF"), strings.Contains(upper, "HM"), strings.Contains(upper, "21"):
		return models.RaceCategoryHM
	case strings.Contains(upper, "MARATHON"), strings.Contains(upper, "FM"), strings.Contains(upper, "42"):
		return models.RaceCategoryFM
	case distanceMeters >= 20000 && distanceMeters < 22000:
		return models.RaceCategoryHM
	case distanceMeters >= 41000 && distanceMeters < 43000:
		return models.RaceCategoryFM
	}
	return ""
}

// RecalcParticipantAggregates asks the database to rebuild derived aggregate
// columns. Older deployments expose the function under a legacy name; if
// neither exists the failure is logged and dropped.
func (s *ActivitySyncService) RecalcParticipantAggregates(challengeID, participantID string) {
	err := s.DB.Exec("SELECT recalc_challenge_participant_aggregates(?, ?)", challengeID, participantID).Error
	if err == nil {
		return
	}
	log.Printf("[SYNC] recalc_challenge_participant_aggregates unavailable, trying legacy name: %v", err)

	err = s.DB.Exec("SELECT recalc_participant_aggregates(?, ?)", challengeID, participantID).Error
	if err != nil {
		log.Printf("[SYNC] recalc RPC unavailable for participant %s: %v", participantID, err)
	}
}
