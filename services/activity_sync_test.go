package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"runclub-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCalculatePacePerKm(t *testing.T) {
	tests := []struct {
		name     string
		meters   float64
		seconds  int
		expected int
	}{
		{"8km in 45min", 8000, 2700, 338},
		{"10km in 70min", 10000, 4200, 420},
		{"2km in 5min", 2000, 300, 150},
		{"zero distance", 0, 1800, 0},
		{"zero time", 5000, 0, 0},
		{"rounds to nearest second", 3000, 1000, 333},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalculatePacePerKm(tt.meters, tt.seconds))
		})
	}
}

func TestClassifyRaceDistance(t *testing.T) {
	assert.Equal(t, models.RaceCategoryHM, ClassifyRaceDistance("City Half Marathon", 0))
	assert.Equal(t, models.RaceCategoryHM, ClassifyRaceDistance("Morning run 21k", 0))
	assert.Equal(t, models.RaceCategoryFM, ClassifyRaceDistance("Berlin Marathon", 42195))
	assert.Equal(t, models.RaceCategoryHM, ClassifyRaceDistance("Sunday race", 21100))
	assert.Equal(t, models.RaceCategoryFM, ClassifyRaceDistance("Sunday race", 42195))
	assert.Equal(t, "", ClassifyRaceDistance("Sunday race", 10000))
}

func seedChallengeAndParticipant(t *testing.T, db *gorm.DB, targetKm float64) (*models.Challenge, *models.Profile) {
	t.Helper()

	now := time.Now()
	challenge := models.Challenge{
		ID:             uuid.NewString(),
		Name:           "Monthly Challenge",
		Slug:           "monthly-challenge-test",
		Month:          int(now.Month()),
		Year:           now.Year(),
		StartDate:      now.AddDate(0, 0, -10),
		EndDate:        now.AddDate(0, 0, 10),
		Status:         models.ChallengeStatusInProgress,
		MinPaceSeconds: 240,
		MaxPaceSeconds: 720,
	}
	require.NoError(t, db.Create(&challenge).Error)

	stravaID := int64(42)
	profile := models.Profile{
		ID:                   uuid.NewString(),
		FullName:             "Nguyễn Văn A",
		Email:                "a@example.com",
		Gender:               "male",
		IsActive:             true,
		StravaID:             &stravaID,
		StravaAccessToken:    "access",
		StravaRefreshToken:   "refresh",
		StravaTokenExpiresAt: now.Add(2 * time.Hour).Unix(),
	}
	require.NoError(t, db.Create(&profile).Error)

	participant := models.ChallengeParticipant{
		ID:          uuid.NewString(),
		ChallengeID: challenge.ID,
		UserID:      profile.ID,
		TargetKm:    targetKm,
		Status:      models.ParticipantStatusActive,
	}
	require.NoError(t, db.Create(&participant).Error)

	return &challenge, &profile
}

func newSyncServiceWithActivities(t *testing.T, db *gorm.DB, activities []StravaActivity) *ActivitySyncService {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(activities)
	}))
	t.Cleanup(server.Close)

	client := NewStravaClient(db, StravaConfig{ClientID: "1", ClientSecret: "s"})
	client.ActivitiesURL = server.URL
	return NewActivitySyncService(db, client)
}

func TestResolveChallengeForSync(t *testing.T) {
	db := setupTestDB(t)
	svc := NewActivitySyncService(db, nil)
	now := time.Now()

	t.Run("no challenge", func(t *testing.T) {
		_, err := svc.ResolveChallengeForSync(now)
		assert.ErrorIs(t, err, ErrChallengeNotFound)
	})

	challenge, _ := seedChallengeAndParticipant(t, db, 100)

	t.Run("ok within window", func(t *testing.T) {
		got, err := svc.ResolveChallengeForSync(now)
		require.NoError(t, err)
		assert.Equal(t, challenge.ID, got.ID)
	})

	t.Run("locked", func(t *testing.T) {
		require.NoError(t, db.Model(challenge).Update("is_locked", true).Error)
		_, err := svc.ResolveChallengeForSync(now)
		assert.ErrorIs(t, err, ErrChallengeLocked)
		require.NoError(t, db.Model(challenge).Update("is_locked", false).Error)
	})

	t.Run("window expired", func(t *testing.T) {
		require.NoError(t, db.Model(challenge).Update("end_date", now.AddDate(0, 0, -11)).Error)
		_, err := svc.ResolveChallengeForSync(now)
		assert.ErrorIs(t, err, ErrSyncWindowExpired)
	})
}

func TestSyncUserActivitiesAggregates(t *testing.T) {
	db := setupTestDB(t)
	challenge, profile := seedChallengeAndParticipant(t, db, 20)

	hr := 150.0
	elevation := 80.0
	svc := newSyncServiceWithActivities(t, db, []StravaActivity{
		{ID: 1, Name: "Morning run", Type: "Run", Distance: 8000, MovingTime: 2700, AverageHeartrate: &hr, TotalElevationGain: &elevation}, // pace 338, valid
		{ID: 2, Name: "Sprints", Type: "Run", Distance: 2000, MovingTime: 300},                                                            // pace 150, too fast
		{ID: 3, Name: "Long slow", Type: "Run", Distance: 10000, MovingTime: 4200},                                                        // pace 420, valid
		{ID: 4, Name: "Commute", Type: "Ride", Distance: 20000, MovingTime: 3600},                                                         // not a run
		{ID: 5, Name: "Treadmill glitch", Type: "Run", Distance: 0, MovingTime: 1200},                                                     // no distance
	})

	result, err := svc.SyncUserActivities(context.Background(), profile.ID, challenge)
	require.NoError(t, err)

	assert.Equal(t, 18.00, result.TotalKm)
	assert.Equal(t, 383, result.AvgPaceSeconds) // round(6900 / 18)
	assert.Equal(t, 2, result.TotalActivities)
	assert.False(t, result.IsCompleted)
	assert.Equal(t, 90.0, result.CompletionRate)

	// Only valid activities are persisted.
	var count int64
	require.NoError(t, db.Model(&models.Activity{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// Aggregate is written through to the participant row.
	var participant models.ChallengeParticipant
	require.NoError(t, db.Where("challenge_id = ? AND user_id = ?", challenge.ID, profile.ID).First(&participant).Error)
	assert.Equal(t, 18.00, participant.ActualKm)
	assert.Equal(t, 383, participant.AvgPaceSeconds)
	assert.Equal(t, 2, participant.TotalActivities)
	assert.NotNil(t, participant.LastSyncedAt)
}

func TestSyncUserActivitiesPaceBoundsInclusive(t *testing.T) {
	db := setupTestDB(t)
	challenge, profile := seedChallengeAndParticipant(t, db, 100)

	svc := newSyncServiceWithActivities(t, db, []StravaActivity{
		{ID: 10, Type: "Run", Distance: 1000, MovingTime: 240}, // exactly min, valid
		{ID: 11, Type: "Run", Distance: 1000, MovingTime: 720}, // exactly max, valid
		{ID: 12, Type: "Run", Distance: 1000, MovingTime: 239}, // just under min
		{ID: 13, Type: "Run", Distance: 1000, MovingTime: 721}, // just over max
	})

	result, err := svc.SyncUserActivities(context.Background(), profile.ID, challenge)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalActivities)
	assert.Equal(t, 2.0, result.TotalKm)
}

func TestSyncUserActivitiesIdempotent(t *testing.T) {
	db := setupTestDB(t)
	challenge, profile := seedChallengeAndParticipant(t, db, 20)

	svc := newSyncServiceWithActivities(t, db, []StravaActivity{
		{ID: 100, Name: "Run A", Type: "Run", Distance: 8000, MovingTime: 2700},
		{ID: 101, Name: "Run B", Type: "Run", Distance: 10000, MovingTime: 4200},
	})

	first, err := svc.SyncUserActivities(context.Background(), profile.ID, challenge)
	require.NoError(t, err)
	second, err := svc.SyncUserActivities(context.Background(), profile.ID, challenge)
	require.NoError(t, err)

	assert.Equal(t, first.TotalKm, second.TotalKm)
	assert.Equal(t, first.AvgPaceSeconds, second.AvgPaceSeconds)

	// Same provider ids must not create duplicate rows.
	var count int64
	require.NoError(t, db.Model(&models.Activity{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var participant models.ChallengeParticipant
	require.NoError(t, db.Where("user_id = ?", profile.ID).First(&participant).Error)
	assert.Equal(t, 18.00, participant.ActualKm)
}

func TestSyncUserActivitiesNotRegistered(t *testing.T) {
	db := setupTestDB(t)
	challenge, _ := seedChallengeAndParticipant(t, db, 20)

	stranger := models.Profile{ID: uuid.NewString(), Email: "b@example.com", IsActive: true}
	require.NoError(t, db.Create(&stranger).Error)

	svc := newSyncServiceWithActivities(t, db, nil)
	_, err := svc.SyncUserActivities(context.Background(), stranger.ID, challenge)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestSyncDetectsPersonalBests(t *testing.T) {
	db := setupTestDB(t)
	challenge, profile := seedChallengeAndParticipant(t, db, 20)

	// Existing HM PB of 2:00:00; the race below beats it.
	existing := 7200
	require.NoError(t, db.Model(&models.Profile{}).Where("id = ?", profile.ID).
		Updates(map[string]interface{}{"pb_hm_seconds": existing, "pb_hm_approved": true}).Error)

	race := 1
	start := time.Now().AddDate(0, 0, -2)
	svc := newSyncServiceWithActivities(t, db, []StravaActivity{
		{ID: 200, Name: "City Half Marathon", Type: "Run", Distance: 21100, MovingTime: 6900, WorkoutType: &race, StartDate: &start}, // pace 327
		{ID: 201, Name: "Easy jog", Type: "Run", Distance: 5000, MovingTime: 1800},
	})

	result, err := svc.SyncUserActivities(context.Background(), profile.ID, challenge)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewPBs)

	var stored models.Profile
	require.NoError(t, db.First(&stored, "id = ?", profile.ID).Error)
	require.NotNil(t, stored.PBHMSeconds)
	assert.Equal(t, 6900, *stored.PBHMSeconds)
	assert.False(t, stored.PBHMApproved, "device-detected PB must wait for approval")

	var history []models.PBHistory
	require.NoError(t, db.Where("user_id = ?", profile.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, models.RaceCategoryHM, history[0].Distance)
	assert.Equal(t, 6900, history[0].TimeSeconds)
	assert.NotNil(t, history[0].ActivityID)
}

func TestSyncSlowerRaceDoesNotTouchPB(t *testing.T) {
	db := setupTestDB(t)
	challenge, profile := seedChallengeAndParticipant(t, db, 20)

	existing := 6000
	require.NoError(t, db.Model(&models.Profile{}).Where("id = ?", profile.ID).
		Updates(map[string]interface{}{"pb_hm_seconds": existing, "pb_hm_approved": true}).Error)

	race := 1
	svc := newSyncServiceWithActivities(t, db, []StravaActivity{
		{ID: 300, Name: "Autumn Half", Type: "Run", Distance: 21100, MovingTime: 7000, WorkoutType: &race},
	})

	result, err := svc.SyncUserActivities(context.Background(), profile.ID, challenge)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewPBs)

	var stored models.Profile
	require.NoError(t, db.First(&stored, "id = ?", profile.ID).Error)
	require.NotNil(t, stored.PBHMSeconds)
	assert.Equal(t, 6000, *stored.PBHMSeconds)
	assert.True(t, stored.PBHMApproved)
}
