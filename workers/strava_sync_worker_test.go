package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"runclub-backend/models"
	"runclub-backend/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// In-memory SQLite is per-connection; a second pooled connection would
	// see an empty database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Profile{},
		&models.Challenge{},
		&models.ChallengeParticipant{},
		&models.Activity{},
		&models.PBHistory{},
	))
	return db
}

func seedSweepChallenge(t *testing.T, db *gorm.DB) *models.Challenge {
	t.Helper()
	now := time.Now()
	challenge := models.Challenge{
		ID:             uuid.NewString(),
		Name:           "Sweep Challenge",
		Slug:           "sweep-challenge",
		Month:          int(now.Month()),
		Year:           now.Year(),
		StartDate:      now.AddDate(0, 0, -10),
		EndDate:        now.AddDate(0, 0, 10),
		MinPaceSeconds: 240,
		MaxPaceSeconds: 720,
	}
	require.NoError(t, db.Create(&challenge).Error)
	return &challenge
}

func seedSweepProfile(t *testing.T, db *gorm.DB, registered bool, challengeID string, tokenExpiry int64) *models.Profile {
	t.Helper()
	stravaID := int64(1000 + time.Now().UnixNano()%100000)
	profile := models.Profile{
		ID:                   uuid.NewString(),
		Email:                uuid.NewString()[:8] + "@example.com",
		IsActive:             true,
		StravaID:             &stravaID,
		StravaAccessToken:    "access",
		StravaRefreshToken:   "refresh",
		StravaTokenExpiresAt: tokenExpiry,
	}
	require.NoError(t, db.Create(&profile).Error)

	if registered {
		require.NoError(t, db.Create(&models.ChallengeParticipant{
			ID:          uuid.NewString(),
			ChallengeID: challengeID,
			UserID:      profile.ID,
			TargetKm:    30,
			Status:      models.ParticipantStatusActive,
		}).Error)
	}
	return &profile
}

func TestSyncAllReportsPerAccount(t *testing.T) {
	db := setupWorkerTestDB(t)
	challenge := seedSweepChallenge(t, db)

	activitiesServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]services.StravaActivity{
			{ID: time.Now().UnixNano(), Type: "Run", Distance: 5000, MovingTime: 1800},
		})
	}))
	defer activitiesServer.Close()

	// Token endpoint rejects everything: only the expired account hits it.
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid refresh token"}`, http.StatusUnauthorized)
	}))
	defer tokenServer.Close()

	client := services.NewStravaClient(db, services.StravaConfig{ClientID: "1", ClientSecret: "s"})
	client.ActivitiesURL = activitiesServer.URL
	client.TokenURL = tokenServer.URL
	syncer := services.NewActivitySyncService(db, client)

	fresh := time.Now().Add(2 * time.Hour).Unix()

	registered1 := seedSweepProfile(t, db, true, challenge.ID, fresh)
	registered2 := seedSweepProfile(t, db, true, challenge.ID, fresh)
	badToken := seedSweepProfile(t, db, true, challenge.ID, 0)
	var unregistered []*models.Profile
	for i := 0; i < 4; i++ {
		unregistered = append(unregistered, seedSweepProfile(t, db, false, challenge.ID, fresh))
	}

	worker := NewStravaSyncWorker(db, syncer, SyncConfig{
		BatchSize:  5,
		BatchDelay: time.Millisecond,
	})

	report, err := worker.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, report.Accounts, 7)

	byUser := make(map[string]AccountSyncResult)
	for _, a := range report.Accounts {
		byUser[a.UserID] = a
	}

	assert.True(t, byUser[registered1.ID].Success)
	assert.True(t, byUser[registered2.ID].Success)
	assert.Equal(t, 5.0, byUser[registered1.ID].TotalKm)

	assert.False(t, byUser[badToken.ID].Success)
	assert.False(t, byUser[badToken.ID].Skipped)
	assert.NotEmpty(t, byUser[badToken.ID].Reason)

	for _, p := range unregistered {
		assert.True(t, byUser[p.ID].Skipped, "unregistered accounts are skips, not failures")
	}
}

func TestSyncAllRunsInBatches(t *testing.T) {
	db := setupWorkerTestDB(t)
	challenge := seedSweepChallenge(t, db)

	var inFlight, maxInFlight int64
	activitiesServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			max := atomic.LoadInt64(&maxInFlight)
			if cur <= max || atomic.CompareAndSwapInt64(&maxInFlight, max, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		json.NewEncoder(w).Encode([]services.StravaActivity{})
	}))
	defer activitiesServer.Close()

	client := services.NewStravaClient(db, services.StravaConfig{ClientID: "1", ClientSecret: "s"})
	client.ActivitiesURL = activitiesServer.URL
	syncer := services.NewActivitySyncService(db, client)

	fresh := time.Now().Add(2 * time.Hour).Unix()
	for i := 0; i < 7; i++ {
		seedSweepProfile(t, db, true, challenge.ID, fresh)
	}

	worker := NewStravaSyncWorker(db, syncer, SyncConfig{
		BatchSize:  3,
		BatchDelay: time.Millisecond,
	})

	report, err := worker.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, report.Succeeded)
	assert.LessOrEqual(t, atomic.LoadInt64(&maxInFlight), int64(3),
		"no more than one batch may be in flight at once")
}

func TestSyncAllContainsAccountPanics(t *testing.T) {
	db := setupWorkerTestDB(t)
	challenge := seedSweepChallenge(t, db)

	// Expired token plus a nil client makes the refresh path panic; the
	// sweep must record a failure for the account instead of crashing.
	seedSweepProfile(t, db, true, challenge.ID, 0)
	fresh := time.Now().Add(2 * time.Hour).Unix()
	unregistered := seedSweepProfile(t, db, false, challenge.ID, fresh)

	syncer := services.NewActivitySyncService(db, nil)
	worker := NewStravaSyncWorker(db, syncer, SyncConfig{
		BatchSize:  2,
		BatchDelay: time.Millisecond,
	})

	report, err := worker.SyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)

	for _, a := range report.Accounts {
		if a.UserID == unregistered.ID {
			continue
		}
		assert.False(t, a.Success)
		assert.Contains(t, a.Reason, "panic")
	}
}

func TestSyncAllSkipsWhenNoChallenge(t *testing.T) {
	db := setupWorkerTestDB(t)

	client := services.NewStravaClient(db, services.StravaConfig{ClientID: "1", ClientSecret: "s"})
	syncer := services.NewActivitySyncService(db, client)
	worker := NewStravaSyncWorker(db, syncer, SyncConfig{})

	report, err := worker.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Empty(t, report.Accounts)
}

func TestSyncConfigDefaults(t *testing.T) {
	cfg := SyncConfig{}.withDefaults()
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.BatchDelay)
	assert.Equal(t, time.Hour, cfg.Interval)
}
