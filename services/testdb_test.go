package services

import (
	"testing"

	"runclub-backend/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
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
		&models.ChallengeExcuse{},
		&models.Activity{},
		&models.Race{},
		&models.RaceResult{},
		&models.RewardMilestone{},
		&models.MemberMilestoneReward{},
		&models.RewardPodiumConfig{},
		&models.MemberPodiumReward{},
		&models.LuckyDrawEntry{},
		&models.LuckyDrawWinner{},
		&models.FinancialCategory{},
		&models.Transaction{},
		&models.PBHistory{},
	))
	return db
}
