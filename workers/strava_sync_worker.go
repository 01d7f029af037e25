// workers/strava_sync_worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"runclub-backend/models"
	"runclub-backend/services"

	"gorm.io/gorm"
)

// SyncConfig tunes the batch fan-out. Read from the environment once in
// main; zero values fall back to the defaults below.
type SyncConfig struct {
	Interval   time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.Interval <= 0 {
		c.Interval = 1 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 2 * time.Second
	}
	return c
}

// AccountSyncResult is one account's outcome in a batch run. Skips (no
// challenge, not registered) are reported separately from failures.
type AccountSyncResult struct {
	UserID  string `json:"user_id"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`

	TotalKm         float64 `json:"total_km,omitempty"`
	TotalActivities int     `json:"total_activities,omitempty"`
	NewPBs          int     `json:"new_pbs,omitempty"`
}

// BatchReport summarizes one full sweep over all connected accounts.
type BatchReport struct {
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Accounts  []AccountSyncResult `json:"accounts"`
}

// StravaSyncWorker sweeps every connected member's Strava account in small
// concurrent batches. One account failing never aborts its batch or the
// sweep; each account gets its own result row in the report.
type StravaSyncWorker struct {
	db     *gorm.DB
	syncer *services.ActivitySyncService
	config SyncConfig
}

func NewStravaSyncWorker(db *gorm.DB, syncer *services.ActivitySyncService, config SyncConfig) *StravaSyncWorker {
	return &StravaSyncWorker{
		db:     db,
		syncer: syncer,
		config: config.withDefaults(),
	}
}

func (w *StravaSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Strava Sync Worker (strava → activities/participants)…")
	go w.run(ctx)
}

func (w *StravaSyncWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncAll(ctx); err != nil {
				log.Printf("❌ [SYNC] Sweep failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Strava Sync Worker stopped")
			return
		}
	}
}

// SyncAll runs one sweep: resolve the active challenge, enumerate connected
// accounts and sync them in batches with a delay in between to respect
// provider rate limits.
func (w *StravaSyncWorker) SyncAll(ctx context.Context) (*BatchReport, error) {
	started := time.Now()
	report := &BatchReport{StartedAt: started}

	challenge, err := w.syncer.ResolveChallengeForSync(started)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrChallengeNotFound),
			errors.Is(err, services.ErrChallengeLocked),
			errors.Is(err, services.ErrSyncWindowExpired):
			log.Printf("[SYNC] ⏭️ Sweep skipped: %v", err)
			report.Duration = time.Since(started)
			return report, nil
		default:
			return nil, err
		}
	}

	var profiles []models.Profile
	if err := w.db.
		Where("is_active = ? AND strava_id IS NOT NULL AND strava_refresh_token <> ''", true).
		Find(&profiles).Error; err != nil {
		return nil, err
	}
	report.Total = len(profiles)
	if len(profiles) == 0 {
		log.Println("[SYNC] ✅ No connected accounts to sync")
		report.Duration = time.Since(started)
		return report, nil
	}

	log.Printf("[SYNC] 📡 Sweeping %d connected account(s) for challenge %s (batch=%d, delay=%s)",
		len(profiles), challenge.Name, w.config.BatchSize, w.config.BatchDelay)

	for start := 0; start < len(profiles); start += w.config.BatchSize {
		end := start + w.config.BatchSize
		if end > len(profiles) {
			end = len(profiles)
		}

		report.Accounts = append(report.Accounts, w.syncBatch(ctx, profiles[start:end], challenge)...)

		if end < len(profiles) {
			select {
			case <-time.After(w.config.BatchDelay):
			case <-ctx.Done():
				report.Duration = time.Since(started)
				return report, ctx.Err()
			}
		}
	}

	for _, a := range report.Accounts {
		switch {
		case a.Success:
			report.Succeeded++
		case a.Skipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	report.Duration = time.Since(started)

	log.Printf("[SYNC] ✅ Sweep done in %s: %d ok, %d skipped, %d failed",
		report.Duration.Round(time.Millisecond), report.Succeeded, report.Skipped, report.Failed)
	return report, nil
}

// syncBatch fans one batch out concurrently and collects every account's
// result. Panics and errors stay inside their goroutine's result row.
func (w *StravaSyncWorker) syncBatch(ctx context.Context, batch []models.Profile, challenge *models.Challenge) []AccountSyncResult {
	results := make([]AccountSyncResult, len(batch))
	var wg sync.WaitGroup

	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[SYNC] ❌ Panic while syncing user %s: %v", batch[i].ID, r)
					results[i] = AccountSyncResult{UserID: batch[i].ID, Reason: fmt.Sprintf("panic: %v", r)}
				}
			}()
			results[i] = w.syncOne(ctx, &batch[i], challenge)
		}(i)
	}
	wg.Wait()
	return results
}

func (w *StravaSyncWorker) syncOne(ctx context.Context, profile *models.Profile, challenge *models.Challenge) AccountSyncResult {
	res, err := w.syncer.SyncUserActivities(ctx, profile.ID, challenge)
	if err == nil {
		return AccountSyncResult{
			UserID:          profile.ID,
			Success:         true,
			TotalKm:         res.TotalKm,
			TotalActivities: res.TotalActivities,
			NewPBs:          res.NewPBs,
		}
	}

	if errors.Is(err, services.ErrNotRegistered) || errors.Is(err, services.ErrNoStravaConnection) {
		return AccountSyncResult{UserID: profile.ID, Skipped: true, Reason: err.Error()}
	}

	var refreshErr *services.TokenRefreshError
	var fetchErr *services.ProviderFetchError
	switch {
	case errors.As(err, &refreshErr):
		log.Printf("[SYNC] ⚠️ Token refresh failed for user %s: %v", profile.ID, err)
	case errors.As(err, &fetchErr):
		log.Printf("[SYNC] ⚠️ Provider fetch failed for user %s: %v", profile.ID, err)
	default:
		log.Printf("[SYNC] ❌ Sync failed for user %s: %v", profile.ID, err)
	}
	return AccountSyncResult{UserID: profile.ID, Reason: err.Error()}
}
