// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"runclub-backend/models"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler wires the recurring jobs: flipping challenge statuses as
// their date windows pass, and closing out challenges whose sync grace
// window has ended. The Strava sweep itself runs in its own worker.
func (s *ChallengeService) StartScheduler(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Every 10 minutes: move Open challenges into In Progress once their
	// start date passes.
	_, err = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()
			result := s.DB.Model(&models.Challenge{}).
				Where("status = ? AND start_date <= ?", models.ChallengeStatusOpen, now).
				Update("status", models.ChallengeStatusInProgress)
			if result.Error != nil {
				log.Printf("[Scheduler] DB error advancing challenges: %v", result.Error)
				return
			}
			if result.RowsAffected > 0 {
				log.Printf("✅ [Scheduler] Moved %d challenge(s) to In Progress", result.RowsAffected)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	// Every 6 hours: close out challenges past their sync grace window.
	_, err = sched.NewJob(
		gocron.DurationJob(6*time.Hour),
		gocron.NewTask(func() {
			s.CloseOutEnded(time.Now())
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Printf("[Scheduler] Shutdown error: %v", err)
		}
	}()
	return sched, nil
}
