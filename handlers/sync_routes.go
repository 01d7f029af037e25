// handlers/sync_routes.go
package handlers

import (
	"errors"
	"log"
	"time"

	"runclub-backend/middleware"
	"runclub-backend/models"
	"runclub-backend/services"
	"runclub-backend/workers"

	"github.com/gofiber/fiber/v2"
)

// SetupSyncRoutes wires the Strava surface: the OAuth connect flow, the
// member-triggered sync, and the internal cron entrypoint for the full
// batch sweep.
func SetupSyncRoutes(
	app *fiber.App,
	syncWorker *workers.StravaSyncWorker,
	activitySync *services.ActivitySyncService,
	stravaClient *services.StravaClient,
	internalSecret string,
	callbackURL string,
) {
	// 🔐 Secured routes
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())

	securedGroup.Get("/strava/connect", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		// State carries the member id back through the provider redirect.
		return c.JSON(fiber.Map{
			"authorize_url": stravaClient.AuthorizeURL(callbackURL, userID),
		})
	})

	securedGroup.Post("/strava/sync", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		challenge, err := activitySync.ResolveChallengeForSync(time.Now())
		if err != nil {
			switch {
			case errors.Is(err, services.ErrChallengeNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no challenge for the current month"})
			case errors.Is(err, services.ErrChallengeLocked):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "challenge is locked"})
			case errors.Is(err, services.ErrSyncWindowExpired):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "challenge sync window expired"})
			default:
				log.Printf("❌ [SYNC] Failed to resolve challenge: %v", err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to resolve challenge"})
			}
		}

		result, err := activitySync.SyncUserActivities(c.Context(), userID, challenge)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrNotRegistered):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not registered for this challenge"})
			case errors.Is(err, services.ErrNoStravaConnection):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no Strava account connected"})
			default:
				log.Printf("❌ [SYNC] Manual sync failed for user %s: %v", userID, err)
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "sync failed", "cause": err.Error()})
			}
		}
		return c.JSON(result)
	})

	// Provider redirect target. Strava calls this with ?code=&state=, where
	// state is the member id from the connect step.
	app.Get("/strava/callback", func(c *fiber.Ctx) error {
		code := c.Query("code")
		userID := c.Query("state")
		if code == "" || userID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code and state are required"})
		}

		tokens, err := stravaClient.ExchangeCode(c.Context(), code, callbackURL)
		if err != nil {
			log.Printf("❌ [STRAVA] Code exchange failed for user %s: %v", userID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to exchange authorization code"})
		}

		updates := map[string]interface{}{
			"strava_access_token":     tokens.AccessToken,
			"strava_refresh_token":    tokens.RefreshToken,
			"strava_token_expires_at": tokens.ExpiresAt,
		}
		if tokens.Athlete != nil {
			updates["strava_id"] = tokens.Athlete.ID
			name := tokens.Athlete.Firstname + " " + tokens.Athlete.Lastname
			updates["strava_athlete_name"] = &name
		}

		result := stravaClient.DB.Model(&models.Profile{}).Where("id = ?", userID).Updates(updates)
		if result.Error != nil {
			log.Printf("❌ [STRAVA] Failed to persist tokens for user %s: %v", userID, result.Error)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save connection"})
		}
		if result.RowsAffected == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "member not found"})
		}

		log.Printf("🔗 [STRAVA] Member %s connected their account", userID)
		return c.JSON(fiber.Map{"message": "Strava connected"})
	})

	// Internal cron entrypoint — the platform scheduler calls this with the
	// shared secret; it runs the same sweep as the background worker.
	internalGroup := app.Group("/internal", middleware.InternalSecretMiddleware(internalSecret))
	internalGroup.Post("/cron/strava-sync", func(c *fiber.Ctx) error {
		report, err := syncWorker.SyncAll(c.Context())
		if err != nil {
			log.Printf("❌ [SYNC] Cron sweep failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sweep failed", "cause": err.Error()})
		}
		return c.JSON(report)
	})
}
