package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"runclub-backend/handlers"
	"runclub-backend/middleware"
	"runclub-backend/models"
	"runclub-backend/services"
	"runclub-backend/utils"
	"runclub-backend/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // 20MB — banners and receipts only
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	serviceToken := os.Getenv("RUNCLUB_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("❌ RUNCLUB_SERVICE_TOKEN is not set — service cannot authenticate Gateway")
	}
	app.Use(middleware.GatewayAuthMiddleware(serviceToken))

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
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
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	r2Client, err := utils.NewR2Client(utils.R2Config{
		AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		Bucket:          os.Getenv("R2_BUCKET_NAME"),
		CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
	})
	if err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	// --- CONFIGURE Strava OAuth app ---
	stravaConfig := services.StravaConfig{
		ClientID:     os.Getenv("STRAVA_CLIENT_ID"),
		ClientSecret: os.Getenv("STRAVA_CLIENT_SECRET"),
	}
	if stravaConfig.ClientID == "" || stravaConfig.ClientSecret == "" {
		log.Fatal("STRAVA_CLIENT_ID / STRAVA_CLIENT_SECRET environment variables not set")
	}
	stravaCallbackURL := os.Getenv("STRAVA_CALLBACK_URL")
	if stravaCallbackURL == "" {
		log.Fatal("STRAVA_CALLBACK_URL environment variable not set")
	}
	internalSecret := os.Getenv("INTERNAL_CRON_SECRET")
	if internalSecret == "" {
		log.Fatal("INTERNAL_CRON_SECRET environment variable not set")
	}
	// --- END CONFIG ---

	stravaClient := services.NewStravaClient(db, stravaConfig)
	activitySync := services.NewActivitySyncService(db, stravaClient)
	financeService := services.NewFinanceService(db, r2Client)
	rewardService := services.NewRewardService(db, financeService)
	challengeService := services.NewChallengeService(db, rewardService)
	raceService := services.NewRaceService(db, rewardService, r2Client)
	luckyDrawService := services.NewLuckyDrawService(db)
	profileService := services.NewProfileService(db)

	if err := financeService.SeedDefaultCategories(); err != nil {
		log.Fatal("failed to seed financial categories:", err)
	}

	syncConfig := workers.SyncConfig{
		Interval:   parseDurationEnv("STRAVA_SYNC_INTERVAL", time.Hour),
		BatchSize:  5,
		BatchDelay: 2 * time.Second,
	}
	syncWorker := workers.NewStravaSyncWorker(db, activitySync, syncConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker.Start(ctx)

	if _, err := challengeService.StartScheduler(ctx); err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupChallengeRoutes(app, challengeService)
	handlers.SetupRaceRoutes(app, raceService)
	handlers.SetupRewardRoutes(app, rewardService)
	handlers.SetupLuckyDrawRoutes(app, luckyDrawService)
	handlers.SetupFinanceRoutes(app, financeService)
	handlers.SetupProfileRoutes(app, profileService)
	handlers.SetupSyncRoutes(app, syncWorker, activitySync, stravaClient, internalSecret, stravaCallbackURL)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Strava Sync Worker running")
	log.Println("✅ Challenge scheduler running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}
