package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"crm-gamification-system/handlers"
	"crm-gamification-system/models"
	"crm-gamification-system/services"
	"crm-gamification-system/utils"
	"crm-gamification-system/workers"

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

	app := fiber.New(fiber.Config{})

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
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.KommoConfig{},
		&models.Broker{},
		&models.Lead{},
		&models.Activity{},
		&models.Rule{},
		&models.BrokerPoints{},
		&models.SyncControl{},
		&models.SyncLog{},
		&models.WeeklyLog{},
		&models.MonthlyLog{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ruleService := services.NewRuleService(db)
	scoringService := services.NewScoringService(db, ruleService)
	rollupService := services.NewRollupService(db)

	archive, err := utils.NewR2Archive()
	if err != nil {
		log.Fatal("failed to initialize R2 archive:", err)
	}
	if archive != nil {
		rollupService.Archiver = archive
		log.Println("✅ Rollup archiving to R2 enabled")
	}

	cache := services.NewChangeCache(os.Getenv("REDIS_URL"))
	syncWorker := workers.NewSyncWorker(db, cache, scoringService)

	// Seed the default rule set for every configured company.
	var configs []models.KommoConfig
	if err := db.Where("active = ?", true).Find(&configs).Error; err != nil {
		log.Fatal("failed to load company configurations:", err)
	}
	for _, cfg := range configs {
		// A config without a resolved company id gets its rules seeded by
		// the worker once the CRM account answers.
		if cfg.CompanyID == 0 {
			continue
		}
		if err := ruleService.SeedDefaultRules(cfg.CompanyID); err != nil {
			log.Printf("⚠️ Failed to seed rules for company %d: %v", cfg.CompanyID, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := workers.NewScheduler(db, syncWorker, rollupService)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("failed to start scheduler:", err)
	}
	defer scheduler.Stop()

	handlers.SetupSyncRoutes(app, db, syncWorker)
	handlers.SetupRuleRoutes(app, ruleService)
	handlers.SetupRankingRoutes(app, db)

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":5300"
	}

	go func() {
		if err := app.Listen(listenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on %s", listenAddr)
	log.Printf("✅ Syncing %d configured company(ies)", len(configs))
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
