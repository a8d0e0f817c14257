// handlers/sync_routes.go
package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"crm-gamification-system/middleware"
	"crm-gamification-system/models"
	"crm-gamification-system/workers"
)

func SetupSyncRoutes(app *fiber.App, db *gorm.DB, worker *workers.SyncWorker) {
	secured := app.Group("/", middleware.ServiceAuthMiddleware())

	// GET /status — sync cursor and outcome per company.
	secured.Get("/status", func(c *fiber.Ctx) error {
		var controls []models.SyncControl
		query := db.Order("company_id ASC")
		if companyID := c.QueryInt("company_id"); companyID > 0 {
			query = query.Where("company_id = ?", companyID)
		}
		if err := query.Find(&controls).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load sync status",
			})
		}
		return c.JSON(fiber.Map{"companies": controls})
	})

	// GET /status/:companyID/logs — recent audit trail entries.
	secured.Get("/status/:companyID/logs", func(c *fiber.Ctx) error {
		companyID, err := c.ParamsInt("companyID")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid company id"})
		}
		limit := c.QueryInt("limit", 100)
		if limit < 1 || limit > 1000 {
			limit = 100
		}
		var logs []models.SyncLog
		err = db.Where("company_id = ?", companyID).
			Order("timestamp DESC").Limit(limit).Find(&logs).Error
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load sync logs",
			})
		}
		return c.JSON(fiber.Map{"logs": logs})
	})

	// POST /sync/:companyID/start — trigger a cycle outside the schedule.
	secured.Post("/sync/:companyID/start", func(c *fiber.Ctx) error {
		companyID, err := c.ParamsInt("companyID")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid company id"})
		}

		var cfg models.KommoConfig
		err = db.Where("company_id = ? AND active = ?", int64(companyID), true).First(&cfg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "no active configuration for this company",
			})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load configuration",
			})
		}

		go func() {
			if err := worker.RunCycle(context.Background(), cfg); err != nil {
				log.Printf("[SYNC] ❌ Manual cycle for company %d failed to start: %v", cfg.CompanyID, err)
			}
		}()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message":    "sync cycle started",
			"company_id": cfg.CompanyID,
		})
	})
}
