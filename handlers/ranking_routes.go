// handlers/ranking_routes.go
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"crm-gamification-system/middleware"
	"crm-gamification-system/models"
)

func SetupRankingRoutes(app *fiber.App, db *gorm.DB) {
	secured := app.Group("/", middleware.ServiceAuthMiddleware())

	// GET /ranking?company_id= — broker standings, highest total first.
	secured.Get("/ranking", func(c *fiber.Ctx) error {
		companyID := int64(c.QueryInt("company_id"))
		if companyID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company_id is required"})
		}
		var standings []models.BrokerPoints
		err := db.Where("company_id = ?", companyID).
			Order("pontos DESC, nome ASC").Find(&standings).Error
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load ranking"})
		}
		return c.JSON(fiber.Map{"ranking": standings})
	})

	// GET /brokers/:id/points?company_id= — one broker's counters and total.
	secured.Get("/brokers/:id/points", func(c *fiber.Ctx) error {
		brokerID, err := c.ParamsInt("id")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid broker id"})
		}
		companyID := int64(c.QueryInt("company_id"))
		if companyID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company_id is required"})
		}

		var points models.BrokerPoints
		err = db.Where("id = ? AND company_id = ?", int64(brokerID), companyID).First(&points).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "broker not found"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load points"})
		}
		return c.JSON(points)
	})

	// GET /rollups/:period?company_id= — stored weekly or monthly snapshots.
	secured.Get("/rollups/:period", func(c *fiber.Ctx) error {
		companyID := int64(c.QueryInt("company_id"))
		if companyID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company_id is required"})
		}
		switch c.Params("period") {
		case models.PeriodWeekly:
			var logs []models.WeeklyLog
			if err := db.Where("company_id = ?", companyID).Order("period_start DESC").Find(&logs).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load rollups"})
			}
			return c.JSON(fiber.Map{"rollups": logs})
		case models.PeriodMonthly:
			var logs []models.MonthlyLog
			if err := db.Where("company_id = ?", companyID).Order("period_start DESC").Find(&logs).Error; err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load rollups"})
			}
			return c.JSON(fiber.Map{"rollups": logs})
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "period must be weekly or monthly"})
		}
	})
}
