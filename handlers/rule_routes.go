// handlers/rule_routes.go
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"crm-gamification-system/middleware"
	"crm-gamification-system/services"
)

type addRuleRequest struct {
	CompanyID  int64  `json:"company_id"`
	Nome       string `json:"nome"`
	ColunaNome string `json:"coluna_nome"`
	Pontos     int    `json:"pontos"`
	Descricao  string `json:"descricao"`
}

func SetupRuleRoutes(app *fiber.App, rules *services.RuleService) {
	secured := app.Group("/rules", middleware.ServiceAuthMiddleware())

	// GET /rules?company_id=
	secured.Get("/", func(c *fiber.Ctx) error {
		companyID := int64(c.QueryInt("company_id"))
		if companyID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company_id is required"})
		}
		list, err := rules.ListRules(companyID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load rules"})
		}
		return c.JSON(fiber.Map{"rules": list})
	})

	// POST /rules
	secured.Post("/", func(c *fiber.Ctx) error {
		var req addRuleRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.CompanyID <= 0 || req.Nome == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company_id and nome are required"})
		}

		rule, err := rules.AddRule(req.CompanyID, req.Nome, req.ColunaNome, req.Pontos, req.Descricao)
		if err != nil {
			var schemaErr *services.SchemaEvolutionError
			if errors.As(err, &schemaErr) {
				return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": schemaErr.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to add rule"})
		}
		return c.Status(fiber.StatusCreated).JSON(rule)
	})

	// DELETE /rules/:coluna?company_id=&confirm=true
	secured.Delete("/:coluna", func(c *fiber.Ctx) error {
		companyID := int64(c.QueryInt("company_id"))
		if companyID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company_id is required"})
		}
		confirm := c.QueryBool("confirm")

		err := rules.RemoveRule(companyID, c.Params("coluna"), confirm)
		if errors.Is(err, services.ErrConfirmRequired) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
		}
		if err != nil {
			var schemaErr *services.SchemaEvolutionError
			if errors.As(err, &schemaErr) {
				return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": schemaErr.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to remove rule"})
		}
		return c.JSON(fiber.Map{"message": "rule removed"})
	})
}
