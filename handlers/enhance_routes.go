// handlers/enhance_routes.go
package handlers

import (
	"go-and-tell/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type enhanceRequest struct {
	Kind string `json:"kind" validate:"required,oneof=testimony title soul_notes"`
	Text string `json:"text" validate:"required,max=20000"`
}

// SetupEnhanceRoutes exposes the text-enhancement collaborator. It never
// touches the points ledger.
func SetupEnhanceRoutes(router fiber.Router, enhancer services.Enhancer, log *zap.Logger) {
	log = orNop(log).Named("enhance_routes")

	router.Post("/enhance", func(c *fiber.Ctx) error {
		if enhancer == nil {
			return fail(c, log, services.ErrNotConfigured)
		}
		var req enhanceRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, log, err)
		}
		out, err := enhancer.Enhance(c.UserContext(), services.EnhanceKind(req.Kind), req.Text)
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(fiber.Map{"kind": req.Kind, "enhanced_text": out})
	})
}
