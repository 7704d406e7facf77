// handlers/testimony_routes.go
package handlers

import (
	"go-and-tell/models"
	"go-and-tell/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type testimonyRequest struct {
	WitnessProfileID string  `json:"witness_profile_id" validate:"required,max=64"`
	Category         string  `json:"category" validate:"required,oneof=seen heard experienced"`
	Title            string  `json:"title" validate:"required,max=200"`
	Content          string  `json:"content" validate:"required,max=20000"`
	EnhancedContent  *string `json:"enhanced_content" validate:"omitempty,max=20000"`
}

type testimonyPatchRequest struct {
	Title           *string `json:"title" validate:"omitempty,max=200"`
	Content         *string `json:"content" validate:"omitempty,max=20000"`
	EnhancedContent *string `json:"enhanced_content" validate:"omitempty,max=20000"`
}

type soulRequest struct {
	WitnessProfileID string `json:"witness_profile_id" validate:"required,max=64"`
	Name             string `json:"name" validate:"required,max=120"`
	Contact          string `json:"contact" validate:"max=120"`
	Notes            string `json:"notes" validate:"max=5000"`
}

type shareRequest struct {
	WitnessProfileID string `json:"witness_profile_id" validate:"required,max=64"`
	TestimonyID      string `json:"testimony_id" validate:"max=64"`
	Channel          string `json:"channel" validate:"max=32"`
}

// SetupTestimonyRoutes mounts testimonies, souls and shares. Each create
// awards ledger points through the services.
func SetupTestimonyRoutes(router fiber.Router, testimonies *services.TestimonyService, outreach *services.OutreachService, log *zap.Logger) {
	log = orNop(log).Named("testimony_routes")

	router.Post("/testimonies", func(c *fiber.Ctx) error {
		var req testimonyRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, log, err)
		}
		res, err := testimonies.CreateTestimony(c.UserContext(), services.TestimonyInput{
			WitnessProfileID: req.WitnessProfileID,
			Category:         models.TestimonyCategory(req.Category),
			Title:            req.Title,
			Content:          req.Content,
			EnhancedContent:  req.EnhancedContent,
		})
		if err != nil {
			return fail(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	router.Get("/testimonies/:id", func(c *fiber.Ctx) error {
		t, err := testimonies.GetTestimony(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(t)
	})

	router.Patch("/testimonies/:id", func(c *fiber.Ctx) error {
		var req testimonyPatchRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, log, err)
		}
		t, err := testimonies.UpdateTestimony(c.UserContext(), c.Params("id"), services.TestimonyPatch{
			Title:           req.Title,
			Content:         req.Content,
			EnhancedContent: req.EnhancedContent,
		})
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(t)
	})

	router.Delete("/testimonies/:id", func(c *fiber.Ctx) error {
		if err := testimonies.DeleteTestimony(c.UserContext(), c.Params("id")); err != nil {
			return fail(c, log, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	router.Get("/profiles/:id/testimonies", func(c *fiber.Ctx) error {
		list, err := testimonies.ListTestimonies(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(list)
	})

	router.Post("/souls", func(c *fiber.Ctx) error {
		var req soulRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, log, err)
		}
		res, err := outreach.AddSoul(c.UserContext(), services.SoulInput{
			WitnessProfileID: req.WitnessProfileID,
			Name:             req.Name,
			Contact:          req.Contact,
			Notes:            req.Notes,
		})
		if err != nil {
			return fail(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	router.Get("/profiles/:id/souls", func(c *fiber.Ctx) error {
		souls, err := outreach.ListSouls(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(souls)
	})

	router.Post("/shares", func(c *fiber.Ctx) error {
		var req shareRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, log, err)
		}
		res, err := outreach.RecordShare(c.UserContext(), req.WitnessProfileID, req.TestimonyID, req.Channel)
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(res)
	})
}
