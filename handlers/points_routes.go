// handlers/points_routes.go
package handlers

import (
	"go-and-tell/middleware"
	"go-and-tell/models"
	"go-and-tell/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type awardRequest struct {
	WitnessProfileID string `json:"witness_profile_id" validate:"required,max=64"`
	ActionType       string `json:"action_type" validate:"required,max=64"`
	Description      string `json:"description" validate:"max=1000"`
}

type reconcileRequest struct {
	WitnessProfileID string `json:"witness_profile_id" validate:"max=64"`
}

// SetupPointsRoutes mounts the snake_case REST surface of the points ledger.
func SetupPointsRoutes(router fiber.Router, points *services.PointsService, log *zap.Logger) {
	log = orNop(log).Named("points_routes")
	group := router.Group("/points")

	group.Post("/award", func(c *fiber.Ctx) error {
		var req awardRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, log, err)
		}
		res, err := points.AwardPoints(c.UserContext(), req.WitnessProfileID, models.ActionType(req.ActionType), req.Description)
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(res)
	})

	group.Get("/leaderboard", func(c *fiber.Ctx) error {
		board, err := points.GetLeaderboard(c.UserContext(), queryInt(c, "limit", services.DefaultLeaderboardLimit))
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(board)
	})

	group.Get("/stats/:profileId", func(c *fiber.Ctx) error {
		stats, err := points.GetUserStats(c.UserContext(), c.Params("profileId"))
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(stats)
	})

	group.Get("/rank/:profileId", func(c *fiber.Ctx) error {
		rank, err := points.GetUserRank(c.UserContext(), c.Params("profileId"))
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(fiber.Map{"witness_profile_id": c.Params("profileId"), "rank": rank})
	})

	group.Get("/transactions/:profileId", func(c *fiber.Ctx) error {
		page, err := points.ListTransactions(c.UserContext(), c.Params("profileId"),
			queryInt(c, "page", 1), queryInt(c, "size", 20))
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(page)
	})

	admin := router.Group("/admin", middleware.RequireRole("admin"))

	admin.Post("/points/reconcile", func(c *fiber.Ctx) error {
		var req reconcileRequest
		if len(c.Body()) > 0 {
			if err := parseBody(c, &req); err != nil {
				return fail(c, log, err)
			}
		}
		if req.WitnessProfileID != "" {
			res, err := points.Reconcile(c.UserContext(), req.WitnessProfileID)
			if err != nil {
				return fail(c, log, err)
			}
			return c.JSON(res)
		}
		report, err := points.ReconcileAll(c.UserContext())
		if err != nil {
			return fail(c, log, err)
		}
		log.Info("manual reconcile", zap.String("by", middleware.UserID(c)),
			zap.Int("checked", report.Checked), zap.Int("repaired", report.Repaired))
		return c.JSON(report)
	})
}
