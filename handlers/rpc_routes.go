// handlers/rpc_routes.go
package handlers

import (
	"fmt"

	"go-and-tell/models"
	"go-and-tell/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// The RPC surface mirrors the mobile client's typed procedures: camelCase
// fields, results wrapped as {"result":{"data":...}}.

type rpcAwardInput struct {
	WitnessProfileID string `json:"witnessProfileId" validate:"required,max=64"`
	ActionType       string `json:"actionType" validate:"required,max=64"`
	Description      string `json:"description" validate:"max=1000"`
}

type rpcLeaderboardInput struct {
	Limit int `json:"limit" validate:"min=0"`
}

type rpcStatsInput struct {
	WitnessProfileID string `json:"witnessProfileId" validate:"required,max=64"`
}

type rpcStats struct {
	WitnessProfileID            string `json:"witnessProfileId"`
	TotalPoints                 int64  `json:"totalPoints"`
	TestimoniesCount            int64  `json:"testimoniesCount"`
	TestimoniesSeenCount        int64  `json:"testimoniesSeenCount"`
	TestimoniesHeardCount       int64  `json:"testimoniesHeardCount"`
	TestimoniesExperiencedCount int64  `json:"testimoniesExperiencedCount"`
	SoulsCount                  int64  `json:"soulsCount"`
	SharesCount                 int64  `json:"sharesCount"`
}

type rpcLeaderboardEntry struct {
	rpcStats
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	PhotoURI *string `json:"photoUri"`
}

func toRPCStats(s models.UserPointsSummary) rpcStats {
	return rpcStats{
		WitnessProfileID:            s.WitnessProfileID,
		TotalPoints:                 s.TotalPoints,
		TestimoniesCount:            s.TestimoniesCount,
		TestimoniesSeenCount:        s.TestimoniesSeenCount,
		TestimoniesHeardCount:       s.TestimoniesHeardCount,
		TestimoniesExperiencedCount: s.TestimoniesExperiencedCount,
		SoulsCount:                  s.SoulsCount,
		SharesCount:                 s.SharesCount,
	}
}

func toRPCEntry(e services.LeaderboardEntry) rpcLeaderboardEntry {
	return rpcLeaderboardEntry{
		rpcStats: rpcStats{
			WitnessProfileID:            e.WitnessProfileID,
			TotalPoints:                 e.TotalPoints,
			TestimoniesCount:            e.TestimoniesCount,
			TestimoniesSeenCount:        e.TestimoniesSeenCount,
			TestimoniesHeardCount:       e.TestimoniesHeardCount,
			TestimoniesExperiencedCount: e.TestimoniesExperiencedCount,
			SoulsCount:                  e.SoulsCount,
			SharesCount:                 e.SharesCount,
		},
		Name:     e.Name,
		Role:     e.Role,
		PhotoURI: e.PhotoURI,
	}
}

type rpcProcedure struct {
	mutation bool
	call     func(c *fiber.Ctx) (any, error)
}

// rpcInput decodes the procedure input: the request body for POST, the
// "input" query parameter (JSON) for GET.
func rpcInput(c *fiber.Ctx, out any) error {
	raw := c.Body()
	if c.Method() == fiber.MethodGet {
		raw = []byte(c.Query("input"))
	}
	if len(raw) > 0 {
		if err := c.App().Config().JSONDecoder(raw, out); err != nil {
			return fmt.Errorf("%w: invalid JSON input", services.ErrInvalidInput)
		}
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s", services.ErrInvalidInput, err.Error())
	}
	return nil
}

func rpcErrorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_SUPPORTED"
	case fiber.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

func rpcFail(c *fiber.Ctx, log *zap.Logger, status int, msg string) error {
	if status >= fiber.StatusInternalServerError {
		log.Error("rpc failed", zap.String("procedure", c.Params("*")), zap.String("error", msg))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"message": msg, "code": rpcErrorCode(status)},
	})
}

// SetupRPCRoutes mounts /rpc/<procedure> for the typed client.
func SetupRPCRoutes(router fiber.Router, points *services.PointsService, log *zap.Logger) {
	log = orNop(log).Named("rpc")

	procedures := map[string]rpcProcedure{
		"points.awardPoints": {mutation: true, call: func(c *fiber.Ctx) (any, error) {
			var in rpcAwardInput
			if err := rpcInput(c, &in); err != nil {
				return nil, err
			}
			res, err := points.AwardPoints(c.UserContext(), in.WitnessProfileID, models.ActionType(in.ActionType), in.Description)
			if err != nil {
				return nil, err
			}
			return fiber.Map{"success": res.Success, "points": res.Points}, nil
		}},
		"points.getLeaderboard": {call: func(c *fiber.Ctx) (any, error) {
			var in rpcLeaderboardInput
			if err := rpcInput(c, &in); err != nil {
				return nil, err
			}
			board, err := points.GetLeaderboard(c.UserContext(), in.Limit)
			if err != nil {
				return nil, err
			}
			out := make([]rpcLeaderboardEntry, len(board))
			for i, e := range board {
				out[i] = toRPCEntry(e)
			}
			return out, nil
		}},
		"points.getUserStats": {call: func(c *fiber.Ctx) (any, error) {
			var in rpcStatsInput
			if err := rpcInput(c, &in); err != nil {
				return nil, err
			}
			stats, err := points.GetUserStats(c.UserContext(), in.WitnessProfileID)
			if err != nil {
				return nil, err
			}
			return toRPCStats(stats), nil
		}},
	}

	router.All("/rpc/*", func(c *fiber.Ctx) error {
		name := c.Params("*")
		proc, ok := procedures[name]
		if !ok {
			return rpcFail(c, log, fiber.StatusNotFound, fmt.Sprintf("no procedure %q", name))
		}
		switch {
		case proc.mutation && c.Method() != fiber.MethodPost,
			!proc.mutation && c.Method() != fiber.MethodGet && c.Method() != fiber.MethodPost:
			return rpcFail(c, log, fiber.StatusMethodNotAllowed, "method not supported for "+name)
		}

		data, err := proc.call(c)
		if err != nil {
			status, msg := statusFor(err)
			if status >= fiber.StatusInternalServerError {
				log.Error("rpc procedure failed", zap.String("procedure", name), zap.Error(err))
			}
			return c.Status(status).JSON(fiber.Map{
				"error": fiber.Map{"message": msg, "code": rpcErrorCode(status)},
			})
		}
		return c.JSON(fiber.Map{"result": fiber.Map{"data": data}})
	})
}
