// handlers/profile_routes.go
package handlers

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go-and-tell/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PhotoUploader stores an image and returns its public reference.
type PhotoUploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

const maxPhotoBytes = 5 * 1024 * 1024

type profileRequest struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Contact  string  `json:"contact" validate:"max=120"`
	Role     string  `json:"role" validate:"max=64"`
	PhotoURI *string `json:"photo_uri" validate:"omitempty,url"`
	Country  *string `json:"country" validate:"omitempty,max=80"`
	District *string `json:"district" validate:"omitempty,max=120"`
	Assembly *string `json:"assembly" validate:"omitempty,max=120"`
}

type profilePatchRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=120"`
	Contact  *string `json:"contact" validate:"omitempty,max=120"`
	Role     *string `json:"role" validate:"omitempty,max=64"`
	PhotoURI *string `json:"photo_uri" validate:"omitempty,url"`
	Country  *string `json:"country" validate:"omitempty,max=80"`
	District *string `json:"district" validate:"omitempty,max=120"`
	Assembly *string `json:"assembly" validate:"omitempty,max=120"`
}

var photoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// SetupProfileRoutes mounts witness profile CRUD. uploader may be nil, in
// which case photo uploads answer 503.
func SetupProfileRoutes(router fiber.Router, profiles *services.ProfileService, uploader PhotoUploader, log *zap.Logger) {
	log = orNop(log).Named("profile_routes")
	group := router.Group("/profiles")

	group.Post("/", func(c *fiber.Ctx) error {
		var req profileRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, log, err)
		}
		p, err := profiles.CreateProfile(c.UserContext(), services.ProfileInput{
			Name:     req.Name,
			Contact:  req.Contact,
			Role:     req.Role,
			PhotoURI: req.PhotoURI,
			Country:  req.Country,
			District: req.District,
			Assembly: req.Assembly,
		})
		if err != nil {
			return fail(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	})

	group.Get("/:id", func(c *fiber.Ctx) error {
		p, err := profiles.GetProfile(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(p)
	})

	group.Patch("/:id", func(c *fiber.Ctx) error {
		var req profilePatchRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, log, err)
		}
		p, err := profiles.UpdateProfile(c.UserContext(), c.Params("id"), services.ProfilePatch{
			Name:     req.Name,
			Contact:  req.Contact,
			Role:     req.Role,
			PhotoURI: req.PhotoURI,
			Country:  req.Country,
			District: req.District,
			Assembly: req.Assembly,
		})
		if err != nil {
			return fail(c, log, err)
		}
		return c.JSON(p)
	})

	group.Post("/:id/photo", func(c *fiber.Ctx) error {
		if uploader == nil {
			return fail(c, log, services.ErrNotConfigured)
		}
		id := c.Params("id")
		if _, err := profiles.GetProfile(c.UserContext(), id); err != nil {
			return fail(c, log, err)
		}

		fileHeader, err := c.FormFile("photo")
		if err != nil {
			return fail(c, log, fmt.Errorf("%w: photo file is required", services.ErrInvalidInput))
		}
		if fileHeader.Size > maxPhotoBytes {
			return fail(c, log, fmt.Errorf("%w: photo exceeds 5MB", services.ErrInvalidInput))
		}
		contentType := strings.ToLower(fileHeader.Header.Get(fiber.HeaderContentType))
		ext, ok := photoTypes[contentType]
		if !ok {
			return fail(c, log, fmt.Errorf("%w: unsupported photo type %q", services.ErrInvalidInput, contentType))
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fail(c, log, fmt.Errorf("open upload: %w", err))
		}
		defer file.Close()

		key := filepath.ToSlash(filepath.Join("profiles", id, uuid.NewString()+ext))
		url, err := uploader.Upload(c.UserContext(), key, contentType, file)
		if err != nil {
			return fail(c, log, err)
		}

		p, err := profiles.SetPhoto(c.UserContext(), id, url)
		if err != nil {
			return fail(c, log, err)
		}
		log.Info("profile photo uploaded", zap.String("profile_id", id), zap.String("key", key))
		return c.JSON(p)
	})
}
