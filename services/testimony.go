package services

import (
	"context"
	"errors"
	"strings"

	"go-and-tell/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PointsAwarder is the part of the ledger the content stores depend on.
type PointsAwarder interface {
	AwardPoints(ctx context.Context, witnessProfileID string, action models.ActionType, description string) (AwardResult, error)
}

type TestimonyInput struct {
	WitnessProfileID string
	Category         models.TestimonyCategory
	Title            string
	Content          string
	EnhancedContent  *string
}

type TestimonyPatch struct {
	Title           *string
	Content         *string
	EnhancedContent *string
}

// TestimonyResult is a stored testimony plus the outcome of its award.
type TestimonyResult struct {
	Testimony     *models.Testimony `json:"testimony"`
	PointsAwarded bool              `json:"points_awarded"`
	Points        int64             `json:"points"`
}

type TestimonyService struct {
	DB     *gorm.DB
	points PointsAwarder
	log    *zap.Logger
}

func NewTestimonyService(db *gorm.DB, points PointsAwarder, logger *zap.Logger) *TestimonyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestimonyService{DB: db, points: points, log: logger.Named("testimonies")}
}

func (s *TestimonyService) db(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotConfigured
	}
	return s.DB.WithContext(ctx), nil
}

func validCategory(c models.TestimonyCategory) bool {
	switch c {
	case models.TestimonySeen, models.TestimonyHeard, models.TestimonyExperienced:
		return true
	}
	return false
}

// testimonySlug builds a share-link slug; the id suffix keeps it unique.
func testimonySlug(title, id string) string {
	base := slug.Make(title)
	suffix := strings.SplitN(id, "-", 2)[0]
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

// CreateTestimony stores the testimony, then awards the category's points.
// The award is a follow-up call, not part of the insert: if it fails the
// testimony is kept and PointsAwarded is false.
func (s *TestimonyService) CreateTestimony(ctx context.Context, in TestimonyInput) (*TestimonyResult, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.WitnessProfileID) == "" {
		return nil, invalid("witness profile id is required")
	}
	if !validCategory(in.Category) {
		return nil, invalid("unknown testimony category %q", in.Category)
	}
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return nil, invalid("title and content are required")
	}

	t := models.Testimony{
		ID:               uuid.NewString(),
		WitnessProfileID: strings.TrimSpace(in.WitnessProfileID),
		Category:         in.Category,
		Title:            title,
		Content:          content,
		EnhancedContent:  trimmed(in.EnhancedContent),
	}
	t.Slug = testimonySlug(title, t.ID)

	if err := db.Create(&t).Error; err != nil {
		return nil, opFailed("create testimony", err)
	}

	result := &TestimonyResult{Testimony: &t}
	if s.points == nil {
		return result, nil
	}
	award, err := s.points.AwardPoints(ctx, t.WitnessProfileID, t.Category.ActionType(), t.Title)
	if err != nil {
		s.log.Warn("testimony saved but points award failed",
			zap.String("testimony_id", t.ID),
			zap.String("witness_profile_id", t.WitnessProfileID),
			zap.Error(err))
		return result, nil
	}
	result.PointsAwarded = award.Success
	result.Points = award.Points
	return result, nil
}

func (s *TestimonyService) GetTestimony(ctx context.Context, id string) (*models.Testimony, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	var t models.Testimony
	err = db.Where("id = ? OR slug = ?", id, id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, opFailed("get testimony", err)
	}
	return &t, nil
}

// ListTestimonies returns a witness's testimonies, newest first.
func (s *TestimonyService) ListTestimonies(ctx context.Context, witnessProfileID string) ([]models.Testimony, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	list := []models.Testimony{}
	if err := db.Where("witness_profile_id = ?", witnessProfileID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, opFailed("list testimonies", err)
	}
	return list, nil
}

// UpdateTestimony edits text fields only. Points already awarded stay put.
func (s *TestimonyService) UpdateTestimony(ctx context.Context, id string, patch TestimonyPatch) (*models.Testimony, error) {
	t, err := s.GetTestimony(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, invalid("title cannot be empty")
		}
		updates["title"] = title
	}
	if patch.Content != nil {
		content := strings.TrimSpace(*patch.Content)
		if content == "" {
			return nil, invalid("content cannot be empty")
		}
		updates["content"] = content
	}
	if patch.EnhancedContent != nil {
		updates["enhanced_content"] = trimmed(patch.EnhancedContent)
	}
	if len(updates) == 0 {
		return t, nil
	}

	db, _ := s.db(ctx)
	if err := db.Model(t).Updates(updates).Error; err != nil {
		return nil, opFailed("update testimony", err)
	}
	return s.GetTestimony(ctx, t.ID)
}

// DeleteTestimony soft-deletes the testimony. The ledger is untouched.
func (s *TestimonyService) DeleteTestimony(ctx context.Context, id string) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&models.Testimony{})
	if res.Error != nil {
		return opFailed("delete testimony", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
