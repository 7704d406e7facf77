package services

import (
	"context"
	"errors"
	"strings"

	"go-and-tell/models"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// ProfileInput carries the fields a witness fills in at onboarding.
type ProfileInput struct {
	Name     string
	Contact  string
	Role     string
	PhotoURI *string
	Country  *string
	District *string
	Assembly *string
}

// ProfilePatch is a partial update; nil fields are left untouched.
type ProfilePatch struct {
	Name     *string
	Contact  *string
	Role     *string
	PhotoURI *string
	Country  *string
	District *string
	Assembly *string
}

type ProfileService struct {
	DB  *gorm.DB
	log *zap.Logger
}

func NewProfileService(db *gorm.DB, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{DB: db, log: logger.Named("profiles")}
}

func (s *ProfileService) db(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotConfigured
	}
	return s.DB.WithContext(ctx), nil
}

// Casers are stateful, so one is built per call.
func normalizeRole(role string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(role))
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func (s *ProfileService) CreateProfile(ctx context.Context, in ProfileInput) (*models.WitnessProfile, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}

	profile := models.WitnessProfile{
		Name:     name,
		Contact:  strings.TrimSpace(in.Contact),
		Role:     normalizeRole(in.Role),
		PhotoURI: trimmed(in.PhotoURI),
		Country:  trimmed(in.Country),
		District: trimmed(in.District),
		Assembly: trimmed(in.Assembly),
	}
	if err := db.Create(&profile).Error; err != nil {
		return nil, opFailed("create profile", err)
	}
	s.log.Info("profile created", zap.String("id", profile.ID))
	return &profile, nil
}

func (s *ProfileService) GetProfile(ctx context.Context, id string) (*models.WitnessProfile, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	var profile models.WitnessProfile
	err = db.Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, opFailed("get profile", err)
	}
	return &profile, nil
}

// ProfileExists is a soft check; the points ledger never calls it.
func (s *ProfileService) ProfileExists(ctx context.Context, id string) (bool, error) {
	db, err := s.db(ctx)
	if err != nil {
		return false, err
	}
	var n int64
	if err := db.Model(&models.WitnessProfile{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, opFailed("check profile", err)
	}
	return n > 0, nil
}

func (s *ProfileService) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (*models.WitnessProfile, error) {
	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, invalid("name cannot be empty")
		}
		updates["name"] = name
	}
	if patch.Contact != nil {
		updates["contact"] = strings.TrimSpace(*patch.Contact)
	}
	if patch.Role != nil {
		updates["role"] = normalizeRole(*patch.Role)
	}
	if patch.PhotoURI != nil {
		updates["photo_uri"] = trimmed(patch.PhotoURI)
	}
	if patch.Country != nil {
		updates["country"] = trimmed(patch.Country)
	}
	if patch.District != nil {
		updates["district"] = trimmed(patch.District)
	}
	if patch.Assembly != nil {
		updates["assembly"] = trimmed(patch.Assembly)
	}
	if len(updates) == 0 {
		return profile, nil
	}

	db, _ := s.db(ctx)
	if err := db.Model(profile).Updates(updates).Error; err != nil {
		return nil, opFailed("update profile", err)
	}
	return s.GetProfile(ctx, id)
}

// SetPhoto stores the reference returned by the photo uploader.
func (s *ProfileService) SetPhoto(ctx context.Context, id, photoURI string) (*models.WitnessProfile, error) {
	return s.UpdateProfile(ctx, id, ProfilePatch{PhotoURI: &photoURI})
}
