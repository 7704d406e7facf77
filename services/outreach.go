package services

import (
	"context"
	"fmt"
	"strings"

	"go-and-tell/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SoulInput struct {
	WitnessProfileID string
	Name             string
	Contact          string
	Notes            string
}

type SoulResult struct {
	Soul          *models.Soul `json:"soul"`
	PointsAwarded bool         `json:"points_awarded"`
	Points        int64        `json:"points"`
}

// OutreachService records souls won and shares, each worth ledger points.
type OutreachService struct {
	DB     *gorm.DB
	points PointsAwarder
	log    *zap.Logger
}

func NewOutreachService(db *gorm.DB, points PointsAwarder, logger *zap.Logger) *OutreachService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutreachService{DB: db, points: points, log: logger.Named("outreach")}
}

// AddSoul stores the soul and then awards soul_added. When the award fails the
// soul is kept and PointsAwarded is false, as for testimonies.
func (s *OutreachService) AddSoul(ctx context.Context, in SoulInput) (*SoulResult, error) {
	if s == nil || s.DB == nil || s.points == nil {
		return nil, ErrNotConfigured
	}
	profileID := strings.TrimSpace(in.WitnessProfileID)
	name := strings.TrimSpace(in.Name)
	if profileID == "" || name == "" {
		return nil, invalid("witness profile id and name are required")
	}

	soul := models.Soul{
		WitnessProfileID: profileID,
		Name:             name,
		Contact:          strings.TrimSpace(in.Contact),
		Notes:            strings.TrimSpace(in.Notes),
	}
	if err := s.DB.WithContext(ctx).Create(&soul).Error; err != nil {
		return nil, opFailed("add soul", err)
	}

	result := &SoulResult{Soul: &soul}
	award, err := s.points.AwardPoints(ctx, profileID, models.ActionSoulAdded, "Soul added: "+name)
	if err != nil {
		s.log.Warn("soul saved but points award failed",
			zap.String("soul_id", soul.ID),
			zap.String("witness_profile_id", profileID),
			zap.Error(err))
		return result, nil
	}
	result.PointsAwarded = award.Success
	result.Points = award.Points
	return result, nil
}

func (s *OutreachService) ListSouls(ctx context.Context, witnessProfileID string) ([]models.Soul, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotConfigured
	}
	souls := []models.Soul{}
	if err := s.DB.WithContext(ctx).
		Where("witness_profile_id = ?", witnessProfileID).
		Order("created_at DESC").
		Find(&souls).Error; err != nil {
		return nil, opFailed("list souls", err)
	}
	return souls, nil
}

// RecordShare awards share points. testimonyID and channel only feed the
// ledger description.
func (s *OutreachService) RecordShare(ctx context.Context, witnessProfileID, testimonyID, channel string) (AwardResult, error) {
	if s == nil || s.points == nil {
		return AwardResult{}, ErrNotConfigured
	}
	desc := "Shared content"
	if testimonyID != "" {
		desc = fmt.Sprintf("Shared testimony %s", testimonyID)
	}
	if channel != "" {
		desc += " via " + channel
	}
	return s.points.AwardPoints(ctx, witnessProfileID, models.ActionShare, desc)
}
