package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserPointsSummary is the denormalized per-profile aggregate of the ledger
// (one row per profile, created lazily on the first award).
type UserPointsSummary struct {
	ID               string `gorm:"primaryKey;size:36" json:"-"`
	WitnessProfileID string `gorm:"size:64;uniqueIndex;not null" json:"witness_profile_id"`

	TotalPoints                 int64 `gorm:"not null;default:0;index" json:"total_points"`
	TestimoniesCount            int64 `gorm:"not null;default:0" json:"testimonies_count"`
	TestimoniesSeenCount        int64 `gorm:"not null;default:0" json:"testimonies_seen_count"`
	TestimoniesHeardCount       int64 `gorm:"not null;default:0" json:"testimonies_heard_count"`
	TestimoniesExperiencedCount int64 `gorm:"not null;default:0" json:"testimonies_experienced_count"`
	SoulsCount                  int64 `gorm:"not null;default:0" json:"souls_count"`
	SharesCount                 int64 `gorm:"not null;default:0" json:"shares_count"`

	CreatedAt time.Time `json:"-" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (s *UserPointsSummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// SameCounters reports whether two summaries hold identical totals and counters.
func (s UserPointsSummary) SameCounters(o UserPointsSummary) bool {
	return s.TotalPoints == o.TotalPoints &&
		s.TestimoniesCount == o.TestimoniesCount &&
		s.TestimoniesSeenCount == o.TestimoniesSeenCount &&
		s.TestimoniesHeardCount == o.TestimoniesHeardCount &&
		s.TestimoniesExperiencedCount == o.TestimoniesExperiencedCount &&
		s.SoulsCount == o.SoulsCount &&
		s.SharesCount == o.SharesCount
}
