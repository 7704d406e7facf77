package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TestimonyCategory is how the witness came to the testimony.
type TestimonyCategory string

const (
	TestimonySeen        TestimonyCategory = "seen"
	TestimonyHeard       TestimonyCategory = "heard"
	TestimonyExperienced TestimonyCategory = "experienced"
)

// ActionType returns the ledger action awarded when a testimony of this
// category is recorded.
func (c TestimonyCategory) ActionType() ActionType {
	return ActionType("testimony_" + string(c))
}

type Testimony struct {
	ID               string            `gorm:"primaryKey;size:36" json:"id"`
	WitnessProfileID string            `gorm:"size:64;not null;index" json:"witness_profile_id"`
	Category         TestimonyCategory `gorm:"size:32;not null" json:"category"`
	Title            string            `gorm:"not null" json:"title"`
	Content          string            `gorm:"type:text;not null" json:"content"`
	EnhancedContent  *string           `gorm:"type:text" json:"enhanced_content,omitempty"`
	Slug             string            `gorm:"size:191;uniqueIndex" json:"slug"`

	Timestamps
}

func (t *Testimony) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
