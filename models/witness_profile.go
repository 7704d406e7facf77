package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WitnessProfile is the identity of a participant, created once at onboarding.
type WitnessProfile struct {
	ID       string  `gorm:"primaryKey;size:36" json:"id"`
	Name     string  `gorm:"not null" json:"name"`
	Contact  string  `json:"contact"`
	Role     string  `gorm:"size:64" json:"role"`
	PhotoURI *string `gorm:"type:text" json:"photo_uri,omitempty"`

	// Home church
	Country  *string `json:"country,omitempty"`
	District *string `json:"district,omitempty"`
	Assembly *string `json:"assembly,omitempty"`

	Timestamps
}

func (p *WitnessProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
