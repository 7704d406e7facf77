package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Soul is a person a witness reports having won.
type Soul struct {
	ID               string `gorm:"primaryKey;size:36" json:"id"`
	WitnessProfileID string `gorm:"size:64;not null;index" json:"witness_profile_id"`
	Name             string `gorm:"not null" json:"name"`
	Contact          string `json:"contact"`
	Notes            string `gorm:"type:text" json:"notes"`

	Timestamps
}

func (s *Soul) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
