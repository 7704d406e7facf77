package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActionType identifies what a witness did to earn points.
type ActionType string

const (
	ActionTestimonySeen        ActionType = "testimony_seen"
	ActionTestimonyHeard       ActionType = "testimony_heard"
	ActionTestimonyExperienced ActionType = "testimony_experienced"
	ActionSoulAdded            ActionType = "soul_added"
	ActionShare                ActionType = "share"
)

// IsTestimony reports whether the action is one of the testimony_* kinds.
func (a ActionType) IsTestimony() bool {
	return strings.HasPrefix(string(a), "testimony_")
}

// PointTransaction is an append-only ledger entry. Rows are never updated or
// deleted; the summary table is derived from them.
type PointTransaction struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	WitnessProfileID string     `gorm:"size:64;not null;index" json:"witness_profile_id"`
	ActionType       ActionType `gorm:"size:64;not null;index" json:"action_type"`
	Points           int64      `gorm:"not null" json:"points"`
	Description      string     `gorm:"type:text" json:"description"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (t *PointTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
