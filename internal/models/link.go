package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Link struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ShortCode  string     `gorm:"uniqueIndex;not null" json:"short_code"`
	TargetURL  string     `gorm:"not null" json:"target_url"`
	OwnerID    *uuid.UUID `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	ClickCount int64      `gorm:"default:0" json:"click_count"`
	CreatedAt  time.Time  `json:"created_at"`
	LastHitAt  *time.Time `json:"last_hit_at,omitempty"`
}

func (l *Link) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (Link) TableName() string {
	return "links"
}
