package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
	SubscriptionExpired  = "expired"
)

// Subscription links a user to a paid plan. Plan parameters themselves
// (limit, cost, reset interval) live in configuration, not in the database.
type Subscription struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	PlanName  string    `gorm:"not null" json:"plan_name"`
	Status    string    `gorm:"default:'active';index" json:"status"`
	PeriodEnd time.Time `json:"period_end"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the subscription currently grants its plan.
func (s *Subscription) IsActive() bool {
	if s.Status != SubscriptionActive {
		return false
	}
	return s.PeriodEnd.IsZero() || time.Now().Before(s.PeriodEnd)
}

func (Subscription) TableName() string {
	return "subscriptions"
}
