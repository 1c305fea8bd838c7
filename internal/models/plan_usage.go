package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlanUsage is the persisted aggregate of quota consumption for one
// (user, scope) pair. Exactly one live row exists per pair; it is only
// mutated inside the usage ledger transaction.
type PlanUsage struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_plan_usage_user_scope" json:"user_id"`
	Scope     string    `gorm:"not null;uniqueIndex:idx_plan_usage_user_scope" json:"scope"`
	PlanName  string    `gorm:"not null" json:"plan_name"`
	Limit     int64     `gorm:"column:quota_limit;not null" json:"limit"`
	Used      int64     `gorm:"default:0" json:"used"`
	Remaining int64     `gorm:"default:0" json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *PlanUsage) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// ShouldReset reports whether the aggregate window has elapsed. The charge
// path does not roll the row over automatically; callers interpret stale
// rows themselves (e.g. a reconciliation job).
func (u *PlanUsage) ShouldReset() bool {
	return !u.ResetAt.IsZero() && !time.Now().Before(u.ResetAt)
}

func (PlanUsage) TableName() string {
	return "plan_usages"
}

// PlanUsageHistory is an append-only record of individual charge events.
// Rows are never updated or deleted.
type PlanUsageHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UsageID   uuid.UUID `gorm:"type:uuid;index;not null" json:"usage_id"`
	Used      int64     `gorm:"not null" json:"used"`
	Action    string    `gorm:"not null" json:"action"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (PlanUsageHistory) TableName() string {
	return "plan_usage_histories"
}
