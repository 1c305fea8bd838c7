package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tamamhuda/envlink-api-sub000/internal/models"
	"github.com/tamamhuda/envlink-api-sub000/internal/storage"
	"gorm.io/gorm"
)

type UsageRepository struct {
	db *storage.Postgres
}

func NewUsageRepository(db *storage.Postgres) *UsageRepository {
	return &UsageRepository{db: db}
}

// Charge describes one ledger charge event.
type Charge struct {
	UserID   uuid.UUID
	Scope    string
	PlanName string
	Limit    int64
	Window   time.Duration
	Cost     int64
	Action   string
}

// RecordCharge upserts the (user, scope) aggregate and appends a history row
// in one transaction. The aggregate update runs as a single SQL statement,
// so two racing charges serialize on the row instead of losing an update.
func (r *UsageRepository) RecordCharge(ctx context.Context, charge Charge) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		return r.recordCharge(tx.WithContext(ctx), charge)
	})
	if err == gorm.ErrDuplicatedKey || isUniqueViolation(err) {
		// Two first charges raced on row creation; the row exists now, so
		// the merge path will succeed
		err = r.db.Transaction(func(tx *gorm.DB) error {
			return r.recordCharge(tx.WithContext(ctx), charge)
		})
	}
	return err
}

func (r *UsageRepository) recordCharge(tx *gorm.DB, charge Charge) error {
	result := tx.Model(&models.PlanUsage{}).
		Where("user_id = ? AND scope = ?", charge.UserID, charge.Scope).
		Updates(map[string]interface{}{
			"used": gorm.Expr("used + ?", charge.Cost),
			"remaining": gorm.Expr(
				"CASE WHEN ? - (used + ?) > 0 THEN ? - (used + ?) ELSE 0 END",
				charge.Limit, charge.Cost, charge.Limit, charge.Cost),
			"plan_name":   charge.PlanName,
			"quota_limit": charge.Limit,
		})
	if result.Error != nil {
		return result.Error
	}

	var usage models.PlanUsage
	if result.RowsAffected == 0 {
		remaining := charge.Limit - charge.Cost
		if remaining < 0 {
			remaining = 0
		}

		usage = models.PlanUsage{
			UserID:    charge.UserID,
			Scope:     charge.Scope,
			PlanName:  charge.PlanName,
			Limit:     charge.Limit,
			Used:      charge.Cost,
			Remaining: remaining,
			ResetAt:   time.Now().Add(charge.Window),
		}
		if err := tx.Create(&usage).Error; err != nil {
			return err
		}
	} else {
		if err := tx.Where("user_id = ? AND scope = ?", charge.UserID, charge.Scope).
			First(&usage).Error; err != nil {
			return err
		}
	}

	history := models.PlanUsageHistory{
		UsageID: usage.ID,
		Used:    charge.Cost,
		Action:  charge.Action,
	}
	return tx.Create(&history).Error
}

// Retrieves all usage aggregates for a user
func (r *UsageRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PlanUsage, error) {
	var usages []models.PlanUsage
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("scope ASC").
		Find(&usages).Error

	return usages, err
}

// Retrieves one usage aggregate
func (r *UsageRepository) FindByUserScope(ctx context.Context, userID uuid.UUID, scope string) (*models.PlanUsage, error) {
	var usage models.PlanUsage
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ? AND scope = ?", userID, scope).
		First(&usage).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &usage, err
}

// Retrieves history rows for one aggregate, newest first
func (r *UsageRepository) HistoryByUsage(ctx context.Context, usageID uuid.UUID, limit, offset int) ([]models.PlanUsageHistory, error) {
	var history []models.PlanUsageHistory
	err := r.db.DB.WithContext(ctx).
		Where("usage_id = ?", usageID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&history).Error

	return history, err
}

// Counts charge events for a user across all scopes in a time range
func (r *UsageRepository) CountChargesByTimeRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.PlanUsageHistory{}).
		Joins("JOIN plan_usages ON plan_usages.id = plan_usage_histories.usage_id").
		Where("plan_usages.user_id = ? AND plan_usage_histories.created_at BETWEEN ? AND ?", userID, from, to).
		Count(&count).Error

	return count, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
