package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tamamhuda/envlink-api-sub000/internal/models"
	"github.com/tamamhuda/envlink-api-sub000/internal/storage"
	"gorm.io/gorm"
)

type LinkRepository struct {
	db *storage.Postgres
}

func NewLinkRepository(db *storage.Postgres) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) Create(ctx context.Context, link *models.Link) error {
	return r.db.DB.WithContext(ctx).Create(link).Error
}

func (r *LinkRepository) FindByCode(ctx context.Context, code string) (*models.Link, error) {
	var link models.Link
	err := r.db.DB.WithContext(ctx).
		Where("short_code = ?", code).
		First(&link).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &link, err
}

func (r *LinkRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Link, error) {
	var links []models.Link
	err := r.db.DB.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&links).Error

	return links, err
}

// RecordHit bumps the click counter atomically in SQL so concurrent
// redirects never lose counts.
func (r *LinkRepository) RecordHit(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.DB.WithContext(ctx).
		Model(&models.Link{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"click_count": gorm.Expr("click_count + 1"),
			"last_hit_at": &now,
		}).Error
}

func (r *LinkRepository) Delete(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&models.Link{})

	return result.RowsAffected, result.Error
}
