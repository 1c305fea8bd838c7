package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/tamamhuda/envlink-api-sub000/internal/models"
	"github.com/tamamhuda/envlink-api-sub000/internal/repository"
	"github.com/tamamhuda/envlink-api-sub000/internal/storage"
)

var (
	ErrInvalidTargetURL = errors.New("target URL must be absolute http(s)")
	ErrLinkNotFound     = errors.New("link not found")
)

const (
	shortCodeLength = 8
	resolveCacheTTL = 5 * time.Minute
	maxCodeAttempts = 5
)

type LinkService struct {
	repo  *repository.LinkRepository
	redis *storage.RedisClient
}

func NewLinkService(repo *repository.LinkRepository, redis *storage.RedisClient) *LinkService {
	return &LinkService{repo: repo, redis: redis}
}

// Shorten creates a link with a random short code. Collisions retry with a
// fresh code; with 48 bits of entropy they are effectively theoretical.
func (s *LinkService) Shorten(ctx context.Context, target string, ownerID *uuid.UUID) (*models.Link, error) {
	parsed, err := url.Parse(target)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, ErrInvalidTargetURL
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateShortCode()
		if err != nil {
			return nil, err
		}

		link := &models.Link{
			ShortCode: code,
			TargetURL: target,
			OwnerID:   ownerID,
		}

		if err := s.repo.Create(ctx, link); err != nil {
			if attempt < maxCodeAttempts-1 {
				continue
			}
			return nil, fmt.Errorf("failed to create link: %w", err)
		}
		return link, nil
	}

	return nil, errors.New("exhausted short code attempts")
}

// Resolve returns the target URL for a code and records the hit. Lookups go
// through a short-lived Redis cache because redirects dominate traffic.
func (s *LinkService) Resolve(ctx context.Context, code string) (string, error) {
	cacheKey := resolveCacheKey(code)

	if target, err := s.redis.Get(ctx, cacheKey); err == nil && target != "" {
		go s.recordHitByCode(code)
		return target, nil
	}

	link, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if link == nil {
		return "", ErrLinkNotFound
	}

	// Cache failures are not worth failing the redirect
	_ = s.redis.Set(ctx, cacheKey, link.TargetURL, resolveCacheTTL)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.repo.RecordHit(ctx, link.ID)
	}()

	return link.TargetURL, nil
}

func (s *LinkService) recordHitByCode(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	link, err := s.repo.FindByCode(ctx, code)
	if err != nil || link == nil {
		return
	}
	_ = s.repo.RecordHit(ctx, link.ID)
}

func (s *LinkService) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Link, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *LinkService) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	affected, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func generateShortCode() (string, error) {
	codeBytes := make([]byte, 6)
	if _, err := rand.Read(codeBytes); err != nil {
		return "", fmt.Errorf("failed to generate short code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(codeBytes)[:shortCodeLength], nil
}

func resolveCacheKey(code string) string {
	return fmt.Sprintf("link:cache:%s", code)
}
