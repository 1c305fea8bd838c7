package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tamamhuda/envlink-api-sub000/internal/models"
	"github.com/tamamhuda/envlink-api-sub000/internal/repository"
	"github.com/tamamhuda/envlink-api-sub000/internal/throttle"
)

// UsageService is the usage ledger: the auditable record of quota
// consumption backing billing reconciliation.
type UsageService struct {
	repo *repository.UsageRepository
}

func NewUsageService(repo *repository.UsageRepository) *UsageService {
	return &UsageService{repo: repo}
}

// RecordUsage appends one charge event for (user, scope). Satisfies the
// throttle middleware's UsageRecorder.
func (s *UsageService) RecordUsage(ctx context.Context, userID uuid.UUID, cost int64, action string, policy throttle.Policy) error {
	return s.repo.RecordCharge(ctx, repository.Charge{
		UserID:   userID,
		Scope:    policy.Scope,
		PlanName: policy.Plan,
		Limit:    policy.Limit,
		Window:   policy.Window,
		Cost:     cost,
		Action:   action,
	})
}

// Summary is the caller-facing view of one usage aggregate.
type Summary struct {
	Scope       string    `json:"scope"`
	PlanName    string    `json:"plan_name"`
	Limit       int64     `json:"limit"`
	Used        int64     `json:"used"`
	Remaining   int64     `json:"remaining"`
	ResetAt     time.Time `json:"reset_at"`
	ShouldReset bool      `json:"should_reset"`
}

// GetSummaries returns the usage aggregates for a user across all scopes.
func (s *UsageService) GetSummaries(ctx context.Context, userID uuid.UUID) ([]Summary, error) {
	usages, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(usages))
	for _, u := range usages {
		summaries = append(summaries, Summary{
			Scope:       u.Scope,
			PlanName:    u.PlanName,
			Limit:       u.Limit,
			Used:        u.Used,
			Remaining:   u.Remaining,
			ResetAt:     u.ResetAt,
			ShouldReset: u.ShouldReset(),
		})
	}

	return summaries, nil
}

// GetHistory returns the charge events for one (user, scope) aggregate.
func (s *UsageService) GetHistory(ctx context.Context, userID uuid.UUID, scope string, limit, offset int) ([]models.PlanUsageHistory, error) {
	usage, err := s.repo.FindByUserScope(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	if usage == nil {
		return []models.PlanUsageHistory{}, nil
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.HistoryByUsage(ctx, usage.ID, limit, offset)
}
