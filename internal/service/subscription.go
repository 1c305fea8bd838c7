package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tamamhuda/envlink-api-sub000/internal/repository"
)

// SubscriptionService resolves a caller's active plan. It satisfies the
// throttle resolver's SubscriptionLookup boundary.
type SubscriptionService struct {
	repo *repository.SubscriptionRepository
}

func NewSubscriptionService(repo *repository.SubscriptionRepository) *SubscriptionService {
	return &SubscriptionService{repo: repo}
}

// ActivePlan returns the plan name of the user's active subscription, or
// ok=false when the caller is on the baseline plan.
func (s *SubscriptionService) ActivePlan(ctx context.Context, userID string) (string, bool, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", false, fmt.Errorf("invalid user id: %w", err)
	}

	sub, err := s.repo.FindActiveByUser(ctx, id)
	if err != nil {
		return "", false, err
	}
	if sub == nil || !sub.IsActive() {
		return "", false, nil
	}

	return sub.PlanName, true, nil
}
