package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/jackc/pgx/v5"
)

// ErrSubscriptionNotFound is returned when a team has no subscription row.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// GetSubscription returns the team's billing subscription.
func (r *Repository) GetSubscription(ctx context.Context, teamID string) (*model.Subscription, error) {
	var s model.Subscription
	err := r.pool.QueryRow(ctx, `
		SELECT id, team_id, plan, credits_monthly, created_at
		FROM subscriptions
		WHERE team_id = $1
	`, teamID).Scan(&s.ID, &s.TeamID, &s.Plan, &s.CreditsMonthly, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &s, nil
}
