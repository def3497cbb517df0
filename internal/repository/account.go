package repository

import (
	"context"
	"fmt"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/jackc/pgx/v5"
)

// Signup holds every row created when a new account registers.
type Signup struct {
	User         *model.User
	Team         *model.Team
	Subscription *model.Subscription
	Project      *model.Project
}

// CreateSignup inserts the user, their personal team, the owner membership,
// the free subscription and the default project in one transaction.
func (r *Repository) CreateSignup(ctx context.Context, s *Signup) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertUser(ctx, tx, s.User); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO teams (id, name, created_at) VALUES ($1, $2, $3)
		`, s.Team.ID, s.Team.Name, s.Team.CreatedAt); err != nil {
			return fmt.Errorf("failed to create team: %w", err)
		}

		if err := insertMember(ctx, tx, &model.TeamMember{
			TeamID:    s.Team.ID,
			UserID:    s.User.ID,
			Role:      model.RoleOwner,
			CreatedAt: s.Team.CreatedAt,
		}); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO subscriptions (id, team_id, plan, credits_monthly, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, s.Subscription.ID, s.Subscription.TeamID, s.Subscription.Plan,
			s.Subscription.CreditsMonthly, s.Subscription.CreatedAt); err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}

		return insertProject(ctx, tx, s.Project)
	})
}
