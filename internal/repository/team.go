package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/jackc/pgx/v5"
)

// ErrNotMember is returned when a user does not belong to a team.
var ErrNotMember = errors.New("user is not a member of team")

func insertMember(ctx context.Context, q querier, m *model.TeamMember) error {
	_, err := q.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
	`, m.TeamID, m.UserID, m.Role, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}
	return nil
}

// ListMemberships returns the teams a user belongs to, oldest first.
func (r *Repository) ListMemberships(ctx context.Context, userID string) ([]model.Membership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.name, m.role, m.created_at
		FROM team_members m
		JOIN teams t ON t.id = m.team_id
		WHERE m.user_id = $1
		ORDER BY m.created_at ASC, t.id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.TeamID, &m.TeamName, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return out, nil
}

// GetMembership returns the user's membership in a specific team.
func (r *Repository) GetMembership(ctx context.Context, userID, teamID string) (*model.Membership, error) {
	var m model.Membership
	err := r.pool.QueryRow(ctx, `
		SELECT t.id, t.name, m.role, m.created_at
		FROM team_members m
		JOIN teams t ON t.id = m.team_id
		WHERE m.user_id = $1 AND m.team_id = $2
	`, userID, teamID).Scan(&m.TeamID, &m.TeamName, &m.Role, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}
