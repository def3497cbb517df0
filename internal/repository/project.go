package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/jackc/pgx/v5"
)

// ErrProjectNotFound is returned when a project does not exist in the team.
var ErrProjectNotFound = errors.New("project not found")

func insertProject(ctx context.Context, q querier, p *model.Project) error {
	_, err := q.Exec(ctx, `
		INSERT INTO projects (id, team_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, p.ID, p.TeamID, p.Name, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// CreateProject inserts a new project.
func (r *Repository) CreateProject(ctx context.Context, p *model.Project) error {
	return insertProject(ctx, r.pool, p)
}

// GetProject retrieves a project scoped to a team.
func (r *Repository) GetProject(ctx context.Context, teamID, id string) (*model.Project, error) {
	var p model.Project
	err := r.pool.QueryRow(ctx, `
		SELECT id, team_id, name, created_at
		FROM projects
		WHERE id = $1 AND team_id = $2
	`, id, teamID).Scan(&p.ID, &p.TeamID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns a team's projects, newest first.
func (r *Repository) ListProjects(ctx context.Context, teamID string) ([]*model.Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, team_id, name, created_at
		FROM projects
		WHERE team_id = $1
		ORDER BY created_at DESC, id DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*model.Project{}
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.TeamID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}
