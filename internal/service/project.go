package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/auralforge/auralforge/internal/model"
)

// ProjectStore is the persistence ProjectService needs.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *model.Project) error
	ListProjects(ctx context.Context, teamID string) ([]*model.Project, error)
}

// ProjectService manages the projects inside a team.
type ProjectService struct {
	store ProjectStore
}

// NewProjectService creates a ProjectService.
func NewProjectService(store ProjectStore) *ProjectService {
	return &ProjectService{store: store}
}

// List returns the team's projects, newest first.
func (s *ProjectService) List(ctx context.Context, teamID string) ([]*model.Project, error) {
	if teamID == "" {
		return nil, ErrNoTeam
	}
	return s.store.ListProjects(ctx, teamID)
}

// Create adds a project to the team.
func (s *ProjectService) Create(ctx context.Context, teamID, name string) (*model.Project, error) {
	if teamID == "" {
		return nil, ErrNoTeam
	}
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return nil, invalid("name", "must be at least 2 characters")
	}

	p := &model.Project{
		ID:        ulid.Make().String(),
		TeamID:    teamID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}
