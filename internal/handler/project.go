package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/handler/dto"
	"github.com/auralforge/auralforge/internal/middleware"
	"github.com/auralforge/auralforge/internal/model"
)

// ProjectService is the project logic behind ProjectHandler.
type ProjectService interface {
	List(ctx context.Context, teamID string) ([]*model.Project, error)
	Create(ctx context.Context, teamID, name string) (*model.Project, error)
}

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	svc    ProjectService
	logger *slog.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(svc ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{svc: svc, logger: logger}
}

// List handles GET /v1/projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.List(r.Context(), auth.TeamIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if projects == nil {
		projects = []*model.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// Create handles POST /v1/projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "name: "+err.Error())
		return
	}

	project, err := h.svc.Create(r.Context(), auth.TeamIDFromContext(r.Context()), req.Name)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("project_created",
		slog.String("project_id", project.ID),
		slog.String("team_id", project.TeamID),
	)
	writeJSON(w, http.StatusCreated, project)
}
