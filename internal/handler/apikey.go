package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/handler/dto"
	"github.com/auralforge/auralforge/internal/middleware"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/service"
)

// APIKeyService is the key management logic behind APIKeyHandler.
type APIKeyService interface {
	List(ctx context.Context, teamID string) ([]*model.APIKey, error)
	Create(ctx context.Context, ac *model.AuthContext, in service.CreateAPIKeyInput) (*model.APIKeyCreateResponse, error)
	Revoke(ctx context.Context, ac *model.AuthContext, id string) error
}

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	svc    APIKeyService
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(svc APIKeyService, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{svc: svc, logger: logger}
}

// Create handles POST /v1/projects/{id}/api-keys.
// The plaintext key appears in this response only.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req dto.CreateAPIKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "name: "+err.Error())
		return
	}

	created, err := h.svc.Create(r.Context(), authCtx, service.CreateAPIKeyInput{
		ProjectID: chi.URLParam(r, "id"),
		Name:      req.Name,
		Scopes:    req.Scopes,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("api_key_created",
		slog.String("key_id", created.ID),
		slog.String("key_prefix", created.Prefix),
		slog.String("project_id", created.ProjectID),
		slog.String("user_id", authCtx.UserID),
	)
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /v1/api-keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.List(r.Context(), auth.TeamIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	responses := make([]model.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse())
	}
	writeJSON(w, http.StatusOK, responses)
}

// Revoke handles DELETE /v1/api-keys/{id}.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	keyID := chi.URLParam(r, "id")
	if err := h.svc.Revoke(r.Context(), authCtx, keyID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("api_key_revoked",
		slog.String("key_id", keyID),
		slog.String("revoked_by", authCtx.UserID),
	)
	w.WriteHeader(http.StatusNoContent)
}
