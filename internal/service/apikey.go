package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/repository"
)

// lastUsedTimeout bounds the background last_used_at update.
const lastUsedTimeout = 5 * time.Second

// APIKeyStore is the persistence APIKeyService needs.
type APIKeyStore interface {
	GetProject(ctx context.Context, teamID, id string) (*model.Project, error)
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	ListAPIKeysByTeam(ctx context.Context, teamID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, teamID, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// AuthCache caches verified key principals.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
	InvalidateKey(ctx context.Context, keyID string) error
}

// APIKeyService issues, lists, revokes and verifies API keys.
type APIKeyService struct {
	store  APIKeyStore
	cache  AuthCache
	logger *slog.Logger
}

// NewAPIKeyService creates an APIKeyService. cache may be nil.
func NewAPIKeyService(store APIKeyStore, cache AuthCache, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{
		store:  store,
		cache:  cache,
		logger: logger.With("component", "service.apikey"),
	}
}

// CreateAPIKeyInput is a key creation request.
type CreateAPIKeyInput struct {
	ProjectID string
	Name      string
	Scopes    []string
}

// List returns every key of the team's projects, without secrets.
func (s *APIKeyService) List(ctx context.Context, teamID string) ([]*model.APIKey, error) {
	if teamID == "" {
		return nil, ErrNoTeam
	}
	return s.store.ListAPIKeysByTeam(ctx, teamID)
}

// Create issues a key for a project. Only admins and owners may do this.
// The plaintext key is returned once and never stored.
func (s *APIKeyService) Create(ctx context.Context, ac *model.AuthContext, in CreateAPIKeyInput) (*model.APIKeyCreateResponse, error) {
	if ac.TeamID == "" {
		return nil, ErrNoTeam
	}
	if ac.Kind != model.PrincipalUser || !ac.Role.AtLeast(model.RoleAdmin) {
		return nil, ErrForbidden
	}

	name := strings.TrimSpace(in.Name)
	if len(name) < 2 {
		return nil, invalid("name", "must be at least 2 characters")
	}
	scopes, err := normalizeScopes(in.Scopes)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetProject(ctx, ac.TeamID, in.ProjectID); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, fmt.Errorf("%w: project belongs to another team", ErrForbidden)
		}
		return nil, err
	}

	generated, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	key := &model.APIKey{
		ID:        ulid.Make().String(),
		ProjectID: in.ProjectID,
		TeamID:    ac.TeamID,
		CreatedBy: ac.UserID,
		Name:      name,
		KeyPrefix: generated.Prefix,
		KeyHash:   generated.Hash,
		Scopes:    scopes,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	s.logger.Info("api key created",
		"key_id", key.ID,
		"key_prefix", key.KeyPrefix,
		"project_id", key.ProjectID,
		"team_id", ac.TeamID,
	)

	return &model.APIKeyCreateResponse{
		ID:        key.ID,
		ProjectID: key.ProjectID,
		Name:      key.Name,
		Prefix:    key.KeyPrefix,
		Scopes:    key.Scopes,
		Key:       generated.Plaintext,
		CreatedAt: key.CreatedAt,
	}, nil
}

// Revoke disables a key of the team and drops its cached principal.
func (s *APIKeyService) Revoke(ctx context.Context, ac *model.AuthContext, id string) error {
	if ac.TeamID == "" {
		return ErrNoTeam
	}
	if ac.Kind != model.PrincipalUser || !ac.Role.AtLeast(model.RoleAdmin) {
		return ErrForbidden
	}

	if err := s.store.RevokeAPIKey(ctx, ac.TeamID, id); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return ErrNotFound
		}
		return err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateKey(ctx, id); err != nil {
			s.logger.Warn("failed to invalidate cached key", "key_id", id, "error", err)
		}
	}
	s.logger.Info("api key revoked", "key_id", id, "team_id", ac.TeamID)
	return nil
}

// Authenticate verifies a plaintext key and returns its principal.
// Unknown, malformed and revoked keys all return ErrUnauthenticated.
func (s *APIKeyService) Authenticate(ctx context.Context, plaintext string) (*model.AuthContext, error) {
	parsed, err := auth.ParseAPIKey(plaintext)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	cacheKey := auth.KeyCacheID(plaintext)
	if s.cache != nil {
		if cached, err := s.cache.GetAuthContext(ctx, cacheKey); err != nil {
			s.logger.Warn("auth cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	candidates, err := s.store.GetAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	// Several keys can share a prefix; verify each.
	var matched *model.APIKey
	for _, k := range candidates {
		if k.IsRevoked() {
			continue
		}
		ok, err := auth.VerifyKey(plaintext, k.KeyHash)
		if err != nil {
			s.logger.Warn("stored key hash unreadable", "key_id", k.ID, "error", err)
			continue
		}
		if ok {
			matched = k
			break
		}
	}
	if matched == nil {
		return nil, ErrUnauthenticated
	}

	ac := &model.AuthContext{
		Kind:      model.PrincipalAPIKey,
		UserID:    matched.CreatedBy,
		TeamID:    matched.TeamID,
		KeyID:     matched.ID,
		KeyPrefix: matched.KeyPrefix,
		ProjectID: matched.ProjectID,
		Scopes:    matched.Scopes,
	}

	if s.cache != nil {
		if err := s.cache.SetAuthContext(ctx, cacheKey, ac); err != nil {
			s.logger.Warn("auth cache write failed", "key_id", matched.ID, "error", err)
		}
	}

	go func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), lastUsedTimeout)
		defer cancel()
		if err := s.store.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			s.logger.Warn("failed to update key last used", "key_id", id, "error", err)
		}
	}(matched.ID)

	return ac, nil
}

func normalizeScopes(scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return slices.Clone(model.DefaultKeyScopes), nil
	}
	out := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		if !slices.Contains(model.ValidScopes, sc) {
			return nil, invalid("scopes", fmt.Sprintf("unknown scope %q", sc))
		}
		if !slices.Contains(out, sc) {
			out = append(out, sc)
		}
	}
	return out, nil
}
