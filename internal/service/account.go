package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/repository"
)

// DefaultTeamName names the personal team created at signup.
const DefaultTeamName = "Personal"

// AccountStore is the persistence AccountService needs.
type AccountStore interface {
	CreateSignup(ctx context.Context, s *repository.Signup) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListMemberships(ctx context.Context, userID string) ([]model.Membership, error)
	GetMembership(ctx context.Context, userID, teamID string) (*model.Membership, error)
	GetSubscription(ctx context.Context, teamID string) (*model.Subscription, error)
}

// AccountService handles signup, login and session principals.
type AccountService struct {
	store  AccountStore
	tokens *auth.TokenIssuer
	logger *slog.Logger
	now    func() time.Time
}

// NewAccountService creates an AccountService.
func NewAccountService(store AccountStore, tokens *auth.TokenIssuer, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		tokens: tokens,
		logger: logger.With("component", "service.account"),
		now:    time.Now,
	}
}

// SignupInput is a new account request.
type SignupInput struct {
	Email    string
	Password string
	Name     string
}

// Signup creates the user with a personal team, free subscription and
// default project, then returns a session token.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (string, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return "", err
	}
	if len(in.Password) < auth.MinPasswordLength {
		return "", invalid("password", fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
	}
	if len(in.Password) > auth.MaxPasswordLength {
		return "", invalid("password", fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordLength))
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = DefaultTeamName
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	userID := ulid.Make().String()
	teamID := ulid.Make().String()
	signup := &repository.Signup{
		User: &model.User{ID: userID, Email: email, PasswordHash: hash, CreatedAt: now},
		Team: &model.Team{ID: teamID, Name: name, CreatedAt: now},
		Subscription: &model.Subscription{
			ID:             ulid.Make().String(),
			TeamID:         teamID,
			Plan:           model.PlanFree,
			CreditsMonthly: model.FreeMonthlyCredits,
			CreatedAt:      now,
		},
		Project: &model.Project{
			ID:        ulid.Make().String(),
			TeamID:    teamID,
			Name:      model.DefaultProjectName,
			CreatedAt: now,
		},
	}

	if err := s.store.CreateSignup(ctx, signup); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return "", ErrEmailExists
		}
		return "", fmt.Errorf("create signup: %w", err)
	}

	s.logger.Info("user signed up", "user_id", userID, "team_id", teamID)
	return s.tokens.Issue(userID, email)
}

// Login checks credentials and returns a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn the same bcrypt time as a real check.
			_, _ = auth.VerifyPassword(password, dummyHash())
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(user.ID, user.Email)
}

// Profile is the signed-in user with their teams.
type Profile struct {
	UserID string             `json:"userId"`
	Email  string             `json:"email"`
	Teams  []model.Membership `json:"teams"`
}

// Me returns the profile of userID.
func (s *AccountService) Me(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	teams, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	if teams == nil {
		teams = []model.Membership{}
	}
	return &Profile{UserID: user.ID, Email: user.Email, Teams: teams}, nil
}

// Authenticate turns a session token into a principal. teamID selects a
// team explicitly; otherwise the user's earliest membership is used. A
// user without any team gets a principal with no TeamID.
func (s *AccountService) Authenticate(ctx context.Context, token, teamID string) (*model.AuthContext, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	ac := &model.AuthContext{Kind: model.PrincipalUser, UserID: claims.Subject}

	membership, err := s.ResolveTeam(ctx, claims.Subject, teamID)
	switch {
	case errors.Is(err, ErrNoTeam):
		return ac, nil
	case err != nil:
		return nil, err
	}

	ac.TeamID = membership.TeamID
	ac.Role = membership.Role
	ac.Scopes = membership.Role.Scopes()
	return ac, nil
}

// ResolveTeam picks the membership a request acts through.
func (s *AccountService) ResolveTeam(ctx context.Context, userID, teamID string) (*model.Membership, error) {
	if teamID != "" {
		m, err := s.store.GetMembership(ctx, userID, teamID)
		if err != nil {
			if errors.Is(err, repository.ErrNotMember) {
				return nil, fmt.Errorf("%w: not a member of team %s", ErrForbidden, teamID)
			}
			return nil, err
		}
		return m, nil
	}

	memberships, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, ErrNoTeam
	}
	return &memberships[0], nil
}

// Subscription returns the team's billing plan.
func (s *AccountService) Subscription(ctx context.Context, teamID string) (*model.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "must be a valid email address")
	}
	return email, nil
}

var (
	dummyOnce sync.Once
	dummy     string
)

func dummyHash() string {
	dummyOnce.Do(func() {
		dummy, _ = auth.HashPassword("not-a-real-password")
	})
	return dummy
}
