package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/service"
)

type jobServiceMock struct{ mock.Mock }

var _ JobService = (*jobServiceMock)(nil)

func (m *jobServiceMock) SubmitTTS(ctx context.Context, ac *model.AuthContext, in service.TTSInput) (*service.Submission, error) {
	args := m.Called(ctx, ac, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Submission), args.Error(1)
}

func (m *jobServiceMock) SubmitSTT(ctx context.Context, ac *model.AuthContext, in service.STTInput) (*service.Submission, error) {
	args := m.Called(ctx, ac, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Submission), args.Error(1)
}

func (m *jobServiceMock) SubmitClone(ctx context.Context, ac *model.AuthContext, in service.CloneInput) (*service.Submission, error) {
	args := m.Called(ctx, ac, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Submission), args.Error(1)
}

func (m *jobServiceMock) Get(ctx context.Context, teamID, id string) (*model.Job, error) {
	args := m.Called(ctx, teamID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *jobServiceMock) List(ctx context.Context, teamID string, in service.ListJobsInput) (*service.JobPage, error) {
	args := m.Called(ctx, teamID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.JobPage), args.Error(1)
}

func (m *jobServiceMock) Asset(ctx context.Context, teamID, jobID string) (*service.Asset, error) {
	args := m.Called(ctx, teamID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Asset), args.Error(1)
}

func (m *jobServiceMock) ListVoices(ctx context.Context, teamID string) ([]*model.VoiceClone, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.VoiceClone), args.Error(1)
}

type accountServiceMock struct{ mock.Mock }

var _ AccountService = (*accountServiceMock)(nil)

func (m *accountServiceMock) Signup(ctx context.Context, in service.SignupInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *accountServiceMock) Login(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

func (m *accountServiceMock) Me(ctx context.Context, userID string) (*service.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Profile), args.Error(1)
}

func (m *accountServiceMock) Subscription(ctx context.Context, teamID string) (*model.Subscription, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

type apiKeyServiceMock struct{ mock.Mock }

var _ APIKeyService = (*apiKeyServiceMock)(nil)

func (m *apiKeyServiceMock) List(ctx context.Context, teamID string) ([]*model.APIKey, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.APIKey), args.Error(1)
}

func (m *apiKeyServiceMock) Create(ctx context.Context, ac *model.AuthContext, in service.CreateAPIKeyInput) (*model.APIKeyCreateResponse, error) {
	args := m.Called(ctx, ac, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.APIKeyCreateResponse), args.Error(1)
}

func (m *apiKeyServiceMock) Revoke(ctx context.Context, ac *model.AuthContext, id string) error {
	return m.Called(ctx, ac, id).Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var editor = &model.AuthContext{
	Kind:   model.PrincipalUser,
	UserID: "user-1",
	TeamID: "team-1",
	Role:   model.RoleEditor,
	Scopes: model.RoleEditor.Scopes(),
}

// authed attaches a principal and chi URL params to a request.
func authed(r *http.Request, ac *model.AuthContext, params map[string]string) *http.Request {
	ctx := r.Context()
	if ac != nil {
		ctx = auth.ContextWithAuth(ctx, ac)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return r.WithContext(ctx)
}
