package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/config"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/platform"
	"github.com/auralforge/auralforge/internal/repository"
	"github.com/auralforge/auralforge/internal/service"
)

type accountAuthenticator interface {
	Signup(ctx context.Context, in service.SignupInput) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
	Authenticate(ctx context.Context, token, teamID string) (*model.AuthContext, error)
}

type projectLister interface {
	ListProjects(ctx context.Context, teamID string) ([]*model.Project, error)
}

type keyIssuer interface {
	Create(ctx context.Context, ac *model.AuthContext, in service.CreateAPIKeyInput) (*model.APIKeyCreateResponse, error)
}

type bootstrapInput struct {
	Email    string
	Password string
	Name     string
	KeyName  string
}

type bootstrapResult struct {
	UserID    string `json:"userId"`
	TeamID    string `json:"teamId"`
	ProjectID string `json:"projectId"`
	Token     string `json:"token"`
	KeyID     string `json:"keyId"`
	APIKey    string `json:"apiKey"`
	Existing  bool   `json:"existingAccount"`
}

// bootstrap signs up (or logs in, when the email is taken) and issues an
// API key on the team's default project.
func bootstrap(ctx context.Context, accounts accountAuthenticator, projects projectLister, keys keyIssuer, in bootstrapInput) (*bootstrapResult, error) {
	res := &bootstrapResult{}

	token, err := accounts.Signup(ctx, service.SignupInput{Email: in.Email, Password: in.Password, Name: in.Name})
	if errors.Is(err, service.ErrEmailExists) {
		res.Existing = true
		token, err = accounts.Login(ctx, in.Email, in.Password)
	}
	if err != nil {
		return nil, err
	}
	res.Token = token

	ac, err := accounts.Authenticate(ctx, token, "")
	if err != nil {
		return nil, err
	}
	if ac.TeamID == "" {
		return nil, service.ErrNoTeam
	}
	res.UserID = ac.UserID
	res.TeamID = ac.TeamID

	list, err := projects.ListProjects(ctx, ac.TeamID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("team %s has no project", ac.TeamID)
	}
	// Listed newest first; the default project is the oldest.
	res.ProjectID = list[len(list)-1].ID

	created, err := keys.Create(ctx, ac, service.CreateAPIKeyInput{
		ProjectID: res.ProjectID,
		Name:      in.KeyName,
		Scopes:    model.DefaultKeyScopes,
	})
	if err != nil {
		return nil, err
	}
	res.KeyID = created.ID
	res.APIKey = created.Key
	return res, nil
}

func newBootstrapCommand(g *globals) *cobra.Command {
	var in bootstrapInput

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create an account and print a session token and API key",
		Long: `bootstrap creates a user with a personal team and default project, then
issues an API key for that project. An existing account is logged into
instead. The plaintext key is printed once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			logger := g.logger(cmd)
			repo, err := repository.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("%s", platform.SanitizeError(err, cfg.DatabaseURL))
			}
			defer repo.Close()

			accounts := service.NewAccountService(repo, auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL), logger)
			keys := service.NewAPIKeyService(repo, nil, logger)

			res, err := bootstrap(ctx, accounts, repo, keys, in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.Password, "password", "", "account password")
	cmd.Flags().StringVar(&in.Name, "name", "", "team name (default Personal)")
	cmd.Flags().StringVar(&in.KeyName, "key-name", "bootstrap", "name of the issued API key")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
