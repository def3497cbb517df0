// Package cli implements auralctl: schema migrations and account bootstrap
// against the database, plus job submission and polling through the SDK.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/auralforge/auralforge/internal/platform"
	"github.com/auralforge/auralforge/pkg/sdk"
)

// Environment fallbacks for the API flags.
const (
	EnvServer = "AURALFORGE_SERVER"
	EnvAPIKey = "AURALFORGE_API_KEY"
	EnvTeamID = "AURALFORGE_TEAM_ID"
)

// globals are the persistent flags shared by every subcommand.
type globals struct {
	server string
	apiKey string
	teamID string
	debug  bool
}

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state so tests can run commands side by side.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "auralctl",
		Short: "Operate an AuralForge deployment",
		Long: `auralctl manages an AuralForge deployment.

Database commands (migrate, bootstrap) read DATABASE_URL and the rest of the
server configuration from the environment or a .env file. API commands
(tts, stt, clone, voices, job) talk to a running server with an API key.
webhook-secret prints a fresh callback signing secret.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.server, "server", envOr(EnvServer, sdk.DefaultBaseURL), "AuralForge API base URL")
	root.PersistentFlags().StringVar(&g.apiKey, "api-key", os.Getenv(EnvAPIKey), "API key or session token")
	root.PersistentFlags().StringVar(&g.teamID, "team", os.Getenv(EnvTeamID), "team ID for session tokens")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newMigrateCommand(g),
		newBootstrapCommand(g),
		newTTSCommand(g),
		newSTTCommand(g),
		newCloneCommand(g),
		newVoicesCommand(g),
		newJobCommand(g),
		newSecretCommand(),
		newVersionCommand(),
	)
	return root
}

func (g *globals) logger(cmd *cobra.Command) *slog.Logger {
	return platform.NewCLILogger(cmd.ErrOrStderr(), g.debug)
}

func (g *globals) client() (*sdk.Client, error) {
	if g.apiKey == "" {
		return nil, errors.New("an API key is required: pass --api-key or set " + EnvAPIKey)
	}
	opts := []sdk.Option{sdk.WithBaseURL(g.server), sdk.WithRetries(2)}
	if g.teamID != "" {
		opts = append(opts, sdk.WithTeamID(g.teamID))
	}
	return sdk.New(g.apiKey, opts...), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
