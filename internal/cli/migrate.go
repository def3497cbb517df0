package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auralforge/auralforge/internal/config"
	"github.com/auralforge/auralforge/internal/migrate"
	"github.com/auralforge/auralforge/internal/platform"
)

func newMigrateCommand(g *globals) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (default DATABASE_URL)")

	run := func(action func(context.Context, *migrate.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			url, err := resolveDatabaseURL(databaseURL)
			if err != nil {
				return err
			}
			m, err := migrate.Open(cmd.Context(), url, g.logger(cmd))
			if err != nil {
				return fmt.Errorf("%s", platform.SanitizeError(err, url))
			}
			defer m.Close()
			return action(cmd.Context(), m)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run(func(ctx context.Context, m *migrate.Migrator) error { return m.Up(ctx) }),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE:  run(func(ctx context.Context, m *migrate.Migrator) error { return m.Down(ctx) }),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied state of each migration",
			Args:  cobra.NoArgs,
			RunE:  run(func(ctx context.Context, m *migrate.Migrator) error { return m.Status(ctx) }),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(ctx context.Context, m *migrate.Migrator) error {
					v, err := m.Version(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), v)
					return nil
				})(cmd, args)
			},
		},
	)
	return cmd
}

// resolveDatabaseURL prefers the flag and falls back to the server config.
func resolveDatabaseURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.DatabaseURL, nil
}
