package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auralforge/auralforge/internal/webhook"
)

func newSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook-secret",
		Short: "Generate a value for WEBHOOK_SIGNING_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := webhook.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}
