package main

import (
	"fmt"

	"github.com/adventuretogether/booking-backend/internal/utils"
	"github.com/spf13/cobra"
)

func secretsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secrets",
		Short: "Generate JWT and webhook secrets for a new environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			accessSecret, refreshSecret, err := utils.GenerateJWTSecrets()
			if err != nil {
				return fmt.Errorf("failed to generate secrets: %w", err)
			}
			webhookSecret, err := utils.GenerateWebhookSecret()
			if err != nil {
				return fmt.Errorf("failed to generate webhook secret: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Add these to your .env file:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "JWT_SECRET=%s\n", accessSecret)
			fmt.Fprintf(out, "JWT_REFRESH_SECRET=%s\n", refreshSecret)
			fmt.Fprintf(out, "STRIPE_WEBHOOK_SECRET=%s\n", webhookSecret)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Keep these secrets out of version control.")
			return nil
		},
	}
}
