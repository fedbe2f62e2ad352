package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/adventuretogether/booking-backend/pkg/webhook"
	"github.com/spf13/cobra"
)

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Webhook helpers for local testing",
	}

	sign := &cobra.Command{
		Use:   "sign",
		Short: "Sign an event payload and print the signature header",
		Long: `Sign an event payload with the webhook secret and print the
Stripe-Signature header. With --url the signed payload is posted there.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			secret, _ := cmd.Flags().GetString("secret")
			url, _ := cmd.Flags().GetString("url")

			if secret == "" {
				secret = os.Getenv("STRIPE_WEBHOOK_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or STRIPE_WEBHOOK_SECRET is required")
			}

			payload, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}

			header := webhook.Sign(payload, secret, time.Now())
			if url == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", webhook.SignatureHeader, header)
				return nil
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(webhook.SignatureHeader, header)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to post webhook: %w", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", resp.Status, body)
			return nil
		},
	}
	sign.Flags().StringP("file", "f", "", "Event payload (JSON)")
	sign.Flags().String("secret", "", "Webhook signing secret (default $STRIPE_WEBHOOK_SECRET)")
	sign.Flags().String("url", "", "Post the signed payload to this endpoint")
	_ = sign.MarkFlagRequired("file")

	cmd.AddCommand(sign)
	return cmd
}
