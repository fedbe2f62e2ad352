package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operator tooling for the booking backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(reviewsCmd())
	rootCmd.AddCommand(auditsCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(secretsCmd())

	return rootCmd
}

// env bundles what the database-backed commands need
type env struct {
	cfg    *config.Config
	db     *database.PostgresDB
	audits *services.AuditService
	logger *logrus.Logger
}

func openEnv(out io.Writer) (*env, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.WarnLevel)

	cfg := config.FromEnv()
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, err
	}

	auditRepo := database.NewPaymentAuditRepository(db.DB, logger)
	return &env{
		cfg:    cfg,
		db:     db,
		audits: services.NewAuditService(auditRepo, logger),
		logger: logger,
	}, nil
}

func (e *env) Close() {
	e.db.Close()
}
