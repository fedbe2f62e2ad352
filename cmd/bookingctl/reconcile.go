package main

import (
	"fmt"

	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/services"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Expire PENDING bookings older than the pending TTL, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = e.cfg.Booking.PendingTTL
			}

			reconciler := services.NewBookingReconciliationService(
				database.NewBookingRepository(e.db.DB),
				e.audits,
				ttl,
				e.cfg.Booking.ReconcileInterval,
				e.logger,
			)
			expired := reconciler.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d booking(s)\n", expired)
			return nil
		},
	}

	cmd.Flags().Duration("ttl", 0, "Override BOOKING_PENDING_TTL")
	return cmd
}
