package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func reviewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "List open entries on the review queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			reviews, err := e.audits.OpenReviews(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(reviews) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No open reviews")
				return nil
			}
			printAudits(cmd.OutOrStdout(), reviews)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 50, "Maximum entries")

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <audit-id>",
		Short: "Mark a review entry as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid audit id: %w", err)
			}

			e, err := openEnv(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.audits.ResolveReview(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s\n", id)
			return nil
		},
	})

	return cmd
}

func auditsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audits <booking-id>",
		Short: "Print the payment audit trail of a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookingID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid booking id: %w", err)
			}

			e, err := openEnv(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			trail, err := e.audits.BookingTrail(cmd.Context(), bookingID)
			if err != nil {
				return err
			}
			if len(trail) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit entries")
				return nil
			}
			printAudits(cmd.OutOrStdout(), trail)
			return nil
		},
	}
}

func printAudits(out io.Writer, audits []*models.PaymentAudit) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tEVENT\tSOURCE\tBOOKING\tINTENT\tERROR")
	for _, a := range audits {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.CreatedAt.Format(time.RFC3339),
			a.EventType,
			a.EventSource,
			uuidOrDash(a.BookingID),
			stringOrDash(a.PaymentIntentID),
			stringOrDash(a.ErrorMessage),
		)
	}
	w.Flush()
}

func uuidOrDash(id *uuid.UUID) string {
	if id == nil {
		return "-"
	}
	return id.String()
}

func stringOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
