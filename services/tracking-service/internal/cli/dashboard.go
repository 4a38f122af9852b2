package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

func newDashboardCommand(rt *runtime) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show shipment counters for the connected account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if _, err := a.Tracker.Connect(ctx); err != nil {
				return err
			}
			list, err := refresh(ctx, a.Tracker)
			if err != nil {
				return err
			}
			stats := domain.ComputeStats(list)

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, stats)
			}
			printStats(out, stats)
			for _, s := range list {
				if s.NeedsAlert() {
					fmt.Fprintf(out, "  %s %s\n", alertStyle.Render("!"), s.ID)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}
