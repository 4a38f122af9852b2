package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
)

func newStatusCommand(rt *runtime) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Submit a status change for a shipment",
		Long: `Submit a status change for a shipment.

Accepted statuses: PickedUp, InTransit, Delivered, Alert, their French
labels, or the contract codes 0 to 3.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseStatus(args[1])
			if err != nil {
				return domain.ErrInvalidStatus.WithCause(err)
			}

			ctx := cmd.Context()
			a, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if _, err := a.Tracker.Connect(ctx); err != nil {
				return err
			}
			receipt, err := a.Tracker.UpdateStatus(ctx, args[0], status)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, receipt)
			}
			fmt.Fprintln(out, headingStyle.Render("Status update submitted"))
			row(out, "Shipment:", args[0])
			row(out, "Status:", status.Label())
			row(out, "Tx hash:", receipt.TxHash)
			row(out, "Submitted:", when(receipt.SubmittedAt))
			fmt.Fprintln(out, dimStyle.Render("  Reads may lag until the transaction is mined."))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}
