package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/service"
)

func newShipmentsCommand(rt *runtime) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "shipments [id]",
		Short: "List the account's shipments, or show one with its timeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				s, err := a.Tracker.Shipment(ctx, domain.ShipmentID(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, service.NewShipmentView(s))
				}
				printShipment(out, s)
				return nil
			}

			if _, err := a.Tracker.Connect(ctx); err != nil {
				return err
			}
			list, err := refresh(ctx, a.Tracker)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, service.NewShipmentViews(list))
			}
			printShipmentList(out, list)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}
