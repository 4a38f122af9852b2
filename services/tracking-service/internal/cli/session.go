package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/service"
)

func newSessionCommand(rt *runtime) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Connect to the signing provider and show the wallet session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			// a failed connect still leaves a session worth showing
			s, connectErr := a.Tracker.Connect(ctx)
			v := service.NewSessionView(s)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), v); err != nil {
					return err
				}
			} else {
				printSession(cmd.OutOrStdout(), v)
			}
			return connectErr
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}
