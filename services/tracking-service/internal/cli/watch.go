package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/service"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/store"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/tui"
)

func newWatchCommand(rt *runtime) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the session and shipments live",
		Long: `Follow the session and shipments live.

On a terminal this opens an interactive dashboard. With --plain, or when
stdout is not a terminal, every change is printed as a line instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			a.Tracker.Start(ctx, true)

			if !plain && term.IsTerminal(os.Stdout.Fd()) {
				return tui.Run(ctx, a.Tracker)
			}
			return watchPlain(ctx, cmd.OutOrStdout(), a.Tracker)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "print changes as lines instead of the dashboard")
	return cmd
}

// watchPlain prints every change until ctx is done. Changes are handed to
// this goroutine so only it writes to w.
func watchPlain(ctx context.Context, w io.Writer, t *service.Tracker) error {
	lines := make(chan string, 64)
	emit := func(line string) {
		select {
		case lines <- line:
		case <-ctx.Done():
		}
	}

	unsubSession := t.SubscribeSession(func(s domain.WalletSession) {
		emit(sessionLine(s))
	})
	defer unsubSession()
	unsubShipments := t.SubscribeShipments(func(c store.Change) {
		emit(shipmentsLine(c))
	})
	defer unsubShipments()

	fmt.Fprintln(w, sessionLine(t.Session()))
	if list := t.Shipments(); len(list) > 0 {
		fmt.Fprintln(w, shipmentsLine(store.Change{
			Account:   t.Session().Account,
			Shipments: list,
			Stats:     domain.ComputeStats(list),
			At:        time.Now(),
		}))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			fmt.Fprintln(w, line)
		}
	}
}

func stamp() string {
	return dimStyle.Render(time.Now().Format("15:04:05"))
}

func sessionLine(s domain.WalletSession) string {
	line := fmt.Sprintf("%s session %s", stamp(), s.State)
	if s.Account != "" {
		line += " " + domain.FormatAddress(s.Account)
	}
	if s.LastError != nil {
		line += " " + errorStyle.Render(s.LastError.Error())
	}
	return line
}

func shipmentsLine(c store.Change) string {
	if c.Cleared {
		return fmt.Sprintf("%s shipments cleared", stamp())
	}
	line := fmt.Sprintf("%s %d shipments, %d alerts:", stamp(), c.Stats.Total, c.Stats.Alerts)
	for _, s := range c.Shipments {
		line += fmt.Sprintf(" %s=%s", s.ID, s.Status)
	}
	return line
}
