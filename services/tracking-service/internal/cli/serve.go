package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newServeCommand(rt *runtime) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				rt.cfg.HTTP.Addr = addr
			}

			a, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			api := a.HTTPServer()
			go api.RunPruner(ctx, time.Minute)

			lis, err := net.Listen("tcp", rt.cfg.HTTP.Addr)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Serve(lis)
			}()
			rt.logger.WithField("addr", lis.Addr().String()).Info("Tracking service listening")

			s := a.Tracker.Start(ctx, rt.cfg.Session.AutoConnect)
			rt.logger.WithField("state", s.State.String()).Info("Session initialised")

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			rt.logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}
