package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"laughtrackr/internal/devserver"
)

func newDevServerCommand(ctx *commandContext) *cobra.Command {
	var (
		addr      string
		dir       string
		stepDelay time.Duration
		every     float64
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local stand-in for the analysis API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := devserver.New(devserver.Options{
				Dir:       dir,
				StepDelay: stepDelay,
				Detector:  devserver.CadenceDetector{EverySec: every},
				Logger:    ctx.logger,
			})
			defer srv.Close()

			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			httpServer := &http.Server{
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- httpServer.Serve(listener) }()
			ctx.logger.Info("dev analysis server listening", "addr", listener.Addr().String())
			fmt.Fprintf(cmd.OutOrStdout(), "export LAUGHTRACKR_API_BASE=http://%s\n", listener.Addr().String())

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	cmd.Flags().StringVar(&dir, "dir", "", "Keep uploads in this directory (default: discard after counting)")
	cmd.Flags().DurationVar(&stepDelay, "step-delay", devserver.DefaultStepDelay, "Delay between simulated analysis steps")
	cmd.Flags().Float64Var(&every, "every", 45, "Seconds between fabricated laughter segments")
	return cmd
}
