package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/mindgraph/internal/cli"
	httpAdapter "github.com/aretw0/mindgraph/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves the chat stream, the reflection flow, thread management, checkpoint
events and Prometheus metrics over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cfg, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}
		limits, err := cli.RateLimits(cfg.RateLimit)
		if err != nil {
			return err
		}
		opts := []httpAdapter.Option{
			httpAdapter.WithMetrics(app.Metrics.Handler()),
			httpAdapter.WithBroker(app.Broker),
			httpAdapter.WithLogger(app.Logger),
			httpAdapter.WithRateLimits(limits),
		}
		if anonymous, _ := cmd.Flags().GetBool("anonymous"); anonymous {
			opts = append(opts, httpAdapter.WithAuthenticator(httpAdapter.Anonymous))
		}

		srv := &http.Server{
			Addr:    addr,
			Handler: httpAdapter.NewHandler(app.Engine, opts...),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			app.Logger.Info("Starting mindgraph server", "addr", srv.Addr)
			fmt.Fprintf(cmd.OutOrStdout(), "Starting mindgraph server on %s\n", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			app.Logger.Info("Start shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				app.Logger.Warn("Graceful shutdown did not complete", "timeout", cfg.Server.ShutdownTimeout, "error", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "mindgraph server stopped gracefully")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on (overrides server.addr)")
	serveCmd.Flags().Bool("anonymous", false, "Accept requests without the "+httpAdapter.UserHeader+" header")
}
