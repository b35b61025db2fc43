package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"graphscape/infrastructure/di"
)

// ServeOptions holds flags for the serve command
type ServeOptions struct {
	*RootOptions
	Address string
}

// NewServeCommand creates the serve command
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session and expose it to browser renderers",
		Long: `Run the orchestration session until interrupted.

The read boundary serves /healthz, /api/v1/connection, /api/v1/graph,
/api/v1/graph/assessment, /metrics and the /ws scene stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Address, "addr", "", "listen address, overrides http.address")

	return cmd
}

func serve(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, loader, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Address != "" {
		cfg.HTTP.Address = opts.Address
	}

	// Initialize dependency container
	container, err := di.InitializeContainer(cfg, loader)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	logger := container.Logger
	container.Start()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      container.Router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.HTTP.Address),
			zap.String("backend", cfg.Backend.Target),
			zap.String("environment", string(cfg.Environment)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.Connection.AutoConnect {
		go func() {
			if err := container.Session.Connect(ctx); err != nil {
				logger.Warn("Initial connection failed", zap.Error(err))
			}
		}()
	}
	// Zero follows connection.livenessInterval, including reloads
	go container.Machine.Watch(ctx, 0)

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		logger.Error("Server failed", zap.Error(err))
	}

	// Graceful shutdown
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("Server shutdown error", zap.Error(shutdownErr))
	}
	if closeErr := container.Close(shutdownCtx); closeErr != nil {
		logger.Error("Cleanup error", zap.Error(closeErr))
	}
	return err
}
