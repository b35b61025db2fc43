package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"graphscape/infrastructure/config"
	"graphscape/infrastructure/di"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigDir   string
	Environment string
	Target      string
	Verbose     bool
	Format      string
	Timeout     time.Duration
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the graphscape CLI
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "graphscape",
		Short: "Graph orchestration core",
		Long: `graphscape talks to a structuring backend over gRPC, folds the streamed
graph fragments into a live graph and mirrors it to browser renderers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config", "", "configuration directory (default $GRAPHSCAPE_CONFIG_DIR or ./config)")
	cmd.PersistentFlags().StringVar(&opts.Environment, "env", "", "environment (default $GRAPHSCAPE_ENVIRONMENT or development)")
	cmd.PersistentFlags().StringVar(&opts.Target, "target", "", "backend address, overrides backend.target")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "deadline for one-shot commands")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewStructureCommand(opts))
	cmd.AddCommand(NewSuggestCommand(opts))

	return cmd
}

// loader resolves the config loader from flags, falling back to the environment
func (o *RootOptions) loader() *config.Loader {
	fromEnv := config.NewLoaderFromEnv()
	dir, env := fromEnv.Dir(), fromEnv.Environment()
	if o.ConfigDir != "" {
		dir = o.ConfigDir
	}
	if o.Environment != "" {
		env = config.Environment(o.Environment)
	}
	return config.NewLoader(dir, env)
}

// loadConfig loads configuration and applies flag overrides
func (o *RootOptions) loadConfig() (*config.Config, *config.Loader, error) {
	loader := o.loader()
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.Target != "" {
		cfg.Backend.Target = o.Target
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, loader, nil
}

// run builds a container, connects to the backend and hands both to fn.
// The container is closed when fn returns.
func (o *RootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, c *di.Container) error) error {
	cfg, loader, err := o.loadConfig()
	if err != nil {
		return err
	}

	container, err := di.InitializeContainer(cfg, loader)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	container.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = container.Close(closeCtx)
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	if err := container.Session.Connect(ctx); err != nil {
		return fmt.Errorf("backend %s unavailable: %w", cfg.Backend.Target, err)
	}
	return fn(ctx, container)
}

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
