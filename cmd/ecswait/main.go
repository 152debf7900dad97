package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lattiam/ecswait/internal/awsutil"
	"github.com/lattiam/ecswait/internal/config"
	"github.com/lattiam/ecswait/internal/ecs"
	"github.com/lattiam/ecswait/internal/waiter"
)

// loadStandardConfig creates a new config, loads from environment, and expands paths.
func loadStandardConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, fmt.Errorf("failed to expand paths: %w", err)
	}
	if debugMode {
		cfg.Debug = true
	}
	return cfg, nil
}

var (
	version = "dev"
	commit  = "none"    //nolint:gochecknoglobals // Build-time commit info
	date    = "unknown" //nolint:gochecknoglobals // Build-time date info

	// Global debug flag
	debugMode bool //nolint:gochecknoglobals // CLI global flag

	// newFetcher builds the status fetcher used by wait. Tests replace it.
	newFetcher = func(ctx context.Context, opts awsutil.Options) (waiter.Fetcher, error) { //nolint:gochecknoglobals // test seam
		return ecs.NewFetcherFromOptions(ctx, opts)
	}
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ecswait",
		Short: "Block until an ECS service deployment settles",
		Long: `ecswait polls an ECS service until its deployment completes, fails,
or runs out of time, and exits non-zero unless the deployment completed.

Run it as a pipeline step right after updating a service.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Include configuration details in diagnostics")

	rootCmd.AddCommand(
		newWaitCommand(),
		newResultsCommand(),
		newConfigCommand(),
	)

	return rootCmd
}

func main() {
	config.AppVersion = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
