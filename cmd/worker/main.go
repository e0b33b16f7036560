package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"giftflow/internal/app"
	"giftflow/internal/config"
	"giftflow/internal/logger"
	"giftflow/internal/tracing"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "giftflow-worker",
		Short:   "Runs the auto-gift pipeline stages",
		Version: Version,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(onceCmd())
	rootCmd.AddCommand(jobsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads config, starts tracing and builds the app for the duration of fn.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg.ServiceName+"-worker", cfg.JaegerEndpoint, log)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := app.Build(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(ctx, a)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every stage on the configured interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				a.Logger.WithField("interval", a.Config.JobInterval.String()).Info("worker started")
				a.Runner.Start(ctx)
				return nil
			})
		},
	}
}

func onceCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "once [job]",
		Short: "Run one stage, or every stage when no job is named, and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse("2006-01-02", at)
				if err != nil {
					return fmt.Errorf("--now must be YYYY-MM-DD: %w", err)
				}
				now = parsed
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				if len(args) == 0 {
					a.Runner.RunAll(ctx, now)
					return nil
				}
				result, err := a.Runner.RunNamed(ctx, args[0], now)
				if err != nil {
					return err
				}
				out, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "Evaluate as of this date (YYYY-MM-DD) instead of today")
	return cmd
}

func jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the registered stages in pipeline order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				for _, name := range a.Runner.Jobs() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}
