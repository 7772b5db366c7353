package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"skusync/internal/app"
	"skusync/internal/config"
	"skusync/internal/logger"
	"skusync/internal/retry"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitFatal  = 2
)

// errSyncFailed reports a completed run in which some SKUs failed
var errSyncFailed = errors.New("some SKUs failed to sync")

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "skusync [sku...]",
	Short:         "Download SKU files from object storage",
	Long:          `Resolves each SKU to an object key by trying candidate extensions in order and downloads the matches into a local directory, with bounded concurrency, retry and a deterministic report.`,
	RunE:          runSync,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default .env if present)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return loadEnv()
	}

	config.RegisterFlags(rootCmd.Flags())
	rootCmd.AddCommand(historyCmd)
}

func loadEnv() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	skus := args
	if cfg.Input.File != "" {
		fromFile, err := app.LoadSKUs(cfg.Input)
		if err != nil {
			return err
		}
		skus = append(fromFile, args...)
	}
	if len(skus) == 0 {
		return fmt.Errorf("no SKUs given: pass them as arguments or set --input")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			log.Info("Received shutdown signal, gracefully stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	syncer, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}

	rep, err := syncer.Run(ctx, skus)

	// Close syncer resources after the run completes or is cancelled
	if closeErr := syncer.Close(); closeErr != nil {
		log.Error("Error closing syncer", zap.Error(closeErr))
	}

	if rep != nil {
		fmt.Fprint(cmd.OutOrStdout(), rep.Summary())
	}
	if err != nil {
		return err
	}
	if !rep.Success() {
		return errSyncFailed
	}
	return nil
}

func exitCode(err error) int {
	var fatal *retry.FatalError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &fatal), errors.Is(err, context.Canceled):
		return exitFatal
	default:
		return exitFailed
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errSyncFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
