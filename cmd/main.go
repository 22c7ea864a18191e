package main

import (
	"fmt"
	"io"
	"os"

	"raffle/internal/config"
	"raffle/internal/metrics"
	"raffle/internal/services"
	"raffle/internal/storage"

	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const programName = "raffle"

var configFile string

// commonRun sets up logging and GOMAXPROCS. Servers always log; one-shot
// commands only log when verbose so their stdout stays machine readable.
func commonRun(cfg *config.Config, server bool) *logger.Logger {
	l := logger.Init(programName, server || cfg.Verbose, false, io.Discard)
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Infof)); err != nil {
		logger.Errorf("maxprocs: %v", err)
	}
	return l
}

// openServices opens the configured store and builds the engine on it.
func openServices(cfg *config.Config, reg prometheus.Registerer) (*services.Services, *storage.Store, error) {
	store, err := storage.Open(cfg.Database.Driver, cfg.Database.Dsn)
	if err != nil {
		return nil, nil, err
	}
	sealer, err := services.NewSeedSealer(cfg.SeedSealingKey)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	if sealer == nil {
		logger.Warningf("no seed sealing key configured; commitment seeds are stored in plaintext")
	}
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	return services.New(store, nil, nil, sealer, m), store, nil
}

func mustConfig(cmd *cobra.Command) *config.Config {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		fmt.Fprintln(os.Stderr, "no config found in context")
		os.Exit(1)
	}
	return cfg
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Provably fair raffle draw engine",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().String("actor", "", "operator recorded in the compliance trail")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log to stdout/stderr")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if actor, _ := cmd.Flags().GetString("actor"); actor != "" {
			cfg.Actor = actor
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			cfg.Verbose = true
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(raffleCommand())
	rootCmd.AddCommand(ticketsCommand())
	rootCmd.AddCommand(paymentCommand())
	rootCmd.AddCommand(commitCommand())
	rootCmd.AddCommand(drawCommand())
	rootCmd.AddCommand(verifyCommand())
	rootCmd.AddCommand(reportCommand())
	rootCmd.AddCommand(keygenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
