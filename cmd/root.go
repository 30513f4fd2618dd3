package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

var logFlags struct {
	level  string
	format string
}

var rootCmd = &cobra.Command{
	Use:     "market-intel",
	Short:   "Four-phase market intelligence pipeline",
	Long:    "Profiles a business from its URL or description: identity, external presence, marketing and conversion, competitors, consolidated into one confidence-scored report.",
	Version: version,
	// main prints the error once.
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyLogFlags(cmd, &c.Log)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		zap.L().Debug("config loaded", zap.String("command", cmd.CommandPath()), zap.String("version", version))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logFlags.level, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVar(&logFlags.format, "log-format", "", "log format override (json, console)")
}

// applyLogFlags lets explicit --log-* flags win over config and env.
func applyLogFlags(cmd *cobra.Command, lc *config.LogConfig) {
	if cmd.Flags().Changed("log-level") {
		lc.Level = logFlags.level
	}
	if cmd.Flags().Changed("log-format") {
		lc.Format = logFlags.format
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "market-intel: %v\n", err)
		os.Exit(1)
	}
}
