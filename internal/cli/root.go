// Package cli implements the docqa command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/logging"
)

var (
	cfgFile       string
	currentConfig *config.AppConfig
	configPath    string
	logger        *slog.Logger

	// vp resolves DOCQA_* environment variables and bound flags.
	vp = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:           "docqa",
	Short:         "docqa answers questions about your documents with cited sources",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		cfg, path, err := loadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyOverrides(cfg, vp); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		l, err := logging.Init(logging.Options{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
		})
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		currentConfig, configPath, logger = cfg, path, l
		logger.Debug("config loaded", "path", path, "embedder", cfg.Embedder.Type, "store", cfg.VectorStore.Type)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	_ = logging.Close()
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml or ~/.config/docqa/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")

	_ = vp.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = vp.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func loadConfig(path string) (*config.AppConfig, string, error) {
	if path == "" {
		return config.LoadDefault()
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}
