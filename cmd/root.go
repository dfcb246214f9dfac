package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-variants",
	Short: "Generate unique photo and description variants for listings",
	Long: `Photo Variants turns a set of listing photos and a base description into
N variants of M photos each. Near-duplicate uploads are dropped, every photo
is slightly and deterministically altered, an optional watermark is applied,
and each variant gets its own rewritten description. The result is packed
into a single zip archive.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// newLogger builds the logger configured by LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format)
}
