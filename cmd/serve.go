package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/database"
	"github.com/kozaktomas/photo-variants/internal/textgen"
	"github.com/kozaktomas/photo-variants/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Photo Variants web server.
The server accepts variant jobs over HTTP, streams their progress as
server-sent events, stores watermark profiles, and also acts as the packer
and text service for other instances.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// applyServeFlags lets flags override the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)
	logger := newLogger(cfg)
	ctx := context.Background()

	store, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	defer store.Close()
	if cfg.Database.URL != "" {
		fmt.Printf("Using PostgreSQL profile store\n")
	} else {
		fmt.Printf("Using SQLite profile store at %s\n", cfg.Database.SQLitePath)
	}

	text, err := textgen.NewFromConfig(ctx, cfg)
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
		fmt.Printf("Descriptions will be templated from the base description\n")
		text = nil
	}

	server := web.NewServer(cfg, store, text, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Photo Variants on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
