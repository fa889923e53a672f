package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/photo-people/internal/config"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the photo-people HTTP API.
Every /api/v1 route except /health requires a bearer JWT signed with
WEB_JWT_SECRET; its subject is the owner the request acts for.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies the --host and --port overrides.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

// saveHNSWIndex saves the asset HNSW index to disk during shutdown.
func saveHNSWIndex() {
	rebuilder := database.GetAssetHNSWRebuilder()
	if rebuilder == nil || !rebuilder.IsHNSWEnabled() {
		return
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		fmt.Printf("Warning: failed to save asset HNSW index: %v\n", err)
	} else {
		fmt.Println("Asset HNSW index saved to disk")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	if cfg.Web.JWTSecret == "" {
		return errors.New("WEB_JWT_SECRET environment variable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cmd, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	people, err := newIdentityService(cfg, store)
	if err != nil {
		return err
	}
	server := web.NewServer(cfg, people, newExecutor(ctx, cfg, store))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveHNSWIndex()

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting photo-people API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
