package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "photo-people",
	Short: "People and search service for a photo library",
	Long: `Photo People keeps the people recognised in a photo library: it merges
duplicate identities, moves faces between people, keeps per-person statistics
and answers text, filter and CLIP similarity searches over the assets.

Data comes from PostgreSQL (DATABASE_URL) or, with --memory, from an
in-memory store optionally seeded from a YAML fixture.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("memory", false, "Use the in-memory store instead of PostgreSQL")
	rootCmd.PersistentFlags().String("fixture", "", "YAML fixture loaded into the in-memory store")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
