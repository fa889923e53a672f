package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-people/internal/config"
	"github.com/kozaktomas/photo-people/internal/database/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	ctx := context.Background()

	pool, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Schema is up to date (%d migrations applied)\n", len(applied))
	for _, v := range applied {
		fmt.Printf("  %s\n", v)
	}
	return nil
}
