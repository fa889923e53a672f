package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-people/internal/config"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the asset embedding HNSW index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the asset HNSW index from PostgreSQL",
	Long: `Rebuild the in-memory HNSW index over asset embeddings and save it to
HNSW_EMBEDDING_INDEX_PATH when that is set.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	if mustGetBool(cmd, "memory") {
		return errors.New("the in-memory store has no HNSW index")
	}
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cmd, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	rebuilder := database.GetAssetHNSWRebuilder()
	if rebuilder == nil {
		return errors.New("asset HNSW index is not available")
	}

	start := time.Now()
	if err := rebuilder.RebuildHNSW(ctx); err != nil {
		return fmt.Errorf("rebuild asset HNSW index: %w", err)
	}
	fmt.Printf("Asset HNSW index rebuilt with %d embeddings in %s\n",
		rebuilder.HNSWCount(), time.Since(start).Round(time.Millisecond))

	if cfg.Database.HNSWEmbeddingIndexPath != "" {
		if err := rebuilder.SaveHNSWIndex(); err != nil {
			return fmt.Errorf("save asset HNSW index: %w", err)
		}
		fmt.Printf("Saved to %s\n", cfg.Database.HNSWEmbeddingIndexPath)
	}
	return nil
}
