package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-people/internal/config"
	"github.com/kozaktomas/photo-people/internal/constants"
	"github.com/kozaktomas/photo-people/internal/database/mariadb"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import people, photos and faces from PhotoPrism",
	Long: `Import people, photos and face markers from the PhotoPrism MariaDB
database (PHOTOPRISM_DATABASE_URL) into the PostgreSQL store.

Import is additive: people and face assignments changed locally are kept,
photo metadata is refreshed and computed embeddings are preserved.

Example:
  photo-people import --owner u1
  photo-people import --owner u1 --batch-size 500 --concurrency 8 --json`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("owner", "", "Owner (account) id the data is imported for")
	importCmd.Flags().Int("batch-size", constants.ImportBatchSize, "Photos per transaction")
	importCmd.Flags().Int("concurrency", constants.ImportConcurrency, "Batches imported in parallel")
	importCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

type importOutput struct {
	Success       bool   `json:"success"`
	People        int    `json:"people"`
	Assets        int    `json:"assets"`
	Faces         int    `json:"faces"`
	DurationMs    int64  `json:"duration_ms"`
	DurationHuman string `json:"duration_human,omitempty"`
}

func runImport(cmd *cobra.Command, args []string) error {
	owner, err := requireOwner(cmd)
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "memory") {
		return errors.New("import writes to PostgreSQL; --memory is not supported")
	}
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	if cfg.PhotoPrism.DatabaseURL == "" {
		return errors.New("PHOTOPRISM_DATABASE_URL environment variable is required")
	}
	ctx := context.Background()

	source, err := mariadb.NewPool(cfg.PhotoPrism.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PhotoPrism database: %w", err)
	}
	defer source.Close()

	store, err := openStore(ctx, cmd, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	total, err := source.CountPhotos(ctx)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	opts := mariadb.ImportOptions{
		BatchSize:    mustGetInt(cmd, "batch-size"),
		Concurrency:  mustGetInt(cmd, "concurrency"),
		EmbeddingDim: cfg.Embedding.Dim,
	}
	if !jsonOutput {
		fmt.Printf("Importing %d photos for owner %s\n", total, owner)
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Importing"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		opts.Progress = func(n int) { _ = bar.Add(n) }
	}

	start := time.Now()
	stats, err := mariadb.NewImporter(source, store, opts).Run(ctx, owner)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	elapsed := time.Since(start)

	if jsonOutput {
		return outputJSON(importOutput{
			Success:       true,
			People:        stats.People,
			Assets:        stats.Assets,
			Faces:         stats.Faces,
			DurationMs:    elapsed.Milliseconds(),
			DurationHuman: elapsed.Round(time.Millisecond).String(),
		})
	}

	fmt.Printf("Imported %d assets and %d faces, created %d people in %s\n",
		stats.Assets, stats.Faces, stats.People, elapsed.Round(time.Millisecond))
	if cfg.Database.HNSWEmbeddingIndexPath != "" {
		fmt.Println("The persisted HNSW index is rebuilt on the next start if embeddings changed")
	}
	return nil
}
