package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-people/internal/config"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/database/memory"
	"github.com/kozaktomas/photo-people/internal/database/postgres"
	"github.com/kozaktomas/photo-people/internal/embedding"
	"github.com/kozaktomas/photo-people/internal/identity"
	"github.com/kozaktomas/photo-people/internal/search"
	"github.com/spf13/cobra"
)

// openStore opens the backend selected by --memory / DATABASE_URL and
// registers it. withIndex builds the asset HNSW index on PostgreSQL.
func openStore(ctx context.Context, cmd *cobra.Command, cfg *config.Config, withIndex bool) (database.Store, error) {
	if mustGetBool(cmd, "memory") {
		store := memory.New()
		if fixture := mustGetString(cmd, "fixture"); fixture != "" {
			if err := store.LoadFile(ctx, fixture); err != nil {
				return nil, err
			}
			people, faces, assets := store.Counts()
			fmt.Printf("Loaded fixture %s: %d people, %d faces, %d assets\n", fixture, people, faces, assets)
		}
		database.RegisterStore(store)
		return store, nil
	}

	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required (or use --memory)")
	}

	pool, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	store := postgres.NewStore(pool, nil)

	if withIndex {
		initAssetHNSW(ctx, store, cfg.Database.HNSWEmbeddingIndexPath)
		database.RegisterAssetHNSWRebuilder(store)
	}
	database.RegisterStore(store)
	return store, nil
}

// initAssetHNSW builds or loads the asset embedding HNSW index for fast similarity search.
func initAssetHNSW(ctx context.Context, store *postgres.Store, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading asset HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for asset embeddings...\n")
	}
	if err := store.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build asset HNSW index: %v\n", err)
		fmt.Printf("CLIP search will use PostgreSQL queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("Asset HNSW index ready with %d embeddings (persisted to %s)\n", store.HNSWCount(), indexPath)
	} else {
		fmt.Printf("Asset HNSW index built with %d embeddings (in-memory only)\n", store.HNSWCount())
	}
}

// newIdentityService creates the people service over store.
func newIdentityService(cfg *config.Config, store database.Store) (*identity.Service, error) {
	svc, err := identity.NewService(store, identity.Options{
		StoreTimeout:   cfg.Store.Timeout,
		StatsCacheSize: cfg.Statistics.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity service: %w", err)
	}
	return svc, nil
}

// newExecutor creates the search executor. A misconfigured embedding provider
// only disables CLIP search.
func newExecutor(ctx context.Context, cfg *config.Config, store database.Store) *search.Executor {
	embedder, err := embedding.New(ctx, cfg.Embedding, cfg.OpenAI, cfg.Gemini)
	if err != nil {
		fmt.Printf("Warning: CLIP search disabled: %v\n", err)
		embedder = nil
	}
	return search.NewExecutor(store, embedder, search.ExecutorOptions{
		StoreTimeout:     cfg.Store.Timeout,
		EmbeddingTimeout: cfg.Embedding.Timeout,
		MaxDistance:      cfg.Search.MaxDistance,
	})
}
