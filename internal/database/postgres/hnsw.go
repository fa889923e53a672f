package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/lib/pq"
)

// syncChunk is the number of changed assets fetched per query during a sync.
const syncChunk = 500

// indexStamp summarizes the embedded assets currently committed, in any process.
func (s *Store) indexStamp(ctx context.Context) (database.IndexStamp, error) {
	var st database.IndexStamp
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*), COALESCE(SUM(revision), 0)::bigint FROM assets WHERE embedding IS NOT NULL",
	).Scan(&st.Count, &st.RevisionSum)
	if err != nil {
		return st, fmt.Errorf("failed to read asset index stamp: %w", err)
	}
	return st, nil
}

// embeddedRevisions lists the revision of every asset that has an embedding.
func (s *Store) embeddedRevisions(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, revision FROM assets WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query asset revisions: %w", err)
	}
	defer rows.Close()

	revs := make(map[string]int64)
	for rows.Next() {
		var id string
		var rev int64
		if err := rows.Scan(&id, &rev); err != nil {
			return nil, fmt.Errorf("scan asset revision: %w", err)
		}
		revs[id] = rev
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset revisions: %w", err)
	}
	return revs, nil
}

func (s *Store) assetsByID(ctx context.Context, ids []string) ([]database.Asset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assetColumns+` FROM assets a WHERE a.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query changed assets: %w", err)
	}
	defer rows.Close()
	return scanAssets(rows)
}

// syncIndex brings idx up to date with assets committed by other processes.
// It is a single aggregate query when nothing changed.
func (s *Store) syncIndex(ctx context.Context, idx *database.AssetIndex) error {
	stamp, err := s.indexStamp(ctx)
	if err != nil {
		return err
	}
	if idx.Stamp() == stamp {
		return nil
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	revs, err := s.embeddedRevisions(ctx)
	if err != nil {
		return err
	}
	known := idx.Revisions()

	var changed []string
	for id, rev := range revs {
		if cur, ok := known[id]; !ok || cur != rev {
			changed = append(changed, id)
		}
	}
	removed := 0
	for id := range known {
		if _, ok := revs[id]; !ok {
			idx.Remove(id)
			removed++
		}
	}
	for start := 0; start < len(changed); start += syncChunk {
		assets, err := s.assetsByID(ctx, changed[start:min(start+syncChunk, len(changed))])
		if err != nil {
			return err
		}
		for _, a := range assets {
			idx.Add(a)
		}
	}

	s.logger.Info("asset index synced", "changed", len(changed), "removed", removed, "count", idx.Count())
	return nil
}

// tryLoadAssetIndex attempts to load the HNSW index from disk.
// Returns nil if the cached index is missing or unreadable.
func (s *Store) tryLoadAssetIndex(indexPath string) *database.AssetIndex {
	if _, err := database.LoadHNSWMetadata(indexPath); err != nil {
		s.logger.Info("asset index metadata unavailable, rebuilding", "path", indexPath, "error", err)
		return nil
	}

	idx := database.NewAssetIndex()
	if err := idx.Load(indexPath); err != nil {
		s.logger.Warn("asset index load failed, rebuilding", "error", err)
		return nil
	}
	if idx.IsEmpty() {
		return nil
	}
	s.logger.Info("asset index loaded from disk", "count", idx.Count())
	return idx
}

// EnableHNSW loads or builds the in-memory HNSW index over asset embeddings.
// If indexPath is set, an index on disk is reused and brought up to date with
// the database; a rebuilt one is saved.
func (s *Store) EnableHNSW(ctx context.Context, indexPath string) error {
	s.hnswMu.Lock()
	defer s.hnswMu.Unlock()

	s.hnswIndexPath = indexPath

	if indexPath != "" {
		if idx := s.tryLoadAssetIndex(indexPath); idx != nil {
			if err := s.syncIndex(ctx, idx); err != nil {
				return err
			}
			s.hnswIndex = idx
			s.hnswEnabled = true
			return nil
		}
	}

	assets, err := s.allEmbeddedAssets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load asset embeddings: %w", err)
	}

	idx := database.NewAssetIndex()
	idx.Build(assets)
	s.hnswIndex = idx
	s.hnswEnabled = true
	s.logger.Info("asset index built", "count", idx.Count())

	if indexPath != "" && len(assets) > 0 {
		if err := idx.Save(indexPath, database.HNSWIndexMetadata{AssetCount: int64(idx.Count())}); err != nil {
			s.logger.Warn("failed to save asset index to disk", "path", indexPath, "error", err)
		}
	}
	return nil
}

// DisableHNSW drops the in-memory index; similarity search falls back to PostgreSQL.
func (s *Store) DisableHNSW() {
	s.hnswMu.Lock()
	defer s.hnswMu.Unlock()
	s.hnswEnabled = false
	s.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled
func (s *Store) IsHNSWEnabled() bool {
	s.hnswMu.RLock()
	defer s.hnswMu.RUnlock()
	return s.hnswEnabled && s.hnswIndex != nil
}

// HNSWCount returns the number of assets in the HNSW index
func (s *Store) HNSWCount() int {
	s.hnswMu.RLock()
	defer s.hnswMu.RUnlock()
	if s.hnswIndex == nil {
		return 0
	}
	return s.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data
func (s *Store) RebuildHNSW(ctx context.Context) error {
	s.hnswMu.Lock()
	indexPath := s.hnswIndexPath
	s.hnswIndex = nil // force a rebuild instead of a disk load
	s.hnswMu.Unlock()

	if indexPath != "" {
		database.RemoveHNSWIndexFiles(indexPath)
	}
	return s.EnableHNSW(ctx, indexPath)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured)
func (s *Store) SaveHNSWIndex() error {
	s.hnswMu.RLock()
	defer s.hnswMu.RUnlock()

	if s.hnswIndexPath == "" || s.hnswIndex == nil {
		return nil
	}

	count := int64(s.hnswIndex.Count())
	if err := s.hnswIndex.Save(s.hnswIndexPath, database.HNSWIndexMetadata{AssetCount: count}); err != nil {
		return fmt.Errorf("saving HNSW asset index: %w", err)
	}
	s.logger.Info("asset index saved", "path", s.hnswIndexPath, "count", count)
	return nil
}

// refreshIndex applies committed asset writes to the in-memory index.
func (s *Store) refreshIndex(assets []database.Asset) {
	if len(assets) == 0 {
		return
	}
	s.hnswMu.RLock()
	defer s.hnswMu.RUnlock()
	if !s.hnswEnabled || s.hnswIndex == nil {
		return
	}
	for _, a := range assets {
		s.hnswIndex.Add(a)
	}
}
