package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const assetColumns = `a.id, a.owner_id, a.type, a.file_name, a.tags, a.taken_at, a.is_motion, a.embedding, a.revision`

// filterClause restricts assets by $2 (type, '' for any) and $3 (motion only).
const filterClause = `a.owner_id = $1 AND ($2::text = '' OR a.type = $2::text) AND (NOT $3::boolean OR a.is_motion)`

func scanAssetRow(scanner rowScanner, extraDest ...any) (database.Asset, error) {
	var a database.Asset
	var vec *pgvector.Vector

	dest := append([]any{
		&a.ID, &a.OwnerID, &a.Type, &a.FileName, pq.Array(&a.Tags), &a.TakenAt, &a.IsMotion, &vec, &a.Revision,
	}, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return a, fmt.Errorf("scan asset: %w", err)
	}
	if vec != nil {
		a.Embedding = vec.Slice()
	}
	return a, nil
}

func scanAssets(rows *sql.Rows) ([]database.Asset, error) {
	var assets []database.Asset
	for rows.Next() {
		a, err := scanAssetRow(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

// GetAsset retrieves an asset by id, returns nil if not found
func (s *Store) GetAsset(ctx context.Context, owner, id string) (*database.Asset, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets a WHERE a.owner_id = $1 AND a.id = $2`, owner, id)
	a, err := scanAssetRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// MatchAssets returns the newest filtered assets whose file name or a tag contains any term.
func (s *Store) MatchAssets(ctx context.Context, owner string, filter database.AssetFilter, terms []string, limit int) ([]database.Asset, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + escapeLike(t) + "%"
	}

	query := `
		SELECT ` + assetColumns + `
		FROM assets a
		WHERE ` + filterClause + `
		  AND (LOWER(a.file_name) LIKE ANY ($4::text[])
		       OR EXISTS (SELECT 1 FROM unnest(a.tags) AS g(tag) WHERE LOWER(g.tag) LIKE ANY ($4::text[])))
		ORDER BY a.taken_at DESC, a.id ASC
		LIMIT $5
	`

	rows, err := s.pool.Query(ctx, query, owner, string(filter.Type), filter.MotionOnly, pq.Array(patterns), limit)
	if err != nil {
		return nil, fmt.Errorf("match assets: %w", err)
	}
	defer rows.Close()

	return scanAssets(rows)
}

// RecentAssets returns a page of filtered assets ordered by recency.
func (s *Store) RecentAssets(ctx context.Context, owner string, filter database.AssetFilter, limit, offset int) ([]database.Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM assets a
		WHERE ` + filterClause + `
		ORDER BY a.taken_at DESC, a.id ASC
		LIMIT $4 OFFSET $5
	`

	rows, err := s.pool.Query(ctx, query, owner, string(filter.Type), filter.MotionOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query recent assets: %w", err)
	}
	defer rows.Close()

	assets, err := scanAssets(rows)
	if err != nil {
		return nil, err
	}
	if assets == nil {
		assets = []database.Asset{}
	}
	return assets, nil
}

// FindSimilarAssets finds the nearest filtered assets by cosine distance.
// Uses the in-memory HNSW index if enabled, in sync with the database and
// able to cover the page, otherwise falls back to an exact PostgreSQL ordering.
func (s *Store) FindSimilarAssets(ctx context.Context, owner string, embedding []float32, filter database.AssetFilter,
	maxDistance float64, limit, offset int) ([]database.ScoredAsset, error) {
	if idx := s.activeIndex(); idx != nil {
		if err := s.syncIndex(ctx, idx); err != nil {
			s.logger.Warn("asset index sync failed, using exact search", "error", err)
			return s.findSimilarPostgres(ctx, owner, embedding, filter, maxDistance, limit, offset)
		}
		hits, ok, err := idx.SearchPage(embedding, owner, filter, maxDistance, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("HNSW search: %w", err)
		}
		if ok {
			return hits, nil
		}
		s.logger.Debug("page beyond hnsw candidate pool, using exact search",
			"owner", owner, "limit", limit, "offset", offset)
	}
	return s.findSimilarPostgres(ctx, owner, embedding, filter, maxDistance, limit, offset)
}

// activeIndex returns the HNSW index, or nil when similarity search must use PostgreSQL.
func (s *Store) activeIndex() *database.AssetIndex {
	s.hnswMu.RLock()
	defer s.hnswMu.RUnlock()
	if !s.hnswEnabled {
		return nil
	}
	return s.hnswIndex
}

// findSimilarPostgres uses PostgreSQL for similarity search with ef_search optimization
func (s *Store) findSimilarPostgres(ctx context.Context, owner string, embedding []float32, filter database.AssetFilter,
	maxDistance float64, limit, offset int) ([]database.ScoredAsset, error) {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	// Set ef_search to match the in-memory HNSW configuration.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT ` + assetColumns + `, a.embedding <=> $4::vector AS distance
		FROM assets a
		WHERE ` + filterClause + `
		  AND a.embedding IS NOT NULL
		  AND ($5::float8 <= 0 OR a.embedding <=> $4::vector < $5::float8)
		ORDER BY distance ASC, a.taken_at DESC, a.id ASC
		LIMIT $6 OFFSET $7
	`

	rows, err := tx.QueryContext(ctx, query, owner, string(filter.Type), filter.MotionOnly,
		pgvector.NewVector(embedding), maxDistance, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query similar assets: %w", err)
	}
	defer rows.Close()

	hits := []database.ScoredAsset{}
	for rows.Next() {
		var dist float64
		a, err := scanAssetRow(rows, &dist)
		if err != nil {
			return nil, err
		}
		hits = append(hits, database.ScoredAsset{Asset: a, Distance: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar assets: %w", err)
	}
	return hits, nil
}

// allEmbeddedAssets loads every asset that has an embedding, for index builds.
func (s *Store) allEmbeddedAssets(ctx context.Context) ([]database.Asset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assetColumns+` FROM assets a WHERE a.embedding IS NOT NULL ORDER BY a.id`)
	if err != nil {
		return nil, fmt.Errorf("query embedded assets: %w", err)
	}
	defer rows.Close()

	return scanAssets(rows)
}
