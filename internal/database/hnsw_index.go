package database

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	AssetCount int64     `json:"asset_count"`
	BuildTime  time.Time `json:"build_time"`
	Version    int       `json:"version"`
}

const hnswMetadataVersion = 3

// IndexStamp summarizes a set of embedded assets. Two sets with the same
// stamp hold the same asset revisions.
type IndexStamp struct {
	Count       int64
	RevisionSum int64
}

// AssetIndex wraps the HNSW graph for asset embedding search.
// Graph nodes are keyed by asset id; idToAsset carries the owner and filter
// fields needed to restrict candidates without a database round trip.
type AssetIndex struct {
	graph       *hnsw.Graph[string]
	idToAsset   map[string]*Asset
	revisionSum int64
	mu          sync.RWMutex
	path        string
}

// NewAssetIndex creates a new empty HNSW index.
func NewAssetIndex() *AssetIndex {
	return &AssetIndex{
		idToAsset: make(map[string]*Asset),
	}
}

func newAssetGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given assets.
// Assets without an embedding are skipped.
func (h *AssetIndex) Build(assets []Asset) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToAsset = make(map[string]*Asset, len(assets))
	h.revisionSum = 0
	if len(assets) == 0 {
		h.graph = nil
		return
	}

	g := newAssetGraph()
	for i := range assets {
		a := &assets[i]
		if len(a.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(a.ID, a.Embedding))
		h.idToAsset[a.ID] = a
		h.revisionSum += a.Revision
	}
	h.graph = g
}

// Add inserts or refreshes a single asset. A write older than the indexed
// revision is ignored.
func (h *AssetIndex) Add(a Asset) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.idToAsset[a.ID]; ok && a.Revision != 0 && cur.Revision > a.Revision {
		return
	}
	h.removeLocked(a.ID)
	if len(a.Embedding) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newAssetGraph()
	}
	// graph.Add panics on a key it already holds
	if _, ok := h.graph.Lookup(a.ID); ok {
		h.graph.Delete(a.ID)
	}
	h.graph.Add(hnsw.MakeNode(a.ID, a.Embedding))
	h.idToAsset[a.ID] = &a
	h.revisionSum += a.Revision
}

// Remove drops an asset from search results. Its graph node stays, filtered
// out of every search, until the id is added again or the index is rebuilt.
func (h *AssetIndex) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *AssetIndex) removeLocked(id string) {
	if cur, ok := h.idToAsset[id]; ok {
		h.revisionSum -= cur.Revision
		delete(h.idToAsset, id)
	}
}

// Stamp summarizes the indexed revisions for comparison with the database.
func (h *AssetIndex) Stamp() IndexStamp {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return IndexStamp{Count: int64(len(h.idToAsset)), RevisionSum: h.revisionSum}
}

// Revisions returns the indexed revision of every asset.
func (h *AssetIndex) Revisions() map[string]int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int64, len(h.idToAsset))
	for id, a := range h.idToAsset {
		out[id] = a.Revision
	}
	return out
}

// Search returns the filtered nearest neighbours among the first k graph
// candidates, ordered by SortScoredAssets. complete is true when the graph
// returned every node, i.e. every indexed asset was considered. The graph may
// stop short of k without having visited every node.
func (h *AssetIndex) Search(query []float32, owner string, filter AssetFilter, maxDistance float64, k int) (hits []ScoredAsset, complete bool, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, false, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)
	hits = make([]ScoredAsset, 0, len(neighbors))
	for _, n := range neighbors {
		a, ok := h.idToAsset[n.Key]
		if !ok || a.OwnerID != owner || !filter.Matches(a) {
			continue
		}
		dist := CosineDistance(query, a.Embedding)
		if maxDistance > 0 && dist >= maxDistance {
			continue
		}
		hits = append(hits, ScoredAsset{Asset: *a, Distance: dist})
	}
	SortScoredAssets(hits)
	return hits, len(neighbors) >= h.graph.Len(), nil
}

// SearchPage cuts one page out of the HNSWCandidatePool ranking, so
// consecutive pages of a query never overlap or skip. ok is false when the
// page reaches past a pool that did not cover the whole index; the caller
// must then rank exactly.
func (h *AssetIndex) SearchPage(query []float32, owner string, filter AssetFilter, maxDistance float64,
	limit, offset int) (page []ScoredAsset, ok bool, err error) {
	hits, complete, err := h.Search(query, owner, filter, maxDistance, HNSWCandidatePool)
	if err != nil {
		return nil, false, err
	}
	if offset+limit > len(hits) && !complete {
		return nil, false, nil
	}
	return Page(hits, limit, offset), true, nil
}

// Count returns the number of indexed assets.
func (h *AssetIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToAsset)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *AssetIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if metadata.Version != hnswMetadataVersion {
		return metadata, fmt.Errorf("unsupported index version %d", metadata.Version)
	}
	return metadata, nil
}

// RemoveHNSWIndexFiles deletes a persisted index and its sidecar files, ignoring errors.
func RemoveHNSWIndexFiles(path string) {
	_ = os.Remove(path)
	_ = os.Remove(path + ".meta")
	_ = os.Remove(path + ".assets")
}

// Save persists the graph, metadata and asset records next to path.
func (h *AssetIndex) Save(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		RemoveHNSWIndexFiles(path)
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}

	metadata.Version = hnswMetadataVersion
	if metadata.BuildTime.IsZero() {
		metadata.BuildTime = time.Now().UTC()
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	assets := make([]Asset, 0, len(h.idToAsset))
	for _, a := range h.idToAsset {
		assets = append(assets, *a)
	}
	af, err := os.Create(path + ".assets") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create assets file: %w", err)
	}
	defer af.Close()
	if err := gob.NewEncoder(af).Encode(assets); err != nil {
		return fmt.Errorf("failed to encode assets: %w", err)
	}
	h.path = path
	return nil
}

// Load reads the graph and asset records written by Save.
func (h *AssetIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("HNSW index file not found: %s", path)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	af, err := os.Open(path + ".assets") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to open assets file: %w", err)
	}
	defer af.Close()

	var assets []Asset
	if err := gob.NewDecoder(af).Decode(&assets); err != nil {
		return fmt.Errorf("failed to decode assets: %w", err)
	}

	h.graph = saved.Graph
	h.idToAsset = make(map[string]*Asset, len(assets))
	h.revisionSum = 0
	for i := range assets {
		h.idToAsset[assets[i].ID] = &assets[i]
		h.revisionSum += assets[i].Revision
	}
	h.path = path
	return nil
}
