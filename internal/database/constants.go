package database

import "github.com/kozaktomas/photo-people/internal/constants"

// HNSW index parameters for 512-dim CLIP asset embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so enough survive owner and filter restriction.
	HNSWSearchMultiplier = 3

	// HNSWCandidatePool is the fixed number of graph candidates every index
	// search ranks. Each page of a query is cut from the same pool.
	HNSWCandidatePool = constants.MaxPageSize * HNSWSearchMultiplier
)

// EmbeddingDim is the dimensionality of face and asset embedding columns.
const EmbeddingDim = 512
