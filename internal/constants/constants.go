// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Pagination constants
const (
	// DefaultPageSize is the number of assets returned when a search omits take
	DefaultPageSize = 100

	// MaxPageSize is the largest take a search accepts
	MaxPageSize = 1000
)

// Lexical ranking weights
const (
	// TagHitWeight is added for every query token found in an asset tag
	TagHitWeight = 2

	// FileNameHitWeight is added for every query token found in the file name
	FileNameHitWeight = 1

	// WholeTermBonus is added when the complete query appears in the file name or a tag
	WholeTermBonus = 3
)

// Lexical search constants
const (
	// LexicalCandidates caps the matches a text search scores. Only the newest
	// LexicalCandidates matching assets are ranked and paged.
	LexicalCandidates = 5000
)

// Similarity search constants
const (
	// RecentSimilarCandidates caps the nearest-neighbour set that a recent-ordered
	// clip search re-sorts by capture time
	RecentSimilarCandidates = 1000
)

// Processing constants
const (
	// ImportBatchSize is the number of PhotoPrism photos written per store transaction
	ImportBatchSize = 200

	// ImportConcurrency is the number of parallel marker readers during import
	ImportConcurrency = 4

	// ImportTxAttempts is how often a batch transaction runs before a conflict is reported
	ImportTxAttempts = 3

	// MaxBulkIDs is the largest id list accepted by bulk person and face endpoints
	MaxBulkIDs = 1000
)

// File upload constants
const (
	// MaxRequestBodySize is the maximum JSON request body size in bytes (1MB)
	MaxRequestBodySize = 1 << 20
)
