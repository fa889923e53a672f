package database

import (
	"context"
)

// Readers return (nil, nil) for an id that does not exist in the owner's
// scope. Records of other owners are indistinguishable from missing ones.

// PersonReader provides read-only access to people
type PersonReader interface {
	// GetPerson retrieves a person by id, returns nil if not found
	GetPerson(ctx context.Context, owner, id string) (*Person, error)
	// ListPeople returns people ordered hidden last, named first, newest face first, then by id
	ListPeople(ctx context.Context, owner string, withHidden bool) ([]Person, error)
	// CountPeople returns the total and hidden people counts
	CountPeople(ctx context.Context, owner string) (PeopleCounts, error)
	// SearchPeople returns people whose folded name contains the folded term, ordered by name then id
	SearchPeople(ctx context.Context, owner, term string, withHidden bool) ([]Person, error)
	// PersonAssets returns distinct assets of the person's faces, newest first
	PersonAssets(ctx context.Context, owner, personID string) ([]Asset, error)
	// PersonStatistics aggregates the person's current face set
	PersonStatistics(ctx context.Context, owner, personID string) (PersonStatistics, error)
}

// FaceReader provides read-only access to face detections
type FaceReader interface {
	// GetFace retrieves a face by id, returns nil if not found
	GetFace(ctx context.Context, owner, id string) (*Face, error)
	// FacesByPerson returns the person's faces ordered by id
	FacesByPerson(ctx context.Context, owner, personID string) ([]Face, error)
}

// AssetReader provides read-only access to assets and the embedding index
type AssetReader interface {
	// GetAsset retrieves an asset by id, returns nil if not found
	GetAsset(ctx context.Context, owner, id string) (*Asset, error)
	// MatchAssets returns up to limit filtered assets whose file name or a tag
	// contains any of the lowercase terms, newest first (taken_at desc, id asc)
	MatchAssets(ctx context.Context, owner string, filter AssetFilter, terms []string, limit int) ([]Asset, error)
	// RecentAssets returns a page of filtered assets ordered by taken_at desc, id asc
	RecentAssets(ctx context.Context, owner string, filter AssetFilter, limit, offset int) ([]Asset, error)
	// FindSimilarAssets returns a page of filtered assets with embeddings ordered by
	// cosine distance asc, taken_at desc, id asc. maxDistance <= 0 disables the cut-off.
	FindSimilarAssets(ctx context.Context, owner string, embedding []float32, filter AssetFilter,
		maxDistance float64, limit, offset int) ([]ScoredAsset, error)
}

// Tx is the write surface available inside a store transaction. Row locks
// taken by the Lock* methods are held until the transaction ends.
type Tx interface {
	// LockPeople locks the given people in ascending id order and returns the ones found
	LockPeople(ctx context.Context, owner string, ids []string) (map[string]*Person, error)
	// LockFaces locks the given faces and returns the ones found
	LockFaces(ctx context.Context, owner string, ids []string) (map[string]*Face, error)
	// FaceIDsByPerson returns the person's face ids in ascending order
	FaceIDsByPerson(ctx context.Context, owner, personID string) ([]string, error)

	InsertPerson(ctx context.Context, p *Person) error
	UpdatePerson(ctx context.Context, p *Person) error
	DeletePerson(ctx context.Context, owner, id string) error

	// AssignFaces points the faces at personID; an empty personID orphans them
	AssignFaces(ctx context.Context, owner string, faceIDs []string, personID string) error
	// MoveFaces reassigns every face of one person to another, returning the number moved
	MoveFaces(ctx context.Context, owner, fromPersonID, toPersonID string) (int, error)

	// UpsertAsset and UpsertFace insert or overwrite by id; a nil embedding keeps the stored one
	UpsertAsset(ctx context.Context, a *Asset) error
	UpsertFace(ctx context.Context, f *Face) error
}

// Store is a transactional persistence backend.
type Store interface {
	PersonReader
	FaceReader
	AssetReader

	// InTx runs fn in one transaction. It commits when fn returns nil and rolls
	// back otherwise; fn's error is returned unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
