package database

import (
	"slices"
	"strings"
	"time"
)

// AssetType is the media kind of an asset.
type AssetType string

const (
	AssetTypeImage AssetType = "IMAGE"
	AssetTypeVideo AssetType = "VIDEO"
	AssetTypeAudio AssetType = "AUDIO"
	AssetTypeOther AssetType = "OTHER"
)

// AssetTypes lists every valid asset type.
var AssetTypes = []AssetType{AssetTypeImage, AssetTypeVideo, AssetTypeAudio, AssetTypeOther}

// ParseAssetType parses an asset type case-insensitively.
func ParseAssetType(s string) (AssetType, bool) {
	t := AssetType(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(AssetTypes, t) {
		return t, true
	}
	return "", false
}

// Person is an identity aggregating face detections of one individual.
type Person struct {
	ID        string     `json:"id" yaml:"id"`
	OwnerID   string     `json:"-" yaml:"owner"`
	Name      string     `json:"name" yaml:"name"`
	Thumbnail string     `json:"thumbnailFaceId,omitempty" yaml:"thumbnail"` // face id of the representative crop
	Hidden    bool       `json:"isHidden" yaml:"hidden"`
	BirthDate *time.Time `json:"birthDate,omitempty" yaml:"birth_date"`

	// Protected marks a person created empty on purpose. It survives with
	// zero faces until it receives its first face.
	Protected bool `json:"-" yaml:"protected"`

	// StatsVersion moves whenever the person's face set or the capture time
	// of one of their assets changes.
	StatsVersion int64 `json:"-" yaml:"-"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// BoundingBox is a face region in raw pixel coordinates of the source image.
type BoundingBox struct {
	X1          int `json:"x1" yaml:"x1"`
	Y1          int `json:"y1" yaml:"y1"`
	X2          int `json:"x2" yaml:"x2"`
	Y2          int `json:"y2" yaml:"y2"`
	ImageWidth  int `json:"imageWidth" yaml:"width"`
	ImageHeight int `json:"imageHeight" yaml:"height"`
}

// Face is one detected face region within one asset.
type Face struct {
	ID        string      `json:"id" yaml:"id"`
	OwnerID   string      `json:"-" yaml:"owner"`
	AssetID   string      `json:"assetId" yaml:"asset"`
	BBox      BoundingBox `json:"boundingBox" yaml:"bbox"`
	Embedding []float32   `json:"-" yaml:"embedding"`
	PersonID  string      `json:"personId,omitempty" yaml:"person"` // empty when orphaned
}

// Asset is a media item that can be searched.
type Asset struct {
	ID        string    `json:"id" yaml:"id"`
	OwnerID   string    `json:"-" yaml:"owner"`
	Type      AssetType `json:"type" yaml:"type"`
	FileName  string    `json:"originalFileName" yaml:"file"`
	Tags      []string  `json:"tags,omitempty" yaml:"tags"`
	TakenAt   time.Time `json:"fileCreatedAt" yaml:"taken_at"`
	IsMotion  bool      `json:"isMotion" yaml:"motion"`
	Embedding []float32 `json:"-" yaml:"embedding"` // CLIP vector, nil when not computed
	Revision  int64     `json:"-" yaml:"-"`         // store-assigned, increases on every write
}

// PersonStatistics are the counters derived from a person's current faces.
type PersonStatistics struct {
	AssetCount      int        `json:"assets"`
	OldestAssetDate *time.Time `json:"oldestAssetDate,omitempty"`
	NewestAssetDate *time.Time `json:"newestAssetDate,omitempty"`
}

// PeopleCounts are the totals reported alongside a people listing.
type PeopleCounts struct {
	Total  int `json:"total"`
	Hidden int `json:"hidden"`
}

// AssetFilter restricts asset queries. The zero value matches everything.
type AssetFilter struct {
	Type       AssetType
	MotionOnly bool
}

// Matches reports whether the asset passes the filter.
func (f AssetFilter) Matches(a *Asset) bool {
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.MotionOnly && !a.IsMotion {
		return false
	}
	return true
}

// ScoredAsset is a nearest-neighbour hit.
type ScoredAsset struct {
	Asset    Asset
	Distance float64 // cosine distance, 0 is identical
}
