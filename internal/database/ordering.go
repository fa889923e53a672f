package database

import (
	"cmp"
	"slices"
	"time"
)

// RankedPerson pairs a person with the capture time of its newest face asset,
// the sort key used by ListPeople.
type RankedPerson struct {
	Person     Person
	NewestFace *time.Time
}

// SortPeople orders people: visible before hidden, named before unnamed,
// newest face first (people without faces last), then by id.
func SortPeople(people []RankedPerson) {
	slices.SortFunc(people, func(a, b RankedPerson) int {
		if a.Person.Hidden != b.Person.Hidden {
			if a.Person.Hidden {
				return 1
			}
			return -1
		}
		aNamed, bNamed := a.Person.Name != "", b.Person.Name != ""
		if aNamed != bNamed {
			if aNamed {
				return -1
			}
			return 1
		}
		switch {
		case a.NewestFace == nil && b.NewestFace != nil:
			return 1
		case a.NewestFace != nil && b.NewestFace == nil:
			return -1
		case a.NewestFace != nil && b.NewestFace != nil:
			if c := b.NewestFace.Compare(*a.NewestFace); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Person.ID, b.Person.ID)
	})
}

// CompareRecent orders assets by taken_at descending, then id ascending.
func CompareRecent(a, b *Asset) int {
	if c := b.TakenAt.Compare(a.TakenAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortScoredAssets orders hits by distance ascending, then recency, then id.
func SortScoredAssets(hits []ScoredAsset) {
	slices.SortFunc(hits, func(a, b ScoredAsset) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return CompareRecent(&a.Asset, &b.Asset)
	})
}

// Page slices items to [offset, offset+limit). Offsets past the end yield an empty slice.
func Page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) || limit <= 0 {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
