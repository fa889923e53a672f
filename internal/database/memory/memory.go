// Package memory provides an in-memory transactional implementation of
// database.Store, used by tests and by `serve --memory`.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/textnorm"
)

// Store keeps people, faces and assets in id-keyed maps. Transactions hold
// the write lock for their whole duration and record an undo log so a failed
// transaction leaves no trace.
type Store struct {
	mu     sync.RWMutex
	people map[string]*database.Person
	faces  map[string]*database.Face
	assets map[string]*database.Asset

	now func() time.Time

	// Error injection
	TxError     error // returned by InTx before fn runs
	SimilarHook func() error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		people: make(map[string]*database.Person),
		faces:  make(map[string]*database.Face),
		assets: make(map[string]*database.Asset),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source, for deterministic tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// InTx runs fn under the store's write lock and rolls back on error.
func (s *Store) InTx(ctx context.Context, fn func(tx database.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.TxError != nil {
		return s.TxError
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func copyPerson(p *database.Person) *database.Person {
	c := *p
	if p.BirthDate != nil {
		d := *p.BirthDate
		c.BirthDate = &d
	}
	return &c
}

// GetPerson retrieves a person by id, returns nil if not found
func (s *Store) GetPerson(ctx context.Context, owner, id string) (*database.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok || p.OwnerID != owner {
		return nil, nil
	}
	return copyPerson(p), nil
}

// newestFaceTimes maps person id to the capture time of its newest face asset.
// Callers must hold the lock.
func (s *Store) newestFaceTimes(owner string) map[string]time.Time {
	newest := make(map[string]time.Time)
	for _, f := range s.faces {
		if f.OwnerID != owner || f.PersonID == "" {
			continue
		}
		a, ok := s.assets[f.AssetID]
		if !ok {
			continue
		}
		if cur, seen := newest[f.PersonID]; !seen || a.TakenAt.After(cur) {
			newest[f.PersonID] = a.TakenAt
		}
	}
	return newest
}

// ListPeople returns people in listing order.
func (s *Store) ListPeople(ctx context.Context, owner string, withHidden bool) ([]database.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	newest := s.newestFaceTimes(owner)
	ranked := make([]database.RankedPerson, 0, len(s.people))
	for _, p := range s.people {
		if p.OwnerID != owner || (p.Hidden && !withHidden) {
			continue
		}
		rp := database.RankedPerson{Person: *copyPerson(p)}
		if t, ok := newest[p.ID]; ok {
			rp.NewestFace = &t
		}
		ranked = append(ranked, rp)
	}
	database.SortPeople(ranked)

	out := make([]database.Person, len(ranked))
	for i := range ranked {
		out[i] = ranked[i].Person
	}
	return out, nil
}

// CountPeople returns the total and hidden counts.
func (s *Store) CountPeople(ctx context.Context, owner string) (database.PeopleCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c database.PeopleCounts
	for _, p := range s.people {
		if p.OwnerID != owner {
			continue
		}
		c.Total++
		if p.Hidden {
			c.Hidden++
		}
	}
	return c, nil
}

// SearchPeople matches names by folded substring.
func (s *Store) SearchPeople(ctx context.Context, owner, term string, withHidden bool) ([]database.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []database.Person
	for _, p := range s.people {
		if p.OwnerID != owner || (p.Hidden && !withHidden) || p.Name == "" {
			continue
		}
		if textnorm.ContainsFold(p.Name, term) {
			out = append(out, *copyPerson(p))
		}
	}
	slices.SortFunc(out, func(a, b database.Person) int {
		if c := cmp.Compare(textnorm.Fold(a.Name), textnorm.Fold(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// personAssets returns the distinct assets of a person's faces. Callers must hold the lock.
func (s *Store) personAssets(owner, personID string) []database.Asset {
	seen := make(map[string]struct{})
	var out []database.Asset
	for _, f := range s.faces {
		if f.OwnerID != owner || f.PersonID != personID {
			continue
		}
		if _, dup := seen[f.AssetID]; dup {
			continue
		}
		a, ok := s.assets[f.AssetID]
		if !ok {
			continue
		}
		seen[f.AssetID] = struct{}{}
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b database.Asset) int { return database.CompareRecent(&a, &b) })
	return out
}

// PersonAssets returns distinct assets of the person's faces, newest first.
func (s *Store) PersonAssets(ctx context.Context, owner, personID string) ([]database.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.personAssets(owner, personID), nil
}

// PersonStatistics aggregates the person's current face set.
func (s *Store) PersonStatistics(ctx context.Context, owner, personID string) (database.PersonStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := s.personAssets(owner, personID)
	stats := database.PersonStatistics{AssetCount: len(assets)}
	if len(assets) > 0 {
		newest := assets[0].TakenAt
		oldest := assets[len(assets)-1].TakenAt
		stats.NewestAssetDate = &newest
		stats.OldestAssetDate = &oldest
	}
	return stats, nil
}

// GetFace retrieves a face by id, returns nil if not found
func (s *Store) GetFace(ctx context.Context, owner, id string) (*database.Face, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.faces[id]
	if !ok || f.OwnerID != owner {
		return nil, nil
	}
	c := *f
	return &c, nil
}

// FacesByPerson returns the person's faces ordered by id.
func (s *Store) FacesByPerson(ctx context.Context, owner, personID string) ([]database.Face, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []database.Face
	for _, f := range s.faces {
		if f.OwnerID == owner && f.PersonID == personID {
			out = append(out, *f)
		}
	}
	slices.SortFunc(out, func(a, b database.Face) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetAsset retrieves an asset by id, returns nil if not found
func (s *Store) GetAsset(ctx context.Context, owner, id string) (*database.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok || a.OwnerID != owner {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func assetMatchesTerms(a *database.Asset, terms []string) bool {
	name := strings.ToLower(a.FileName)
	for _, t := range terms {
		if strings.Contains(name, t) {
			return true
		}
		for _, tag := range a.Tags {
			if strings.Contains(strings.ToLower(tag), t) {
				return true
			}
		}
	}
	return false
}

// MatchAssets returns the newest filtered assets matching any term.
func (s *Store) MatchAssets(ctx context.Context, owner string, filter database.AssetFilter, terms []string, limit int) ([]database.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []database.Asset
	for _, a := range s.assets {
		if a.OwnerID != owner || !filter.Matches(a) || !assetMatchesTerms(a, terms) {
			continue
		}
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b database.Asset) int { return database.CompareRecent(&a, &b) })
	return database.Page(out, limit, 0), nil
}

// RecentAssets returns a page of filtered assets by recency.
func (s *Store) RecentAssets(ctx context.Context, owner string, filter database.AssetFilter, limit, offset int) ([]database.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []database.Asset
	for _, a := range s.assets {
		if a.OwnerID == owner && filter.Matches(a) {
			all = append(all, *a)
		}
	}
	slices.SortFunc(all, func(a, b database.Asset) int { return database.CompareRecent(&a, &b) })
	return database.Page(all, limit, offset), nil
}

// FindSimilarAssets ranks every filtered asset exactly by cosine distance.
func (s *Store) FindSimilarAssets(ctx context.Context, owner string, embedding []float32, filter database.AssetFilter,
	maxDistance float64, limit, offset int) ([]database.ScoredAsset, error) {
	if s.SimilarHook != nil {
		if err := s.SimilarHook(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []database.ScoredAsset
	for _, a := range s.assets {
		if a.OwnerID != owner || len(a.Embedding) == 0 || !filter.Matches(a) {
			continue
		}
		d := database.CosineDistance(embedding, a.Embedding)
		if maxDistance > 0 && d >= maxDistance {
			continue
		}
		hits = append(hits, database.ScoredAsset{Asset: *a, Distance: d})
	}
	database.SortScoredAssets(hits)
	return database.Page(hits, limit, offset), nil
}

// Counts returns the number of stored people, faces and assets across all owners.
func (s *Store) Counts() (people, faces, assets int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.people), len(s.faces), len(s.assets)
}

// memTx applies writes directly and records how to undo them.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) restorePerson(id string) {
	prev, existed := t.s.people[id]
	if existed {
		prev = copyPerson(prev)
	}
	t.undo = append(t.undo, func() {
		if existed {
			t.s.people[id] = prev
		} else {
			delete(t.s.people, id)
		}
	})
}

func (t *memTx) restoreFace(id string) {
	prev, existed := t.s.faces[id]
	if existed {
		c := *prev
		prev = &c
	}
	t.undo = append(t.undo, func() {
		if existed {
			t.s.faces[id] = prev
		} else {
			delete(t.s.faces, id)
		}
	})
}

// bumpStats advances the statistics version of the given people.
func (t *memTx) bumpStats(ids ...string) {
	for _, id := range ids {
		cur, ok := t.s.people[id]
		if id == "" || !ok {
			continue
		}
		t.restorePerson(id)
		p := copyPerson(cur)
		p.StatsVersion++
		t.s.people[id] = p
	}
}

func (t *memTx) LockPeople(ctx context.Context, owner string, ids []string) (map[string]*database.Person, error) {
	found := make(map[string]*database.Person, len(ids))
	for _, id := range ids {
		if p, ok := t.s.people[id]; ok && p.OwnerID == owner {
			found[id] = copyPerson(p)
		}
	}
	return found, nil
}

func (t *memTx) LockFaces(ctx context.Context, owner string, ids []string) (map[string]*database.Face, error) {
	found := make(map[string]*database.Face, len(ids))
	for _, id := range ids {
		if f, ok := t.s.faces[id]; ok && f.OwnerID == owner {
			c := *f
			found[id] = &c
		}
	}
	return found, nil
}

func (t *memTx) FaceIDsByPerson(ctx context.Context, owner, personID string) ([]string, error) {
	var out []string
	for _, f := range t.s.faces {
		if f.OwnerID == owner && f.PersonID == personID {
			out = append(out, f.ID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (t *memTx) InsertPerson(ctx context.Context, p *database.Person) error {
	if _, exists := t.s.people[p.ID]; exists {
		return fmt.Errorf("person %s already exists", p.ID)
	}
	now := t.s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.restorePerson(p.ID)
	t.s.people[p.ID] = copyPerson(p)
	return nil
}

func (t *memTx) UpdatePerson(ctx context.Context, p *database.Person) error {
	cur, ok := t.s.people[p.ID]
	if !ok || cur.OwnerID != p.OwnerID {
		return fmt.Errorf("person %s does not exist", p.ID)
	}
	p.UpdatedAt = t.s.now()
	p.StatsVersion = cur.StatsVersion
	t.restorePerson(p.ID)
	t.s.people[p.ID] = copyPerson(p)
	return nil
}

func (t *memTx) DeletePerson(ctx context.Context, owner, id string) error {
	p, ok := t.s.people[id]
	if !ok || p.OwnerID != owner {
		return nil
	}
	// Mirror ON DELETE SET NULL on faces.person_id.
	for fid, f := range t.s.faces {
		if f.PersonID == id {
			t.restoreFace(fid)
			f.PersonID = ""
		}
	}
	t.restorePerson(id)
	delete(t.s.people, id)
	return nil
}

func (t *memTx) AssignFaces(ctx context.Context, owner string, faceIDs []string, personID string) error {
	if personID != "" {
		if p, ok := t.s.people[personID]; !ok || p.OwnerID != owner {
			return fmt.Errorf("person %s does not exist", personID)
		}
	}
	for _, id := range faceIDs {
		f, ok := t.s.faces[id]
		if !ok || f.OwnerID != owner || f.PersonID == personID {
			continue
		}
		t.bumpStats(f.PersonID, personID)
		t.restoreFace(id)
		f.PersonID = personID
	}
	return nil
}

func (t *memTx) MoveFaces(ctx context.Context, owner, fromPersonID, toPersonID string) (int, error) {
	if p, ok := t.s.people[toPersonID]; !ok || p.OwnerID != owner {
		return 0, fmt.Errorf("person %s does not exist", toPersonID)
	}
	n := 0
	for id, f := range t.s.faces {
		if f.OwnerID == owner && f.PersonID == fromPersonID {
			t.restoreFace(id)
			f.PersonID = toPersonID
			n++
		}
	}
	if n > 0 {
		t.bumpStats(fromPersonID, toPersonID)
	}
	return n, nil
}

func (t *memTx) UpsertAsset(ctx context.Context, a *database.Asset) error {
	prev, existed := t.s.assets[a.ID]
	if existed && prev.OwnerID != a.OwnerID {
		return apperr.New(apperr.PermissionDenied, "memory.UpsertAsset", "asset belongs to another account", a.ID)
	}
	t.undo = append(t.undo, func() {
		if existed {
			t.s.assets[a.ID] = prev
		} else {
			delete(t.s.assets, a.ID)
		}
	})
	c := *a
	if len(c.Embedding) == 0 && existed {
		c.Embedding = prev.Embedding
	}
	t.s.assets[a.ID] = &c

	if existed && !prev.TakenAt.Equal(a.TakenAt) {
		for _, f := range t.s.faces {
			if f.AssetID == a.ID {
				t.bumpStats(f.PersonID)
			}
		}
	}
	return nil
}

func (t *memTx) UpsertFace(ctx context.Context, f *database.Face) error {
	if f.PersonID != "" {
		if _, ok := t.s.people[f.PersonID]; !ok {
			return fmt.Errorf("person %s does not exist", f.PersonID)
		}
	}
	prev, existed := t.s.faces[f.ID]
	if existed && prev.OwnerID != f.OwnerID {
		return apperr.New(apperr.PermissionDenied, "memory.UpsertFace", "face belongs to another account", f.ID)
	}
	switch {
	case !existed:
		t.bumpStats(f.PersonID)
	case prev.PersonID != f.PersonID || prev.AssetID != f.AssetID:
		t.bumpStats(prev.PersonID, f.PersonID)
	}
	t.restoreFace(f.ID)
	c := *f
	if existed && len(c.Embedding) == 0 {
		c.Embedding = prev.Embedding
	}
	t.s.faces[f.ID] = &c
	return nil
}
