package identity

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/database"
)

type statsKey struct {
	owner  string
	person string
}

type statsEntry struct {
	version int64
	stats   database.PersonStatistics
}

// StatisticsCache memoizes person statistics under the person's StatsVersion.
// The store advances that version on every face move and capture time edit,
// whichever process makes it, so an entry is only served while it matches
// the version just read from the store.
type StatisticsCache struct {
	mu      sync.Mutex
	entries *lru.Cache[statsKey, statsEntry] // nil when disabled
}

// NewStatisticsCache creates a cache holding up to size entries. Size 0 disables caching.
func NewStatisticsCache(size int) (*StatisticsCache, error) {
	c := &StatisticsCache{}
	if size <= 0 {
		return c, nil
	}
	entries, err := lru.New[statsKey, statsEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create statistics cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

// lookup returns the cached value computed at exactly version.
func (c *StatisticsCache) lookup(owner, person string, version int64) (database.PersonStatistics, bool) {
	if c.entries == nil {
		return database.PersonStatistics{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(statsKey{owner, person})
	if !ok || e.version != version {
		return database.PersonStatistics{}, false
	}
	return e.stats, true
}

// store records stats computed after version was read. An entry for a newer
// version is kept.
func (c *StatisticsCache) store(owner, person string, version int64, stats database.PersonStatistics) {
	if c.entries == nil {
		return
	}
	key := statsKey{owner, person}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries.Peek(key); ok && e.version > version {
		return
	}
	c.entries.Add(key, statsEntry{version: version, stats: stats})
}

// Invalidate drops the cached statistics of the given people.
func (c *StatisticsCache) Invalidate(owner string, people ...string) {
	if c.entries == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range people {
		if id != "" {
			c.entries.Remove(statsKey{owner, id})
		}
	}
}

// Len returns the number of cached entries.
func (c *StatisticsCache) Len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}

// Statistics returns asset counters over the person's current faces.
func (s *Service) Statistics(ctx context.Context, owner, id string) (database.PersonStatistics, error) {
	const op = "identity.Statistics"
	person, err := s.GetPerson(ctx, owner, id)
	if err != nil {
		return database.PersonStatistics{}, err
	}

	// The version is read before the aggregate, so a write racing the
	// computation can only make the stored entry newer than its version.
	version := person.StatsVersion
	if cached, ok := s.stats.lookup(owner, id, version); ok {
		return cached, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats, err := s.store.PersonStatistics(ctx, owner, id)
	if err != nil {
		return database.PersonStatistics{}, apperr.Classify(op, err)
	}
	s.stats.store(owner, id, version, stats)
	return stats, nil
}
