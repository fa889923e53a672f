package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/constants"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/database/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vec   []float32
	err   error
	delay time.Duration
}

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.vec, s.err
}

func (s *stubEmbedder) ModelName() string { return "stub" }

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, assets ...database.Asset) *memory.Store {
	t.Helper()
	store := memory.New()
	err := store.InTx(context.Background(), func(tx database.Tx) error {
		for i := range assets {
			if assets[i].OwnerID == "" {
				assets[i].OwnerID = "u1"
			}
			if err := tx.UpsertAsset(context.Background(), &assets[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return store
}

// angled returns a unit vector whose cosine distance to (1, 0) grows with step.
func angled(step int) []float32 {
	a := float64(step) * 0.05
	return []float32{float32(math.Cos(a)), float32(math.Sin(a))}
}

// beachCorpus has 15 beach images at increasing distance from the query, and
// closer videos and motion photos that filters must exclude.
func beachCorpus(t *testing.T) *memory.Store {
	var assets []database.Asset
	for i := range 15 {
		assets = append(assets, database.Asset{
			ID:        fmt.Sprintf("img%02d", i),
			Type:      database.AssetTypeImage,
			FileName:  fmt.Sprintf("beach_%02d.jpg", i),
			TakenAt:   day0.AddDate(0, 0, 15-i),
			IsMotion:  i%3 == 0,
			Embedding: angled(i + 1),
		})
	}
	for i := range 3 {
		assets = append(assets, database.Asset{
			ID:        fmt.Sprintf("vid%d", i),
			Type:      database.AssetTypeVideo,
			FileName:  fmt.Sprintf("beach_%d.mp4", i),
			TakenAt:   day0.AddDate(1, 0, i),
			Embedding: angled(0),
		})
	}
	assets = append(assets,
		database.Asset{ID: "noemb", Type: database.AssetTypeImage, FileName: "beach.jpg", TakenAt: day0.AddDate(2, 0, 0)},
		database.Asset{ID: "other", OwnerID: "u2", Type: database.AssetTypeImage, FileName: "beach.jpg", Embedding: angled(0)},
	)
	return seed(t, assets...)
}

func newExecutor(store Store, emb *stubEmbedder) *Executor {
	if emb == nil {
		return NewExecutor(store, nil, ExecutorOptions{})
	}
	return NewExecutor(store, emb, ExecutorOptions{EmbeddingTimeout: 50 * time.Millisecond})
}

func ids(page *AssetPage) []string {
	out := make([]string, len(page.Items))
	for i, h := range page.Items {
		out[i] = h.Asset.ID
	}
	return out
}

// Scenario: q=beach, clip, type=IMAGE, take=10 over 15 matching images.
func TestExecute_ClipBeachScenario(t *testing.T) {
	exec := newExecutor(beachCorpus(t), &stubEmbedder{vec: []float32{1, 0}})

	plan, err := ParseSearch(query(t, "q=beach&clip=true&type=IMAGE&take=10&skip=0"))
	require.NoError(t, err)

	page, err := exec.Execute(context.Background(), "u1", plan)
	require.NoError(t, err)
	require.Len(t, page.Items, 10)
	for i, h := range page.Items {
		assert.Equal(t, database.AssetTypeImage, h.Asset.Type)
		assert.Equal(t, fmt.Sprintf("img%02d", i), h.Asset.ID)
		if i > 0 {
			assert.GreaterOrEqual(t, page.Items[i-1].Score, h.Score, "descending similarity")
		}
	}
	require.NotNil(t, page.NextOffset)
	assert.Equal(t, 10, *page.NextOffset)

	plan.Offset = 10
	page, err = exec.Execute(context.Background(), "u1", plan)
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Nil(t, page.NextOffset)
}

func TestExecute_ClipRecentAndMotion(t *testing.T) {
	exec := newExecutor(beachCorpus(t), &stubEmbedder{vec: []float32{1, 0}})

	plan, err := ParseSearch(query(t, "q=beach&clip=1&type=IMAGE&motion=true&recent=true"))
	require.NoError(t, err)
	page, err := exec.Execute(context.Background(), "u1", plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"img00", "img03", "img06", "img09", "img12"}, ids(page))
}

func TestExecute_ClipMaxDistance(t *testing.T) {
	exec := NewExecutor(beachCorpus(t), &stubEmbedder{vec: []float32{1, 0}}, ExecutorOptions{
		MaxDistance: 1 - math.Cos(0.05*3.5),
	})

	page, err := exec.Execute(context.Background(), "u1", Plan{
		TextTerm: "beach", Strategy: StrategyEmbedding, Limit: 100,
		Filters: database.AssetFilter{Type: database.AssetTypeImage},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"img00", "img01", "img02"}, ids(page))
}

func TestExecute_EmbeddingUnavailable(t *testing.T) {
	store := beachCorpus(t)
	plan := Plan{TextTerm: "beach", Strategy: StrategyEmbedding, Limit: 10}

	tests := []struct {
		name string
		emb  *stubEmbedder
	}{
		{"no provider", nil},
		{"provider error", &stubEmbedder{err: errors.New("connection refused")}},
		{"provider timeout", &stubEmbedder{vec: []float32{1, 0}, delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newExecutor(store, tt.emb).Execute(context.Background(), "u1", plan)
			assert.ErrorIs(t, err, apperr.ErrUnavailable)
			assert.True(t, apperr.IsRetryable(err))
		})
	}
}

func TestExecute_StoreTimeoutIsUnavailable(t *testing.T) {
	store := beachCorpus(t)
	store.SimilarHook = func() error { return context.DeadlineExceeded }

	_, err := newExecutor(store, &stubEmbedder{vec: []float32{1, 0}}).Execute(context.Background(), "u1",
		Plan{TextTerm: "beach", Strategy: StrategyEmbedding, Limit: 10})
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}

func lexicalCorpus(t *testing.T) *memory.Store {
	return seed(t,
		database.Asset{ID: "b1", Type: database.AssetTypeImage, FileName: "beach.jpg", TakenAt: day0.AddDate(0, 3, 0)},
		database.Asset{ID: "b2", Type: database.AssetTypeImage, FileName: "IMG_0001.jpg", Tags: []string{"Beach"}, TakenAt: day0.AddDate(0, 1, 0)},
		database.Asset{ID: "b3", Type: database.AssetTypeImage, FileName: "beach2.jpg", Tags: []string{"beach"}, TakenAt: day0.AddDate(0, 2, 0)},
		database.Asset{ID: "b4", Type: database.AssetTypeImage, FileName: "dog.jpg", Tags: []string{"dog"}, TakenAt: day0.AddDate(0, 4, 0)},
		database.Asset{ID: "b5", Type: database.AssetTypeVideo, FileName: "beach.mp4", TakenAt: day0.AddDate(0, 5, 0), IsMotion: true},
		database.Asset{ID: "s1", Type: database.AssetTypeImage, FileName: "sunny_beach.jpg", TakenAt: day0},
		database.Asset{ID: "s2", Type: database.AssetTypeImage, FileName: "x.jpg", Tags: []string{"Sunny Beach"}, TakenAt: day0},
		database.Asset{ID: "z9", OwnerID: "u2", Type: database.AssetTypeImage, FileName: "beach.jpg", TakenAt: day0},
	)
}

func TestExecute_LexicalRanking(t *testing.T) {
	exec := newExecutor(lexicalCorpus(t), nil)
	ctx := context.Background()

	page, err := exec.Execute(ctx, "u1", Plan{TextTerm: "Beach", Limit: 100,
		Filters: database.AssetFilter{Type: database.AssetTypeImage}})
	require.NoError(t, err)
	// b3: tag + name + whole; b2, s2: tag + whole; b1, s1: name + whole. Ties go to the newer asset.
	assert.Equal(t, []string{"b3", "b2", "s2", "b1", "s1"}, ids(page))
	assert.Equal(t, []float64{6, 5, 5, 4, 4}, []float64{
		page.Items[0].Score, page.Items[1].Score, page.Items[2].Score, page.Items[3].Score, page.Items[4].Score,
	})

	page, err = exec.Execute(ctx, "u1", Plan{TextTerm: "sunny beach", Limit: 100})
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	assert.Equal(t, "s2", page.Items[0].Asset.ID, "whole-term tag match ranks first")
	assert.Equal(t, float64(2*2+3), page.Items[0].Score)

	page, err = exec.Execute(ctx, "u1", Plan{TextTerm: "cat", Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestExecute_LexicalRecentAndFilters(t *testing.T) {
	exec := newExecutor(lexicalCorpus(t), nil)

	plan, err := ParseSearch(query(t, "q=beach&recent=true"))
	require.NoError(t, err)
	page, err := exec.Execute(context.Background(), "u1", plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"b5", "b1", "b3", "b2", "s1", "s2"}, ids(page))

	plan, err = ParseSearch(query(t, "q=beach&motion=true"))
	require.NoError(t, err)
	page, err = exec.Execute(context.Background(), "u1", plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"b5"}, ids(page))
}

func TestExecute_LexicalCandidatesCapped(t *testing.T) {
	exec := NewExecutor(lexicalCorpus(t), nil, ExecutorOptions{LexicalCandidates: 3})

	// Only the three newest matches (b5, b1, b3) are ranked; b3 still wins on score.
	page, err := exec.Execute(context.Background(), "u1", Plan{TextTerm: "beach", Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"b3", "b5", "b1"}, ids(page))
	assert.Nil(t, page.NextOffset)
}

func TestNewExecutor_DefaultLexicalCap(t *testing.T) {
	exec := NewExecutor(lexicalCorpus(t), nil, ExecutorOptions{})
	assert.Equal(t, constants.LexicalCandidates, exec.opts.LexicalCandidates)
}

func TestExecute_RecentWithoutText(t *testing.T) {
	exec := newExecutor(lexicalCorpus(t), nil)

	plan, err := ParseSearch(query(t, "type=image&take=2"))
	require.NoError(t, err)
	page, err := exec.Execute(context.Background(), "u1", plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"b4", "b1"}, ids(page))
	require.NotNil(t, page.NextOffset)
	assert.Equal(t, 2, *page.NextOffset)
	assert.Zero(t, page.Items[0].Score)
}

func TestExecute_OffsetPastEnd(t *testing.T) {
	exec := newExecutor(lexicalCorpus(t), &stubEmbedder{vec: []float32{1, 0}})

	for _, plan := range []Plan{
		{TextTerm: "beach", Limit: 10, Offset: 500},
		{Order: OrderRecency, Limit: 10, Offset: 500},
	} {
		page, err := exec.Execute(context.Background(), "u1", plan)
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Nil(t, page.NextOffset)
	}

	_, err := exec.Execute(context.Background(), "u1", Plan{Limit: 0})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestExecute_OwnerScoped(t *testing.T) {
	exec := newExecutor(beachCorpus(t), &stubEmbedder{vec: []float32{1, 0}})

	for _, plan := range []Plan{
		{TextTerm: "beach", Limit: 100},
		{TextTerm: "beach", Strategy: StrategyEmbedding, Limit: 100},
		{Order: OrderRecency, Limit: 100},
	} {
		page, err := exec.Execute(context.Background(), "u2", plan)
		require.NoError(t, err)
		assert.Equal(t, []string{"other"}, ids(page), plan.Strategy.String())
	}
}

// Concatenating consecutive pages reproduces the unpaginated order.
func TestExecute_PagesConcatenate(t *testing.T) {
	store := beachCorpus(t)
	exec := newExecutor(store, &stubEmbedder{vec: []float32{1, 0}})
	ctx := context.Background()

	plans := map[string]Plan{
		"lexical":        {TextTerm: "beach"},
		"lexical recent": {TextTerm: "beach", Order: OrderRecency},
		"recent":         {Order: OrderRecency},
		"embedding":      {TextTerm: "beach", Strategy: StrategyEmbedding},
		"embedding recent images": {TextTerm: "beach", Strategy: StrategyEmbedding, Order: OrderRecency,
			Filters: database.AssetFilter{Type: database.AssetTypeImage}},
	}

	for name, base := range plans {
		t.Run(name, func(t *testing.T) {
			full := base
			full.Limit = 1000
			all, err := exec.Execute(ctx, "u1", full)
			require.NoError(t, err)
			require.NotEmpty(t, all.Items)

			for limit := 1; limit <= 7; limit++ {
				var got []string
				plan := base
				plan.Limit = limit
				for {
					page, err := exec.Execute(ctx, "u1", plan)
					require.NoError(t, err)
					got = append(got, ids(page)...)
					if page.NextOffset == nil {
						break
					}
					plan.Offset = *page.NextOffset
				}
				assert.Equal(t, ids(all), got, "limit %d", limit)
			}
		})
	}
}

func TestExecutePeople(t *testing.T) {
	store := memory.New()
	err := store.InTx(context.Background(), func(tx database.Tx) error {
		for _, p := range []database.Person{
			{ID: "p1", OwnerID: "u1", Name: "Zoë"},
			{ID: "p2", OwnerID: "u1", Name: "ZOE Hidden", Hidden: true},
			{ID: "p3", OwnerID: "u1", Name: "Bob"},
			{ID: "p4", OwnerID: "u2", Name: "Zoe"},
		} {
			if err := tx.InsertPerson(context.Background(), &p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	exec := newExecutor(store, nil)
	ctx := context.Background()

	people, err := exec.ExecutePeople(ctx, "u1", PeoplePlan{Name: "zoe"})
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "p1", people[0].ID)

	people, err = exec.ExecutePeople(ctx, "u1", PeoplePlan{Name: "zoe", WithHidden: true})
	require.NoError(t, err)
	assert.Len(t, people, 2)

	people, err = exec.ExecutePeople(ctx, "u1", PeoplePlan{Name: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, people)
	assert.Empty(t, people)

	_, err = exec.ExecutePeople(ctx, "u1", PeoplePlan{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
