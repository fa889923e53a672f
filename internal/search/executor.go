package search

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/constants"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/embedding"
)

// Store is the read surface the executor needs.
type Store interface {
	database.AssetReader
	database.PersonReader
}

// AssetHit is one ranked asset. Score is the lexical score or the cosine
// similarity; recency-only listings score 0.
type AssetHit struct {
	Asset database.Asset `json:"asset"`
	Score float64        `json:"score"`
}

// AssetPage is one page of a search.
type AssetPage struct {
	Items      []AssetHit `json:"items"`
	Offset     int        `json:"offset"`
	Limit      int        `json:"limit"`
	NextOffset *int       `json:"nextOffset,omitempty"` // nil on the last page
}

type ExecutorOptions struct {
	StoreTimeout     time.Duration
	EmbeddingTimeout time.Duration
	MaxDistance      float64 // cosine distance cut-off for embedding search, 0 disables
	// LexicalCandidates caps the newest matches a text search ranks,
	// defaults to constants.LexicalCandidates
	LexicalCandidates int
	Logger            *slog.Logger
}

// Executor runs plans. It is read-only and safe for concurrent use.
type Executor struct {
	store    Store
	embedder embedding.Embedder
	opts     ExecutorOptions
	logger   *slog.Logger
}

// NewExecutor creates an executor. embedder may be nil, in which case
// embedding searches fail with Unavailable.
func NewExecutor(store Store, embedder embedding.Embedder, opts ExecutorOptions) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LexicalCandidates <= 0 {
		opts.LexicalCandidates = constants.LexicalCandidates
	}
	return &Executor{store: store, embedder: embedder, opts: opts, logger: logger}
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Execute runs the plan in the owner's scope.
func (e *Executor) Execute(ctx context.Context, owner string, plan Plan) (*AssetPage, error) {
	const op = "search.Execute"
	if plan.Limit <= 0 || plan.Offset < 0 {
		return nil, apperr.Invalid(op, "limit must be positive and offset non-negative")
	}

	var (
		hits []AssetHit
		more bool
		err  error
	)
	switch {
	case plan.Strategy == StrategyEmbedding:
		hits, more, err = e.similar(ctx, owner, plan)
	case plan.TextTerm != "":
		hits, more, err = e.lexical(ctx, owner, plan)
	default:
		hits, more, err = e.recent(ctx, owner, plan)
	}
	if err != nil {
		return nil, apperr.Classify(op, err)
	}

	page := &AssetPage{Items: hits, Offset: plan.Offset, Limit: plan.Limit}
	if more {
		next := plan.Offset + plan.Limit
		page.NextOffset = &next
	}
	e.logger.Debug("search executed", "owner", owner, "strategy", plan.Strategy.String(),
		"order", plan.Order.String(), "hits", len(hits), "offset", plan.Offset)
	return page, nil
}

// pageOf slices a fully ranked result set and reports whether more follows.
func pageOf(all []AssetHit, plan Plan) ([]AssetHit, bool) {
	page := database.Page(all, plan.Limit, plan.Offset)
	return page, plan.Offset+len(page) < len(all)
}

func (e *Executor) lexical(ctx context.Context, owner string, plan Plan) ([]AssetHit, bool, error) {
	q := newLexicalQuery(plan.TextTerm)

	sctx, cancel := bounded(ctx, e.opts.StoreTimeout)
	defer cancel()
	candidates, err := e.store.MatchAssets(sctx, owner, plan.Filters, q.tokens, e.opts.LexicalCandidates)
	if err != nil {
		return nil, false, err
	}

	hits, more := pageOf(rankLexical(q, candidates, plan.Order), plan)
	return hits, more, nil
}

func (e *Executor) recent(ctx context.Context, owner string, plan Plan) ([]AssetHit, bool, error) {
	sctx, cancel := bounded(ctx, e.opts.StoreTimeout)
	defer cancel()

	// One extra row tells whether another page exists.
	assets, err := e.store.RecentAssets(sctx, owner, plan.Filters, plan.Limit+1, plan.Offset)
	if err != nil {
		return nil, false, err
	}
	more := len(assets) > plan.Limit
	if more {
		assets = assets[:plan.Limit]
	}

	hits := make([]AssetHit, len(assets))
	for i, a := range assets {
		hits[i] = AssetHit{Asset: a}
	}
	return hits, more, nil
}

func (e *Executor) embed(ctx context.Context, text string) ([]float32, error) {
	const op = "search.embed"
	if e.embedder == nil {
		return nil, apperr.New(apperr.Unavailable, op, "no embedding provider configured")
	}

	ectx, cancel := bounded(ctx, e.opts.EmbeddingTimeout)
	defer cancel()
	vec, err := e.embedder.EmbedText(ectx, text)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, op, err)
	}
	return vec, nil
}

func (e *Executor) similar(ctx context.Context, owner string, plan Plan) ([]AssetHit, bool, error) {
	vec, err := e.embed(ctx, plan.TextTerm)
	if err != nil {
		return nil, false, err
	}

	sctx, cancel := bounded(ctx, e.opts.StoreTimeout)
	defer cancel()

	if plan.Order == OrderRecency {
		// Re-sorting by capture time needs the whole matched set, capped.
		scored, err := e.store.FindSimilarAssets(sctx, owner, vec, plan.Filters, e.opts.MaxDistance,
			constants.RecentSimilarCandidates, 0)
		if err != nil {
			return nil, false, err
		}
		all := toHits(scored)
		slices.SortFunc(all, func(a, b AssetHit) int { return database.CompareRecent(&a.Asset, &b.Asset) })
		hits, more := pageOf(all, plan)
		return hits, more, nil
	}

	scored, err := e.store.FindSimilarAssets(sctx, owner, vec, plan.Filters, e.opts.MaxDistance, plan.Limit+1, plan.Offset)
	if err != nil {
		return nil, false, err
	}
	more := len(scored) > plan.Limit
	if more {
		scored = scored[:plan.Limit]
	}
	return toHits(scored), more, nil
}

func toHits(scored []database.ScoredAsset) []AssetHit {
	hits := make([]AssetHit, len(scored))
	for i, s := range scored {
		hits[i] = AssetHit{Asset: s.Asset, Score: 1 - s.Distance}
	}
	return hits
}

// ExecutePeople returns people whose name contains the plan's name, ignoring
// case and diacritics.
func (e *Executor) ExecutePeople(ctx context.Context, owner string, plan PeoplePlan) ([]database.Person, error) {
	const op = "search.ExecutePeople"
	if plan.Name == "" {
		return nil, apperr.Invalid(op, "name is required", "name")
	}

	sctx, cancel := bounded(ctx, e.opts.StoreTimeout)
	defer cancel()
	people, err := e.store.SearchPeople(sctx, owner, plan.Name, plan.WithHidden)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	if people == nil {
		people = []database.Person{}
	}
	return people, nil
}
