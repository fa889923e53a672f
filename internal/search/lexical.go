package search

import (
	"cmp"
	"slices"
	"strings"

	"github.com/kozaktomas/photo-people/internal/constants"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/textnorm"
)

// lexicalQuery is a text term split for matching against file names and tags.
type lexicalQuery struct {
	whole  string
	tokens []string
}

func newLexicalQuery(term string) lexicalQuery {
	whole := strings.ToLower(strings.TrimSpace(term))
	tokens := textnorm.Tokens(whole)
	if len(tokens) == 0 {
		tokens = []string{whole}
	}
	return lexicalQuery{whole: whole, tokens: tokens}
}

// score counts token hits (tags weigh more than the file name) plus a bonus
// when the whole term appears verbatim.
func (q lexicalQuery) score(a *database.Asset) int {
	name := strings.ToLower(a.FileName)
	tags := make([]string, len(a.Tags))
	for i, t := range a.Tags {
		tags[i] = strings.ToLower(t)
	}
	inTags := func(s string) bool {
		return slices.ContainsFunc(tags, func(t string) bool { return strings.Contains(t, s) })
	}

	score := 0
	for _, tok := range q.tokens {
		if inTags(tok) {
			score += constants.TagHitWeight
		}
		if strings.Contains(name, tok) {
			score += constants.FileNameHitWeight
		}
	}
	if score > 0 && (strings.Contains(name, q.whole) || inTags(q.whole)) {
		score += constants.WholeTermBonus
	}
	return score
}

// rankLexical scores candidates, drops the ones without a hit and orders the
// rest by score (or recency) with recency and id as tie-breakers.
func rankLexical(q lexicalQuery, candidates []database.Asset, order Order) []AssetHit {
	hits := make([]AssetHit, 0, len(candidates))
	for i := range candidates {
		if s := q.score(&candidates[i]); s > 0 {
			hits = append(hits, AssetHit{Asset: candidates[i], Score: float64(s)})
		}
	}
	slices.SortFunc(hits, func(a, b AssetHit) int {
		if order == OrderRelevance {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
		}
		return database.CompareRecent(&a.Asset, &b.Asset)
	})
	return hits
}
