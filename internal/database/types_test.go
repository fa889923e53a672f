package database

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestParseAssetType(t *testing.T) {
	tests := []struct {
		in     string
		want   AssetType
		wantOK bool
	}{
		{"IMAGE", AssetTypeImage, true},
		{"image", AssetTypeImage, true},
		{" Video ", AssetTypeVideo, true},
		{"AUDIO", AssetTypeAudio, true},
		{"other", AssetTypeOther, true},
		{"", "", false},
		{"photo", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseAssetType(tc.in)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("ParseAssetType(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestAssetFilterMatches(t *testing.T) {
	img := &Asset{Type: AssetTypeImage}
	motion := &Asset{Type: AssetTypeImage, IsMotion: true}
	video := &Asset{Type: AssetTypeVideo}

	if !(AssetFilter{}).Matches(video) {
		t.Error("zero filter should match everything")
	}
	if (AssetFilter{Type: AssetTypeImage}).Matches(video) {
		t.Error("type filter should reject video")
	}
	if (AssetFilter{MotionOnly: true}).Matches(img) {
		t.Error("motion filter should reject still image")
	}
	if !(AssetFilter{Type: AssetTypeImage, MotionOnly: true}).Matches(motion) {
		t.Error("motion image should pass combined filter")
	}
}

func TestSortPeople(t *testing.T) {
	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	people := []RankedPerson{
		{Person: Person{ID: "h", Name: "Hidden", Hidden: true}, NewestFace: &newer},
		{Person: Person{ID: "u1"}, NewestFace: &newer},
		{Person: Person{ID: "n-old", Name: "Old"}, NewestFace: &older},
		{Person: Person{ID: "n-none", Name: "Empty"}},
		{Person: Person{ID: "n-new-b", Name: "B"}, NewestFace: &newer},
		{Person: Person{ID: "n-new-a", Name: "A"}, NewestFace: &newer},
	}

	SortPeople(people)

	want := []string{"n-new-a", "n-new-b", "n-old", "n-none", "u1", "h"}
	for i, id := range want {
		if people[i].Person.ID != id {
			t.Fatalf("position %d: got %s, want %s (order %v)", i, people[i].Person.ID, id, ids(people))
		}
	}
}

func ids(people []RankedPerson) []string {
	out := make([]string, len(people))
	for i, p := range people {
		out[i] = p.Person.ID
	}
	return out
}

func TestSortScoredAssets(t *testing.T) {
	t1 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	hits := []ScoredAsset{
		{Asset: Asset{ID: "c", TakenAt: t1}, Distance: 0.2},
		{Asset: Asset{ID: "b", TakenAt: t1}, Distance: 0.1},
		{Asset: Asset{ID: "a", TakenAt: t1}, Distance: 0.1},
		{Asset: Asset{ID: "d", TakenAt: t2}, Distance: 0.1},
	}
	SortScoredAssets(hits)

	want := []string{"d", "a", "b", "c"}
	for i, id := range want {
		if hits[i].Asset.ID != id {
			t.Errorf("position %d: got %s, want %s", i, hits[i].Asset.ID, id)
		}
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	if got := Page(items, 2, 0); len(got) != 2 || got[0] != 1 {
		t.Errorf("first page = %v", got)
	}
	if got := Page(items, 2, 4); len(got) != 1 || got[0] != 5 {
		t.Errorf("last page = %v", got)
	}
	if got := Page(items, 2, 5); got == nil || len(got) != 0 {
		t.Errorf("past end should be empty non-nil slice, got %v", got)
	}
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0}
	if d := CosineDistance(a, a); math.Abs(d) > 1e-9 {
		t.Errorf("identical vectors distance = %f", d)
	}
	if d := CosineDistance(a, []float32{0, 1}); math.Abs(d-1) > 1e-9 {
		t.Errorf("orthogonal vectors distance = %f", d)
	}
	if d := CosineDistance(a, []float32{1}); d != 2.0 {
		t.Errorf("mismatched length distance = %f, want 2", d)
	}
	if d := CosineDistance(a, []float32{0, 0}); d != 2.0 {
		t.Errorf("zero vector distance = %f, want 2", d)
	}
}

func testIndexAssets() []Asset {
	ts := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	return []Asset{
		{ID: "a1", OwnerID: "u1", Type: AssetTypeImage, TakenAt: ts, Embedding: []float32{1, 0, 0}},
		{ID: "a2", OwnerID: "u1", Type: AssetTypeVideo, TakenAt: ts, Embedding: []float32{0.9, 0.1, 0}},
		{ID: "a3", OwnerID: "u2", Type: AssetTypeImage, TakenAt: ts, Embedding: []float32{1, 0, 0}},
		{ID: "a4", OwnerID: "u1", Type: AssetTypeImage, TakenAt: ts},
	}
}

func TestAssetIndexSearch(t *testing.T) {
	idx := NewAssetIndex()
	idx.Build(testIndexAssets())

	if idx.Count() != 3 {
		t.Fatalf("Count() = %d, want 3 (asset without embedding skipped)", idx.Count())
	}

	hits, complete, err := idx.Search([]float32{1, 0, 0}, "u1", AssetFilter{}, 0, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !complete {
		t.Error("expected complete search over a small graph")
	}
	if len(hits) != 2 || hits[0].Asset.ID != "a1" || hits[1].Asset.ID != "a2" {
		t.Fatalf("unexpected hits %+v", hits)
	}

	hits, _, _ = idx.Search([]float32{1, 0, 0}, "u1", AssetFilter{Type: AssetTypeVideo}, 0, 10)
	if len(hits) != 1 || hits[0].Asset.ID != "a2" {
		t.Errorf("type filter hits = %+v", hits)
	}

	idx.Remove("a1")
	hits, _, _ = idx.Search([]float32{1, 0, 0}, "u1", AssetFilter{}, 0, 10)
	if len(hits) != 1 {
		t.Errorf("removed asset still returned: %+v", hits)
	}
}

func TestAssetIndexSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.hnsw")

	idx := NewAssetIndex()
	idx.Build(testIndexAssets())
	if err := idx.Save(path, HNSWIndexMetadata{AssetCount: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata: %v", err)
	}
	if meta.AssetCount != 3 {
		t.Errorf("AssetCount = %d, want 3", meta.AssetCount)
	}

	loaded := NewAssetIndex()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Count() != 3 {
		t.Errorf("loaded Count() = %d, want 3", loaded.Count())
	}
	hits, _, err := loaded.Search([]float32{1, 0, 0}, "u2", AssetFilter{}, 0, 10)
	if err != nil || len(hits) != 1 || hits[0].Asset.ID != "a3" {
		t.Errorf("loaded search = %+v, %v", hits, err)
	}
}

func TestAssetIndexUninitialized(t *testing.T) {
	idx := NewAssetIndex()
	if !idx.IsEmpty() {
		t.Error("new index should be empty")
	}
	if _, _, err := idx.Search([]float32{1}, "u1", AssetFilter{}, 0, 1); err == nil {
		t.Error("expected error searching uninitialized index")
	}
}

func fanAssets(n int) []Asset {
	ts := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	assets := make([]Asset, 0, n)
	step := 1.5 / float64(n)
	for i := range n {
		a := float64(i) * step
		assets = append(assets, Asset{
			ID:        fmt.Sprintf("a%04d", i),
			OwnerID:   "u1",
			Type:      AssetTypeImage,
			TakenAt:   ts,
			Embedding: []float32{float32(math.Cos(a)), float32(math.Sin(a))},
		})
	}
	return assets
}

func TestAssetIndexSearchPage_PagesConcatenate(t *testing.T) {
	idx := NewAssetIndex()
	idx.Build(fanAssets(60))
	query := []float32{1, 0}

	whole, ok, err := idx.SearchPage(query, "u1", AssetFilter{}, 0, 100, 0)
	if err != nil || !ok {
		t.Fatalf("SearchPage = %v, %v", ok, err)
	}
	if len(whole) != 60 {
		t.Fatalf("whole ranking has %d hits, want 60", len(whole))
	}

	var joined []string
	for offset := 0; ; offset += 7 {
		page, ok, err := idx.SearchPage(query, "u1", AssetFilter{}, 0, 7, offset)
		if err != nil || !ok {
			t.Fatalf("page at %d: %v, %v", offset, ok, err)
		}
		for _, h := range page {
			joined = append(joined, h.Asset.ID)
		}
		if len(page) < 7 {
			break
		}
	}
	for i, h := range whole {
		if joined[i] != h.Asset.ID {
			t.Fatalf("page concatenation differs at %d: %s vs %s", i, joined[i], h.Asset.ID)
		}
	}
	if whole[0].Asset.ID != "a0000" || whole[59].Asset.ID != "a0059" {
		t.Errorf("unexpected ranking ends %s..%s", whole[0].Asset.ID, whole[59].Asset.ID)
	}
}

func TestAssetIndexSearchPage_BeyondPoolNeedsExactSearch(t *testing.T) {
	idx := NewAssetIndex()
	idx.Build(fanAssets(HNSWCandidatePool + 50))
	query := []float32{1, 0}

	if _, ok, err := idx.SearchPage(query, "u1", AssetFilter{}, 0, 10, 0); err != nil || !ok {
		t.Errorf("first page: ok=%v err=%v, want served from the pool", ok, err)
	}
	page, ok, err := idx.SearchPage(query, "u1", AssetFilter{}, 0, 10, HNSWCandidatePool-5)
	if err != nil {
		t.Fatalf("SearchPage: %v", err)
	}
	if ok || page != nil {
		t.Errorf("page past the pool: ok=%v len=%d, want exact search fallback", ok, len(page))
	}
}

func TestAssetIndexRevisions(t *testing.T) {
	idx := NewAssetIndex()
	ts := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	a := Asset{ID: "a1", OwnerID: "u1", TakenAt: ts, Embedding: []float32{1, 0}, Revision: 5}

	idx.Add(a)
	if got := idx.Stamp(); got != (IndexStamp{Count: 1, RevisionSum: 5}) {
		t.Errorf("Stamp() = %+v after add", got)
	}

	stale := a
	stale.Revision = 3
	stale.Embedding = []float32{0, 1}
	idx.Add(stale)
	if got := idx.Revisions()["a1"]; got != 5 {
		t.Errorf("older revision replaced the indexed one: %d", got)
	}

	newer := a
	newer.Revision = 7
	idx.Add(newer)
	idx.Add(Asset{ID: "a2", OwnerID: "u1", TakenAt: ts, Embedding: []float32{0, 1}, Revision: 9})
	if got := idx.Stamp(); got != (IndexStamp{Count: 2, RevisionSum: 16}) {
		t.Errorf("Stamp() = %+v after update", got)
	}

	idx.Remove("a1")
	if got := idx.Stamp(); got != (IndexStamp{Count: 1, RevisionSum: 9}) {
		t.Errorf("Stamp() = %+v after remove", got)
	}
	hits, _, err := idx.Search([]float32{1, 0}, "u1", AssetFilter{}, 0, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Asset.ID != "a2" {
		t.Errorf("hits after remove = %+v", hits)
	}
}
