package mariadb

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/database"
	"github.com/kozaktomas/photo-people/internal/database/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	subjects  []Subject
	photos    []Photo // ordered by id
	markers   []Marker
	labels    map[int64][]string
	markerErr error
}

func (f *fakeSource) Subjects(context.Context) ([]Subject, error) { return f.subjects, nil }

func (f *fakeSource) PhotoBatch(ctx context.Context, afterID int64, limit int) ([]Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Photo
	for _, p := range f.photos {
		if p.ID > afterID && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeSource) Markers(_ context.Context, fileUIDs []string) ([]Marker, error) {
	if f.markerErr != nil {
		return nil, f.markerErr
	}
	want := make(map[string]bool, len(fileUIDs))
	for _, uid := range fileUIDs {
		want[uid] = true
	}
	var out []Marker
	for _, m := range f.markers {
		if want[m.FileUID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSource) Labels(_ context.Context, photoIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string)
	for _, id := range photoIDs {
		if l, ok := f.labels[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

var day0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newFakeSource() *fakeSource {
	return &fakeSource{
		subjects: []Subject{
			{UID: "s1", Name: " Alice "},
			{UID: "s2", Name: "Bob", Hidden: true},
			{UID: "s3", Name: "Ghost"}, // only has markers on an unimported file
		},
		photos: []Photo{
			{ID: 1, UID: "ph1", Type: "image", FileUID: "fi1", FileName: "2024/06/beach.jpg", Width: 1000, Height: 500, TakenAt: day0},
			{ID: 2, UID: "ph2", Type: "live", FileUID: "fi2", FileName: "2024/06/party.heic", Width: 400, Height: 400, TakenAt: day0.Add(time.Hour)},
			{ID: 5, UID: "ph5", Type: "video", FileUID: "fi5", FileName: "clip.mp4", Width: 1920, Height: 1080, TakenAt: day0.Add(2 * time.Hour)},
			{ID: 7, UID: "ph7", Type: "sidecar", FileUID: "fi7", FileName: "notes.txt", TakenAt: day0.Add(3 * time.Hour)},
		},
		markers: []Marker{
			{UID: "m1", FileUID: "fi1", SubjectUID: "s1", X: 0.1, Y: 0.2, W: 0.2, H: 0.4, Embedding: []float32{1, 0}},
			{UID: "m2", FileUID: "fi2", SubjectUID: "s1", X: 0, Y: 0, W: 0.5, H: 0.5},
			{UID: "m3", FileUID: "fi2", SubjectUID: "s2", X: 0.5, Y: 0.5, W: 0.25, H: 0.25},
			{UID: "m4", FileUID: "fi5", X: 0.1, Y: 0.1, W: 0.1, H: 0.1},
			{UID: "m9", FileUID: "missing", SubjectUID: "s3"},
		},
		labels: map[int64][]string{1: {"beach", "sea"}},
	}
}

func runImport(t *testing.T, src Source, store *memory.Store, opts ImportOptions) ImportStats {
	t.Helper()
	stats, err := NewImporter(src, store, opts).Run(context.Background(), "u1")
	require.NoError(t, err)
	return stats
}

func TestImporter_Run(t *testing.T) {
	store := memory.New()
	var progressed atomic.Int64
	stats := runImport(t, newFakeSource(), store, ImportOptions{
		BatchSize:   2,
		Concurrency: 2,
		Progress:    func(n int) { progressed.Add(int64(n)) },
	})

	assert.Equal(t, ImportStats{People: 3, Assets: 4, Faces: 4}, stats)
	assert.EqualValues(t, 4, progressed.Load())

	ctx := context.Background()
	alice, err := store.GetPerson(ctx, "u1", "s1")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, "m1", alice.Thumbnail)

	bob, err := store.GetPerson(ctx, "u1", "s2")
	require.NoError(t, err)
	require.NotNil(t, bob)
	assert.True(t, bob.Hidden)
	assert.Equal(t, "m3", bob.Thumbnail)

	ghost, err := store.GetPerson(ctx, "u1", "s3")
	require.NoError(t, err)
	assert.Nil(t, ghost, "a subject without imported faces is removed")

	beach, err := store.GetAsset(ctx, "u1", "ph1")
	require.NoError(t, err)
	require.NotNil(t, beach)
	assert.Equal(t, database.AssetTypeImage, beach.Type)
	assert.Equal(t, "beach.jpg", beach.FileName)
	assert.Equal(t, []string{"beach", "sea"}, beach.Tags)

	live, err := store.GetAsset(ctx, "u1", "ph2")
	require.NoError(t, err)
	assert.True(t, live.IsMotion)

	other, err := store.GetAsset(ctx, "u1", "ph7")
	require.NoError(t, err)
	assert.Equal(t, database.AssetTypeOther, other.Type)

	m1, err := store.GetFace(ctx, "u1", "m1")
	require.NoError(t, err)
	assert.Equal(t, database.BoundingBox{X1: 100, Y1: 100, X2: 300, Y2: 300, ImageWidth: 1000, ImageHeight: 500}, m1.BBox)
	assert.Equal(t, "ph1", m1.AssetID)

	m4, err := store.GetFace(ctx, "u1", "m4")
	require.NoError(t, err)
	assert.Empty(t, m4.PersonID)
}

func TestImporter_ReimportKeepsLocalChanges(t *testing.T) {
	store := memory.New()
	src := newFakeSource()
	runImport(t, src, store, ImportOptions{BatchSize: 3})

	ctx := context.Background()
	clip, err := store.GetAsset(ctx, "u1", "ph5")
	require.NoError(t, err)
	clip.Embedding = []float32{0, 1}

	require.NoError(t, store.InTx(ctx, func(tx database.Tx) error {
		// Local edits: move m2 to Bob, rename Alice, compute an asset embedding.
		if err := tx.AssignFaces(ctx, "u1", []string{"m2"}, "s2"); err != nil {
			return err
		}
		locked, err := tx.LockPeople(ctx, "u1", []string{"s1"})
		if err != nil {
			return err
		}
		locked["s1"].Name = "Alicia"
		if err := tx.UpdatePerson(ctx, locked["s1"]); err != nil {
			return err
		}
		return tx.UpsertAsset(ctx, clip)
	}))

	src.labels[5] = []string{"holiday"}
	stats := runImport(t, src, store, ImportOptions{BatchSize: 3})
	assert.Equal(t, 0, stats.People)

	m2, err := store.GetFace(ctx, "u1", "m2")
	require.NoError(t, err)
	assert.Equal(t, "s2", m2.PersonID)

	alice, err := store.GetPerson(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", alice.Name)

	clip, err = store.GetAsset(ctx, "u1", "ph5")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, clip.Embedding)
	assert.Equal(t, []string{"holiday"}, clip.Tags)
}

func TestImporter_DropsMismatchedEmbeddings(t *testing.T) {
	store := memory.New()
	runImport(t, newFakeSource(), store, ImportOptions{EmbeddingDim: 3})

	m1, err := store.GetFace(context.Background(), "u1", "m1")
	require.NoError(t, err)
	assert.Nil(t, m1.Embedding)
}

func TestImporter_SourceErrorAborts(t *testing.T) {
	store := memory.New()
	src := newFakeSource()
	src.markerErr = errors.New("connection reset")

	_, err := NewImporter(src, store, ImportOptions{BatchSize: 1, Concurrency: 2}).Run(context.Background(), "u1")
	require.ErrorContains(t, err, "connection reset")

	_, faces, assets := store.Counts()
	assert.Zero(t, faces)
	assert.Zero(t, assets)
}

func TestImporter_RequiresOwner(t *testing.T) {
	_, err := NewImporter(newFakeSource(), memory.New(), ImportOptions{}).Run(context.Background(), "")
	require.Error(t, err)
}

func TestImporter_AnotherOwnerCannotTakeOverAssets(t *testing.T) {
	store := memory.New()
	runImport(t, newFakeSource(), store, ImportOptions{})
	ctx := context.Background()

	// Same PhotoPrism library imported into a second account.
	src := newFakeSource()
	src.subjects = nil
	_, err := NewImporter(src, store, ImportOptions{BatchSize: 1, Concurrency: 1}).Run(ctx, "mallory")
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)

	beach, err := store.GetAsset(ctx, "u1", "ph1")
	require.NoError(t, err)
	require.NotNil(t, beach, "u1 keeps ph1")
	assert.Equal(t, "u1", beach.OwnerID)

	stolen, err := store.GetAsset(ctx, "mallory", "ph1")
	require.NoError(t, err)
	assert.Nil(t, stolen)
}

func TestImporter_AnotherOwnerCannotTakeOverFaces(t *testing.T) {
	store := memory.New()
	runImport(t, newFakeSource(), store, ImportOptions{})
	ctx := context.Background()

	src := &fakeSource{
		photos:  []Photo{{ID: 100, UID: "ph100", Type: "image", FileUID: "fi100", TakenAt: day0}},
		markers: []Marker{{UID: "m1", FileUID: "fi100"}},
	}
	_, err := NewImporter(src, store, ImportOptions{}).Run(ctx, "mallory")
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)

	m1, err := store.GetFace(ctx, "u1", "m1")
	require.NoError(t, err)
	require.NotNil(t, m1)
	assert.Equal(t, "s1", m1.PersonID)
	assert.Equal(t, "ph1", m1.AssetID)

	orphan, err := store.GetAsset(ctx, "mallory", "ph100")
	require.NoError(t, err)
	assert.Nil(t, orphan, "the failed batch is rolled back")
}
