package identity

import (
	"context"
	"testing"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_AdoptsFirstNameAndKeepsThumbnail(t *testing.T) {
	svc, store := newTestService(t, 0)
	ctx := context.Background()

	res, err := svc.Merge(ctx, "u1", "pb", []string{"pc", "pa"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pc", "pa"}, res.Merged)
	assert.Equal(t, "Carol", res.Target.Name, "first named source in caller order")
	assert.Equal(t, "f3", res.Target.Thumbnail, "target thumbnail wins")
	assert.Equal(t, []string{"f1", "f2", "f3", "f4", "f5"}, faceIDs(t, store, "pb"))

	for _, id := range []string{"pa", "pc"} {
		_, err := svc.GetPerson(ctx, "u1", id)
		assert.ErrorIs(t, err, apperr.ErrNotFound, id)
	}
}

func TestMerge_TargetNameWins(t *testing.T) {
	svc, _ := newTestService(t, 0)

	res, err := svc.Merge(context.Background(), "u1", "pa", []string{"pc"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.Target.Name)
}

func TestMerge_IntoEmptyPersonAdoptsThumbnail(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	empty, err := svc.CreatePerson(ctx, "u1", PersonUpdate{})
	require.NoError(t, err)

	res, err := svc.Merge(ctx, "u1", empty.ID, []string{"pb"})
	require.NoError(t, err)
	assert.Equal(t, "f3", res.Target.Thumbnail)
	assert.Equal(t, "", res.Target.Name)
	assert.False(t, res.Target.Protected, "a person that gained faces is no longer protected")
}

func TestMerge_Validation(t *testing.T) {
	svc, store := newTestService(t, 0)
	ctx := context.Background()

	tests := []struct {
		name    string
		target  string
		sources []string
		want    error
	}{
		{"no sources", "pa", nil, apperr.ErrInvalidArgument},
		{"blank source", "pa", []string{""}, apperr.ErrInvalidArgument},
		{"self merge", "pa", []string{"pb", "pa"}, apperr.ErrInvalidArgument},
		{"missing source", "pa", []string{"pb", "nope"}, apperr.ErrNotFound},
		{"missing target", "nope", []string{"pb"}, apperr.ErrNotFound},
		{"other owner's source", "pa", []string{"px"}, apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Merge(ctx, "u1", tt.target, tt.sources)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, []string{"f1", "f2"}, faceIDs(t, store, "pa"))
	assert.Equal(t, []string{"f3", "f4"}, faceIDs(t, store, "pb"), "rejected merges move nothing")
}

func TestMerge_DuplicateSourcesCollapse(t *testing.T) {
	svc, _ := newTestService(t, 0)

	res, err := svc.Merge(context.Background(), "u1", "pa", []string{"pb", "pb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pb"}, res.Merged)
}

func TestMerge_AlreadyMergedSourceIsNotFound(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	_, err := svc.Merge(ctx, "u1", "pa", []string{"pb"})
	require.NoError(t, err)

	_, err = svc.Merge(ctx, "u1", "pc", []string{"pb"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// Scenario: merging a missing source leaves the target unchanged.
func TestMerge_MissingSourceLeavesTargetUnchanged(t *testing.T) {
	svc, store := newTestService(t, 0)
	ctx := context.Background()

	before, err := svc.GetPerson(ctx, "u1", "pa")
	require.NoError(t, err)

	_, err = svc.Merge(ctx, "u1", "pa", []string{"ghost"})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	after, err := svc.GetPerson(ctx, "u1", "pa")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"f1", "f2"}, faceIDs(t, store, "pa"))
}

// Merging {B, C} into A yields the same face ownership regardless of source
// order or of merging one source at a time.
func TestMerge_FaceOwnershipIsOrderIndependent(t *testing.T) {
	plans := map[string][][]string{
		"together b,c":   {{"pb", "pc"}},
		"together c,b":   {{"pc", "pb"}},
		"sequential b,c": {{"pb"}, {"pc"}},
		"sequential c,b": {{"pc"}, {"pb"}},
	}

	var want []string
	for name, steps := range plans {
		t.Run(name, func(t *testing.T) {
			svc, store := newTestService(t, 0)
			for _, sources := range steps {
				_, err := svc.Merge(context.Background(), "u1", "pa", sources)
				require.NoError(t, err)
			}
			got := faceIDs(t, store, "pa")
			assert.Equal(t, []string{"f1", "f2", "f3", "f4", "f5"}, got)
			if want != nil {
				assert.Equal(t, want, got)
			}
			want = got
		})
	}
}

func TestMerge_InvalidatesStatistics(t *testing.T) {
	svc, _ := newTestService(t, 16)
	ctx := context.Background()

	stats, err := svc.Statistics(ctx, "u1", "pa")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.AssetCount)

	_, err = svc.Merge(ctx, "u1", "pa", []string{"pb"})
	require.NoError(t, err)

	stats, err = svc.Statistics(ctx, "u1", "pa")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.AssetCount)
}
