package service

import (
	"context"
	"errors"
	"testing"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/index"
	"bitwise74/photo-api/model"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTagsPreservesMetadata(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	idx := index.New(testutil.NewDB(t))

	store.Seed("a.jpg", []byte("img"), storage.PutOptions{
		ContentType:  "image/jpeg",
		CacheControl: "max-age=60",
		Metadata:     map[string]string{"camera": "x100", "tags": `["old"]`},
	})
	require.NoError(t, idx.Upsert(ctx, &model.IndexRecord{Key: "a.jpg", Name: "a.jpg", Folder: "/"}))

	reg := NewTagRegistry(store, idx, 0)

	got, err := reg.SetTags(ctx, "a.jpg", []string{"B", "a", "a", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	info, err := store.Head(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", info.ContentType)
	assert.Equal(t, "max-age=60", info.CacheControl)
	assert.Equal(t, "x100", info.Metadata["camera"])
	assert.Equal(t, []byte("img"), store.Data("a.jpg"))

	tags, err := reg.GetTags(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tags)

	rec, err := idx.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.TagCount)

	// Same set in another spelling stores the same result
	again, err := reg.SetTags(ctx, "a.jpg", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestSetTagsIndexesUnindexedImage(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	idx := index.New(testutil.NewDB(t))

	store.Seed("trip/a.jpg", []byte("img"), storage.PutOptions{ContentType: "image/jpeg"})

	_, err := NewTagRegistry(store, idx, 0).SetTags(ctx, "trip/a.jpg", []string{"sea", "sun"})
	require.NoError(t, err)

	rec, err := idx.Get(ctx, "trip/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "trip/", rec.Folder)
	assert.Equal(t, int64(3), rec.Size)
	assert.Equal(t, []string{"sea", "sun"}, []string(rec.Tags))
	assert.Equal(t, 2, rec.TagCount)
}

func TestSetTagsErrors(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	reg := NewTagRegistry(store, nil, 0)

	_, err := reg.SetTags(ctx, "../a.jpg", []string{"x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = reg.SetTags(ctx, "missing.jpg", []string{"x"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// Missing index row is not fatal
	store.Seed("solo.jpg", []byte("img"), storage.PutOptions{})
	reg = NewTagRegistry(store, index.New(testutil.NewDB(t)), 0)
	_, err = reg.SetTags(ctx, "solo.jpg", []string{"x"})
	assert.NoError(t, err)
}

func TestAllTagCountsFromStore(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")

	store.Seed("a.jpg", nil, storage.PutOptions{Metadata: map[string]string{"tags": `["beach","sunset"]`}})
	store.Seed("b.jpg", nil, storage.PutOptions{Metadata: map[string]string{"tags": `["beach"]`}})
	store.Seed("c.jpg", nil, storage.PutOptions{Metadata: map[string]string{"tags": `["alps"]`}})
	store.Seed("d.jpg", nil, storage.PutOptions{Metadata: map[string]string{"tags": `["beach"]`}})
	store.Seed("thumbnails/a.jpg", nil, storage.PutOptions{Metadata: map[string]string{"tags": `["beach"]`}})

	store.Fail = func(op, key string) error {
		if op == "head" && key == "d.jpg" {
			return errors.New("flaky")
		}
		return nil
	}

	counts, err := NewTagRegistry(store, nil, 2).AllTagCounts(ctx, TagSourceStore)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{
		{Tag: "beach", Count: 2},
		{Tag: "alps", Count: 1},
		{Tag: "sunset", Count: 1},
	}, counts)
}

func TestAllTagCountsFromIndex(t *testing.T) {
	ctx := context.Background()
	idx := index.New(testutil.NewDB(t))

	_, err := idx.BatchUpsert(ctx, []model.IndexRecord{
		{Key: "a.jpg", Name: "a.jpg", Folder: "/", Tags: model.StringSlice{"x", "y"}},
		{Key: "b.jpg", Name: "b.jpg", Folder: "/", Tags: model.StringSlice{"y"}},
		{Key: "c.jpg", Name: "c.jpg", Folder: "/"},
	})
	require.NoError(t, err)

	store := testutil.NewMemStore("photos")
	counts, err := NewTagRegistry(store, idx, 0).AllTagCounts(ctx, TagSourceIndex)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{Tag: "y", Count: 2}, {Tag: "x", Count: 1}}, counts)
	assert.Zero(t, store.Calls("list"))
}

func TestParseTagSource(t *testing.T) {
	s, err := ParseTagSource("")
	require.NoError(t, err)
	assert.Equal(t, TagSourceStore, s)

	_, err = ParseTagSource("cache")
	assert.Error(t, err)
}
