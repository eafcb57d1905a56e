package service

import (
	"context"
	"testing"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/index"
	"bitwise74/photo-api/model"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBucket(t *testing.T) *testutil.MemStore {
	t.Helper()

	store := testutil.NewMemStore("photos")
	store.Seed("a.jpg", jpegBytes(t, 400, 300), storage.PutOptions{Metadata: map[string]string{"tags": `["sea"]`}})
	store.Seed("b.jpg", jpegBytes(t, 300, 400), storage.PutOptions{})
	store.Seed("c.png", pngBytes(t, 50, 50), storage.PutOptions{})
	store.Seed("notes.txt", []byte("n"), storage.PutOptions{})
	store.Seed("thumbnails/a.jpg", []byte("old"), storage.PutOptions{})
	store.Seed("x/", nil, storage.PutOptions{})

	return store
}

func TestReconcileDryRun(t *testing.T) {
	store := seedBucket(t)
	before := store.Keys()

	r := NewReconciler(store, NewGenerator(store, 0), index.New(testutil.NewDB(t)), 0)

	report, err := r.Run(context.Background(), ReconcileOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, &ReconcileReport{Scanned: 3}, report)
	assert.Equal(t, before, store.Keys())
	assert.Zero(t, store.Calls("put"))
}

func TestReconcileLimit(t *testing.T) {
	store := seedBucket(t)
	r := NewReconciler(store, NewGenerator(store, 0), index.New(testutil.NewDB(t)), 0)

	report, err := r.Run(context.Background(), ReconcileOptions{DryRun: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
}

func TestReconcileBackfills(t *testing.T) {
	ctx := context.Background()
	store := seedBucket(t)
	store.Seed("broken.jpg", []byte("garbage"), storage.PutOptions{})

	idx := index.New(testutil.NewDB(t))
	r := NewReconciler(store, NewGenerator(store, 0), idx, 2)

	report, err := r.Run(ctx, ReconcileOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 5, report.Generated)
	assert.Equal(t, 4, report.Indexed)
	assert.Equal(t, 1, report.Failed)

	// Existing derivatives are left alone
	assert.Equal(t, []byte("old"), store.Data("thumbnails/a.jpg"))
	assert.NotNil(t, store.Data("previews/c.png"))

	rec, err := idx.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"sea"}, []string(rec.Tags))

	// A second pass has nothing left to generate
	report, err = r.Run(ctx, ReconcileOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Generated)
	assert.Equal(t, 4, report.Indexed)
}

func TestReconcilePrefix(t *testing.T) {
	store := seedBucket(t)
	store.Seed("trip/d.jpg", jpegBytes(t, 20, 20), storage.PutOptions{})

	r := NewReconciler(store, NewGenerator(store, 0), index.New(testutil.NewDB(t)), 0)

	report, err := r.Run(context.Background(), ReconcileOptions{Prefix: "trip/"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 2, report.Generated)
}

func seedIndex(t *testing.T, idx *index.Index, keys ...string) {
	t.Helper()

	for _, key := range keys {
		rec := model.NewIndexRecord(storage.ObjectInfo{Key: key, Size: 1}, nil)
		require.NoError(t, idx.Upsert(context.Background(), &rec))
	}
}

func TestReconcilePrunesMissingObjects(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	store.Seed("a.png", pngBytes(t, 20, 20), storage.PutOptions{})

	idx := index.New(testutil.NewDB(t))
	seedIndex(t, idx, "gone.jpg")

	r := NewReconciler(store, NewGenerator(store, 0), idx, 0)

	report, err := r.Run(ctx, ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, &ReconcileReport{Scanned: 1, Generated: 2, Indexed: 1, Pruned: 1}, report)

	_, err = idx.Get(ctx, "gone.jpg")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	page, err := idx.Query(ctx, index.QueryOptions{Folder: "/"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a.png", page.Items[0].Key)
}

func TestReconcilePruneStaysUnderPrefix(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	store.Seed("trip/a.png", pngBytes(t, 20, 20), storage.PutOptions{})

	idx := index.New(testutil.NewDB(t))
	seedIndex(t, idx, "gone.jpg", "trip/gone.jpg")

	r := NewReconciler(store, NewGenerator(store, 0), idx, 0)

	report, err := r.Run(ctx, ReconcileOptions{Prefix: "trip/"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pruned)

	keys, err := idx.KeysUnder(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"gone.jpg", "trip/a.png"}, keys)
}

func TestReconcileSkipsPruneWhenLimited(t *testing.T) {
	ctx := context.Background()
	store := seedBucket(t)

	idx := index.New(testutil.NewDB(t))
	seedIndex(t, idx, "gone.jpg")

	r := NewReconciler(store, NewGenerator(store, 0), idx, 0)

	report, err := r.Run(ctx, ReconcileOptions{Limit: 1})
	require.NoError(t, err)
	assert.Zero(t, report.Pruned)

	_, err = idx.Get(ctx, "gone.jpg")
	assert.NoError(t, err)
}

func TestReconcileDryRunKeepsStaleRows(t *testing.T) {
	ctx := context.Background()
	store := seedBucket(t)

	idx := index.New(testutil.NewDB(t))
	seedIndex(t, idx, "gone.jpg")

	r := NewReconciler(store, NewGenerator(store, 0), idx, 0)

	report, err := r.Run(ctx, ReconcileOptions{DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, report.Pruned)

	_, err = idx.Get(ctx, "gone.jpg")
	assert.NoError(t, err)
}
