package service

import (
	"context"
	"errors"
	"testing"

	"bitwise74/photo-api/index"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEvent = `{
  "Records": [
    {"eventName": "ObjectCreated:Put", "s3": {"bucket": {"name": "photos"}, "object": {"key": "2024/my+trip%21.jpg", "size": 10}}},
    {"eventName": "ObjectRemoved:Delete", "s3": {"bucket": {"name": "photos"}, "object": {"key": "gone.jpg"}}},
    {"eventName": "ObjectCreated:CompleteMultipartUpload", "s3": {"bucket": {"name": "photos"}, "object": {"key": "bad%zzkey.jpg"}}}
  ]
}`

func TestParseS3Event(t *testing.T) {
	records, err := ParseS3Event([]byte(sampleEvent))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "photos", records[0].Bucket)
	assert.Equal(t, "2024/my trip!.jpg", records[0].Key)
	assert.Equal(t, int64(10), records[0].Size)

	// Undecodable keys are passed through unchanged
	assert.Equal(t, "bad%zzkey.jpg", records[1].Key)

	_, err = ParseS3Event([]byte("{not json"))
	assert.Error(t, err)
}

func newRouter(t *testing.T, store *testutil.MemStore) (*EventRouter, *index.Index) {
	t.Helper()

	idx := index.New(testutil.NewDB(t))
	return NewEventRouter(store, NewGenerator(store, 0), idx, 4), idx
}

func TestHandleBatchFiltersRecords(t *testing.T) {
	store := testutil.NewMemStore("photos")
	store.Seed("a.jpg", jpegBytes(t, 300, 300), storage.PutOptions{})
	router, idx := newRouter(t, store)

	report := router.HandleBatch(context.Background(), []EventRecord{
		{Bucket: "photos", Key: "a.jpg"},
		{Bucket: "other", Key: "a.jpg"},
		{Bucket: "photos", Key: "thumbnails/a.jpg"},
		{Bucket: "photos", Key: "notes.txt"},
		{Bucket: "photos", Key: "2024/"},
	})

	assert.Equal(t, BatchReport{Received: 5, Processed: 1, Skipped: 4}, report)

	rec, err := idx.Get(context.Background(), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, storage.RootFolder, rec.Folder)
}

func TestHandleBatchSurvivesFailures(t *testing.T) {
	store := testutil.NewMemStore("photos")
	store.Seed("ok.jpg", jpegBytes(t, 300, 300), storage.PutOptions{})
	store.Seed("broken.jpg", []byte("garbage"), storage.PutOptions{})
	store.Seed("panics.jpg", jpegBytes(t, 300, 300), storage.PutOptions{})

	store.Fail = func(op, key string) error {
		if key == "thumbnails/panics.jpg" {
			panic("store exploded")
		}
		if op == "head" && key == "missing.jpg" {
			return errors.New("timeout")
		}
		return nil
	}

	router, _ := newRouter(t, store)

	report := router.HandleBatch(context.Background(), []EventRecord{
		{Key: "ok.jpg"},
		{Key: "broken.jpg"},
		{Key: "panics.jpg"},
		{Key: "missing.jpg"},
	})

	assert.Equal(t, 4, report.Received)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 3, report.Failed)
}

func TestHandleMalformedMessage(t *testing.T) {
	store := testutil.NewMemStore("photos")
	router, _ := newRouter(t, store)

	assert.Equal(t, BatchReport{}, handleEventMessage(router, []byte("nope")))

	store.Seed("2024/trip.jpg", jpegBytes(t, 640, 480), storage.PutOptions{})
	report := handleEventMessage(router, []byte(`{"Records":[{"eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"photos"},"object":{"key":"2024/trip.jpg"}}}]}`))
	assert.Equal(t, 1, report.Processed)
}

func TestUploadEventDeleteScenario(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	router, idx := newRouter(t, store)
	images := NewImageService(store, idx, NewGenerator(store, 0), 0, 0)

	store.Seed("2024/trip.jpg", jpegBytes(t, 2400, 1600), storage.PutOptions{ContentType: "image/jpeg"})

	report := router.HandleBatch(ctx, []EventRecord{{Bucket: "photos", Key: "2024/trip.jpg"}})
	require.Equal(t, 1, report.Processed)

	assert.Equal(t, []string{"2024/trip.jpg", "previews/2024/trip.jpg", "thumbnails/2024/trip.jpg"}, store.Keys())

	rec, err := idx.Get(ctx, "2024/trip.jpg")
	require.NoError(t, err)
	assert.Equal(t, "2024/", rec.Folder)

	require.NoError(t, images.Delete(ctx, "2024/trip.jpg"))
	assert.Empty(t, store.Keys())

	_, err = idx.Get(ctx, "2024/trip.jpg")
	assert.Error(t, err)
}
