package service

import (
	"context"

	"bitwise74/photo-api/index"
	"bitwise74/photo-api/model"
	"bitwise74/photo-api/storage"
)

// recordFor reads the object's current attributes and tags and turns them
// into an index record.
func recordFor(ctx context.Context, store storage.Store, key string) (*model.IndexRecord, error) {
	info, err := store.Head(ctx, key)
	if err != nil {
		return nil, err
	}

	rec := model.NewIndexRecord(*info, storage.ParseTags(info.Metadata))
	return &rec, nil
}

// indexObject upserts the index record for key from a fresh HEAD.
func indexObject(ctx context.Context, store storage.Store, idx *index.Index, key string) error {
	rec, err := recordFor(ctx, store, key)
	if err != nil {
		return err
	}

	return idx.Upsert(ctx, rec)
}
