package service

import (
	"context"
	"maps"
	"slices"
	"strings"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/index"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/validators"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// DefaultProbeWidth bounds concurrent metadata probes against the store.
const DefaultProbeWidth = 10

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type TagSource string

const (
	// TagSourceStore scans every object's metadata. Always current, O(n) requests.
	TagSourceStore TagSource = "store"
	// TagSourceIndex reads the index. Cheap but may lag behind the store.
	TagSourceIndex TagSource = "index"
)

func ParseTagSource(s string) (TagSource, error) {
	switch TagSource(s) {
	case "", TagSourceStore:
		return TagSourceStore, nil
	case TagSourceIndex:
		return TagSourceIndex, nil
	default:
		return "", apperr.Validation("source must be store or index")
	}
}

// TagRegistry reads and writes the tags stored in object metadata.
type TagRegistry struct {
	store      storage.Store
	index      *index.Index
	probeWidth int
}

func NewTagRegistry(store storage.Store, idx *index.Index, probeWidth int) *TagRegistry {
	if probeWidth <= 0 {
		probeWidth = DefaultProbeWidth
	}

	return &TagRegistry{
		store:      store,
		index:      idx,
		probeWidth: probeWidth,
	}
}

func (t *TagRegistry) GetTags(ctx context.Context, key string) ([]string, error) {
	if err := validators.ValidateKey(key); err != nil {
		return nil, err
	}

	info, err := t.store.Head(ctx, key)
	if err != nil {
		return nil, err
	}

	return storage.ParseTags(info.Metadata), nil
}

// SetTags normalizes tags and stores them on the object with a metadata
// replacing copy. Every other metadata entry, the content type and the
// cache control survive the copy. Concurrent writers race, the last one
// wins. The index is updated afterwards; a failure there is only logged.
func (t *TagRegistry) SetTags(ctx context.Context, key string, tags []string) ([]string, error) {
	if err := validators.ValidateKey(key); err != nil {
		return nil, err
	}

	normalized, err := validators.NormalizeTags(tags)
	if err != nil {
		return nil, err
	}

	info, err := t.store.Head(ctx, key)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string, len(info.Metadata)+1)
	for k, v := range info.Metadata {
		meta[k] = v
	}
	meta[storage.MetaTags] = storage.EncodeTags(normalized)

	err = t.store.ReplaceMetadata(ctx, key, storage.PutOptions{
		ContentType:  info.ContentType,
		CacheControl: info.CacheControl,
		Metadata:     meta,
	})
	if err != nil {
		return nil, err
	}

	if t.index != nil {
		t.indexTags(ctx, key, normalized)
	}

	return normalized, nil
}

// indexTags updates the tag columns, creating the whole row from a fresh
// HEAD when the image was never indexed.
func (t *TagRegistry) indexTags(ctx context.Context, key string, tags []string) {
	err := t.index.UpdateTags(ctx, key, tags)
	if apperr.Is(err, apperr.KindNotFound) {
		err = indexObject(ctx, t.store, t.index, key)
	}

	if err != nil {
		zap.L().Warn("Failed to update tags in index", zap.String("key", key), zap.Error(err))
	}
}

// AllTagCounts counts how many images carry each tag, most used first and
// alphabetical among equals. Objects whose metadata can't be read are left
// out rather than failing the whole scan.
func (t *TagRegistry) AllTagCounts(ctx context.Context, src TagSource) ([]TagCount, error) {
	var sets [][]string

	switch src {
	case TagSourceIndex:
		if t.index == nil {
			return nil, apperr.Validation("tag index is not available")
		}

		stored, err := t.index.TagSets(ctx)
		if err != nil {
			return nil, err
		}

		for _, s := range stored {
			sets = append(sets, s)
		}
	default:
		var err error
		sets, err = t.scanStore(ctx)
		if err != nil {
			return nil, err
		}
	}

	return countTags(sets), nil
}

func (t *TagRegistry) scanStore(ctx context.Context) ([][]string, error) {
	var keys []string

	err := storage.Walk(ctx, t.store, "", func(obj storage.ObjectInfo) error {
		if storage.IsDerivativeKey(obj.Key) || storage.IsFolderMarker(obj.Key) {
			return nil
		}

		keys = append(keys, obj.Key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[[]string]().WithMaxGoroutines(t.probeWidth)
	for _, key := range keys {
		p.Go(func() []string {
			info, err := t.store.Head(ctx, key)
			if err != nil {
				zap.L().Debug("Skipping object in tag scan", zap.String("key", key), zap.Error(err))
				return nil
			}

			return storage.ParseTags(info.Metadata)
		})
	}

	return p.Wait(), nil
}

func countTags(sets [][]string) []TagCount {
	counts := map[string]int{}
	for _, set := range sets {
		for _, tag := range set {
			counts[tag]++
		}
	}

	out := make([]TagCount, 0, len(counts))
	for _, tag := range slices.Sorted(maps.Keys(counts)) {
		out = append(out, TagCount{Tag: tag, Count: counts[tag]})
	}

	slices.SortStableFunc(out, func(a, b TagCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Tag, b.Tag)
	})

	return out
}
