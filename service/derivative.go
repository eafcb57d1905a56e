package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"time"

	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/validators"

	"github.com/gabriel-vasile/mimetype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

type DerivativeKind string

const (
	KindThumbnail DerivativeKind = "thumbnail"
	KindPreview   DerivativeKind = "preview"
)

// Errors reported for skipped derivatives
const (
	SkipDerivativeKey = "derivative key"
	SkipUnsupported   = "unsupported format"
	SkipExists        = "already exists"
)

// DefaultMaxSourceBytes bounds how much of an original is read into memory.
const DefaultMaxSourceBytes = 64 << 20

var derivativesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "photo_derivatives_total",
		Help: "Derivative generation attempts by kind and result",
	},
	[]string{"kind", "result"},
)

type DerivativeResult struct {
	Kind          DerivativeKind `json:"kind"`
	Success       bool           `json:"success"`
	Skipped       bool           `json:"skipped,omitempty"`
	DerivativeKey string         `json:"derivativeKey,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Failed reports whether generation was attempted and did not succeed.
func (r DerivativeResult) Failed() bool {
	return !r.Success && !r.Skipped
}

func DerivativeKey(kind DerivativeKind, key string) string {
	if kind == KindPreview {
		return storage.PreviewKey(key)
	}

	return storage.ThumbnailKey(key)
}

// Generator renders thumbnails and previews for originals in the store.
// Generation is idempotent: an existing derivative is never rewritten.
type Generator struct {
	store          storage.Store
	maxSourceBytes int64
}

func NewGenerator(store storage.Store, maxSourceBytes int64) *Generator {
	if maxSourceBytes <= 0 {
		maxSourceBytes = DefaultMaxSourceBytes
	}

	return &Generator{
		store:          store,
		maxSourceBytes: maxSourceBytes,
	}
}

// source loads and decodes an original at most once, shared by the
// derivatives generated from it.
type source struct {
	once sync.Once
	img  image.Image
	err  error
}

func (g *Generator) Generate(ctx context.Context, kind DerivativeKind, key string) DerivativeResult {
	return g.generate(ctx, kind, key, &source{})
}

// GenerateAll produces the thumbnail and the preview concurrently. A failure
// of one does not affect the other.
func (g *Generator) GenerateAll(ctx context.Context, key string) []DerivativeResult {
	src := &source{}
	kinds := []DerivativeKind{KindThumbnail, KindPreview}
	results := make([]DerivativeResult, len(kinds))

	p := pool.New()
	for i, kind := range kinds {
		p.Go(func() {
			results[i] = g.generate(ctx, kind, key, src)
		})
	}
	p.Wait()

	return results
}

func (g *Generator) generate(ctx context.Context, kind DerivativeKind, key string, src *source) (res DerivativeResult) {
	res = DerivativeResult{
		Kind:          kind,
		DerivativeKey: DerivativeKey(kind, key),
	}

	defer func() {
		result := "success"
		switch {
		case res.Skipped:
			result = "skipped"
		case !res.Success:
			result = "failed"
		}

		derivativesTotal.WithLabelValues(string(kind), result).Inc()
	}()

	if storage.IsDerivativeKey(key) {
		return skip(res, SkipDerivativeKey)
	}

	if !validators.IsSupportedImage(key) {
		return skip(res, SkipUnsupported)
	}

	exists, err := g.store.Exists(ctx, res.DerivativeKey)
	if err != nil {
		return fail(res, fmt.Errorf("failed to check for existing %s, %w", kind, err))
	}

	if exists {
		return skip(res, SkipExists)
	}

	now := time.Now()

	src.once.Do(func() {
		src.img, src.err = g.load(ctx, key)
	})
	if src.err != nil {
		return fail(res, src.err)
	}

	var out image.Image
	if kind == KindPreview {
		out = MakePreview(src.img)
	} else {
		out = MakeThumbnail(src.img)
	}

	data, contentType, err := encodeDerivative(out, key)
	if err != nil {
		return fail(res, fmt.Errorf("failed to encode %s, %w", kind, err))
	}

	err = g.store.Put(ctx, res.DerivativeKey, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType:  contentType,
		CacheControl: storage.ImmutableCacheControl,
	})
	if err != nil {
		return fail(res, fmt.Errorf("failed to upload %s, %w", kind, err))
	}

	zap.L().Debug("Created derivative",
		zap.String("kind", string(kind)),
		zap.String("key", res.DerivativeKey),
		zap.Duration("took", time.Since(now)),
	)

	res.Success = true
	return res
}

func (g *Generator) load(ctx context.Context, key string) (image.Image, error) {
	rc, info, err := g.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to download original, %w", err)
	}
	defer rc.Close()

	if info.Size > g.maxSourceBytes {
		return nil, fmt.Errorf("original is %d bytes, limit is %d", info.Size, g.maxSourceBytes)
	}

	data, err := io.ReadAll(io.LimitReader(rc, g.maxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read original, %w", err)
	}

	if int64(len(data)) > g.maxSourceBytes {
		return nil, fmt.Errorf("original exceeds %d bytes", g.maxSourceBytes)
	}

	if mime := mimetype.Detect(data); !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("original is %s, not an image", mime.String())
	}

	img, err := decodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode original, %w", err)
	}

	return img, nil
}

func skip(res DerivativeResult, reason string) DerivativeResult {
	res.Skipped = true
	res.Error = reason
	return res
}

func fail(res DerivativeResult, err error) DerivativeResult {
	res.Error = err.Error()
	zap.L().Warn("Failed to create derivative", zap.String("kind", string(res.Kind)), zap.String("key", res.DerivativeKey), zap.Error(err))
	return res
}
