package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(w, h), nil))
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(w, h)))
	return buf.Bytes()
}

func decodeConfig(t *testing.T, data []byte) (image.Config, string) {
	t.Helper()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg, format
}

func TestPreviewDimensions(t *testing.T) {
	tests := []struct {
		w, h   int
		ww, wh int
	}{
		{3000, 2000, 1620, 1080},
		{4000, 1000, 1920, 480},
		{800, 600, 800, 600},
		{1920, 1080, 1920, 1080},
		{1080, 4000, 292, 1080},
	}

	for _, tt := range tests {
		w, h := PreviewDimensions(tt.w, tt.h)
		assert.Equal(t, tt.ww, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wh, h, "%dx%d", tt.w, tt.h)
	}
}

func TestGenerateThumbnailAndPreview(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	store.Seed("2024/trip.jpg", jpegBytes(t, 3000, 2000), storage.PutOptions{ContentType: "image/jpeg"})

	g := NewGenerator(store, 0)
	results := g.GenerateAll(ctx, "2024/trip.jpg")
	require.Len(t, results, 2)

	for _, r := range results {
		assert.True(t, r.Success, r.Error)
	}

	thumb, format := decodeConfig(t, store.Data("thumbnails/2024/trip.jpg"))
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 200, thumb.Width)
	assert.Equal(t, 200, thumb.Height)

	preview, _ := decodeConfig(t, store.Data("previews/2024/trip.jpg"))
	assert.Equal(t, 1620, preview.Width)
	assert.Equal(t, 1080, preview.Height)

	info, err := store.Head(ctx, "thumbnails/2024/trip.jpg")
	require.NoError(t, err)
	assert.Equal(t, storage.ImmutableCacheControl, info.CacheControl)
	assert.Equal(t, "image/jpeg", info.ContentType)

	// The original is downloaded once for both derivatives
	assert.Equal(t, 1, store.Calls("get"))
}

func TestGenerateKeepsPNG(t *testing.T) {
	store := testutil.NewMemStore("photos")
	store.Seed("cat.png", pngBytes(t, 300, 100), storage.PutOptions{ContentType: "image/png"})

	res := NewGenerator(store, 0).Generate(context.Background(), KindThumbnail, "cat.png")
	require.True(t, res.Success, res.Error)

	_, format := decodeConfig(t, store.Data("thumbnails/cat.png"))
	assert.Equal(t, "png", format)
}

func TestGenerateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	store.Seed("a.jpg", jpegBytes(t, 400, 300), storage.PutOptions{})

	g := NewGenerator(store, 0)
	first := g.Generate(ctx, KindThumbnail, "a.jpg")
	require.True(t, first.Success)

	puts := store.Calls("put")

	second := g.Generate(ctx, KindThumbnail, "a.jpg")
	assert.True(t, second.Skipped)
	assert.False(t, second.Success)
	assert.Equal(t, SkipExists, second.Error)
	assert.Equal(t, puts, store.Calls("put"))
}

func TestGenerateSkips(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	g := NewGenerator(store, 0)

	res := g.Generate(ctx, KindThumbnail, "thumbnails/a.jpg")
	assert.True(t, res.Skipped)
	assert.Equal(t, SkipDerivativeKey, res.Error)

	res = g.Generate(ctx, KindPreview, "notes.txt")
	assert.True(t, res.Skipped)
	assert.Equal(t, SkipUnsupported, res.Error)

	assert.Zero(t, store.Calls("get"))
}

func TestGeneratePartialFailure(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore("photos")
	store.Seed("a.jpg", jpegBytes(t, 400, 300), storage.PutOptions{})

	store.Fail = func(op, key string) error {
		if op == "put" && key == "previews/a.jpg" {
			return errors.New("disk full")
		}
		return nil
	}

	results := NewGenerator(store, 0).GenerateAll(ctx, "a.jpg")
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Failed())
	assert.Contains(t, results[1].Error, "disk full")
	assert.NotNil(t, store.Data("thumbnails/a.jpg"))
}

func TestGenerateRejectsNonImage(t *testing.T) {
	store := testutil.NewMemStore("photos")
	store.Seed("fake.jpg", []byte("definitely not a jpeg"), storage.PutOptions{})

	res := NewGenerator(store, 0).Generate(context.Background(), KindThumbnail, "fake.jpg")
	assert.True(t, res.Failed())
	assert.Contains(t, res.Error, "not an image")
}

func TestGenerateRespectsSourceLimit(t *testing.T) {
	store := testutil.NewMemStore("photos")
	store.Seed("big.jpg", jpegBytes(t, 400, 300), storage.PutOptions{})

	res := NewGenerator(store, 16).Generate(context.Background(), KindThumbnail, "big.jpg")
	assert.True(t, res.Failed())
}
