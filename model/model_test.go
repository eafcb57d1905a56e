package model

import (
	"testing"
	"time"

	"bitwise74/photo-api/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSlice(t *testing.T) {
	v, err := StringSlice{"a,b", "c"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a,b","c"]`, v)

	v, err = StringSlice(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var s StringSlice
	require.NoError(t, s.Scan([]byte(`["x","y"]`)))
	assert.Equal(t, StringSlice{"x", "y"}, s)

	require.NoError(t, s.Scan(nil))
	assert.Equal(t, StringSlice{}, s)

	require.NoError(t, s.Scan(""))
	assert.Equal(t, StringSlice{}, s)

	assert.Error(t, s.Scan(42))
}

func TestNewIndexRecord(t *testing.T) {
	mod := time.UnixMilli(1700000000123)
	rec := NewIndexRecord(storage.ObjectInfo{
		Key:          "2024/trip.jpg",
		Size:         2048,
		LastModified: mod,
		ContentType:  "image/jpeg",
	}, []string{"beach", "sunset"})

	assert.Equal(t, "trip.jpg", rec.Name)
	assert.Equal(t, "2024/", rec.Folder)
	assert.Equal(t, int64(1700000000123), rec.LastModified)
	assert.Equal(t, 2, rec.TagCount)
	assert.Equal(t, "thumbnails/2024/trip.jpg", rec.ThumbnailKey)
	assert.Equal(t, "previews/2024/trip.jpg", rec.PreviewKey)

	root := NewIndexRecord(storage.ObjectInfo{Key: "cat.png"}, nil)
	assert.Equal(t, storage.RootFolder, root.Folder)
	assert.Equal(t, 0, root.TagCount)
	assert.NotNil(t, root.Tags)
}

func TestShareTokenExpired(t *testing.T) {
	s := &ShareToken{ExpiresAt: 1000}
	assert.False(t, s.Expired(999))
	assert.False(t, s.Expired(1000))
	assert.True(t, s.Expired(1001))
}
