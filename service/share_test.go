package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/model"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time {
	return c.t
}

func newShareService(t *testing.T) (*ShareService, *fixedClock) {
	t.Helper()

	store := testutil.NewMemStore("photos")
	store.Seed("2024/trip.jpg", []byte("img"), storage.PutOptions{})

	clock := &fixedClock{t: time.UnixMilli(1_700_000_000_000)}
	s := NewShareService(testutil.NewDB(t), store, 30)
	s.now = clock.now

	return s, clock
}

func TestShareCreateResolve(t *testing.T) {
	ctx := context.Background()
	s, clock := newShareService(t)

	rec, err := s.Create(ctx, "2024/trip.jpg", 3, "user-1")
	require.NoError(t, err)
	assert.Len(t, rec.Token, 43)
	assert.Equal(t, clock.t.UnixMilli()+3*dayInMilliseconds, rec.ExpiresAt)

	got, err := s.Resolve(ctx, rec.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2024/trip.jpg", got.ImageKey)
	assert.Equal(t, "user-1", *got.CreatedBy)
}

func TestShareExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	s, clock := newShareService(t)

	rec, err := s.Create(ctx, "2024/trip.jpg", 1, "")
	require.NoError(t, err)
	assert.Nil(t, rec.CreatedBy)

	clock.t = time.UnixMilli(rec.ExpiresAt)
	got, err := s.Resolve(ctx, rec.Token)
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock.t = time.UnixMilli(rec.ExpiresAt + 1)
	got, err = s.Resolve(ctx, rec.Token)
	require.NoError(t, err)
	assert.Nil(t, got)

	unknown, err := s.Resolve(ctx, "no-such-token")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestShareClampsDays(t *testing.T) {
	ctx := context.Background()
	s, clock := newShareService(t)

	rec, err := s.Create(ctx, "2024/trip.jpg", 365, "")
	require.NoError(t, err)
	assert.Equal(t, clock.t.UnixMilli()+30*dayInMilliseconds, rec.ExpiresAt)

	rec, err = s.Create(ctx, "2024/trip.jpg", -4, "")
	require.NoError(t, err)
	assert.Equal(t, clock.t.UnixMilli()+dayInMilliseconds, rec.ExpiresAt)
}

func TestShareCreateMissingImage(t *testing.T) {
	s, _ := newShareService(t)

	_, err := s.Create(context.Background(), "nope.jpg", 1, "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = s.Create(context.Background(), "a//b.jpg", 1, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestShareTokenCollisionRetries(t *testing.T) {
	ctx := context.Background()
	s, _ := newShareService(t)

	first := bytes.Repeat([]byte{1}, ShareTokenBytes)
	second := bytes.Repeat([]byte{2}, ShareTokenBytes)

	// The first token is taken, the retry must move on to the second
	s.rand = bytes.NewReader(first)
	taken, err := s.Create(ctx, "2024/trip.jpg", 1, "")
	require.NoError(t, err)

	s.rand = io.MultiReader(bytes.NewReader(first), bytes.NewReader(second))
	rec, err := s.Create(ctx, "2024/trip.jpg", 1, "")
	require.NoError(t, err)
	assert.NotEqual(t, taken.Token, rec.Token)

	// Every attempt collides
	s.rand = bytes.NewReader(bytes.Repeat(first, MaxTokenAttempts))
	_, err = s.Create(ctx, "2024/trip.jpg", 1, "")
	assert.ErrorIs(t, err, ErrTokenSpaceExhausted)
}

func TestShareDeleteOwnership(t *testing.T) {
	ctx := context.Background()
	s, _ := newShareService(t)

	owned, err := s.Create(ctx, "2024/trip.jpg", 1, "alice")
	require.NoError(t, err)

	err = s.Delete(ctx, owned.Token, "bob")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	require.NoError(t, s.Delete(ctx, owned.Token, "alice"))

	err = s.Delete(ctx, owned.Token, "alice")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	anonymous, err := s.Create(ctx, "2024/trip.jpg", 1, "")
	require.NoError(t, err)
	assert.NoError(t, s.Delete(ctx, anonymous.Token, "bob"))
}

func TestShareListByCreator(t *testing.T) {
	ctx := context.Background()
	s, clock := newShareService(t)

	_, err := s.Create(ctx, "2024/trip.jpg", 1, "alice")
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Hour)
	newer, err := s.Create(ctx, "2024/trip.jpg", 5, "alice")
	require.NoError(t, err)

	_, err = s.Create(ctx, "2024/trip.jpg", 5, "bob")
	require.NoError(t, err)

	shares, err := s.ListByCreator(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, newer.Token, shares[0].Token)

	clock.t = clock.t.Add(2 * 24 * time.Hour)
	shares, err = s.ListByCreator(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []model.ShareToken{*newer}, shares)
}

func TestClampDays(t *testing.T) {
	assert.Equal(t, 1, ClampDays(0, 30))
	assert.Equal(t, 7, ClampDays(7, 30))
	assert.Equal(t, 30, ClampDays(31, 30))
}
