package index

import (
	"context"
	"fmt"
	"testing"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/model"
	"bitwise74/photo-api/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func record(key, folder string, size, modified int64, tags ...string) model.IndexRecord {
	if tags == nil {
		tags = []string{}
	}

	return model.IndexRecord{
		Key:          key,
		Name:         key[len(folder):],
		Folder:       folder,
		Size:         size,
		LastModified: modified,
		Tags:         tags,
		TagCount:     len(tags),
	}
}

func keys(items []model.IndexRecord) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Key)
	}
	return out
}

func seed(t *testing.T, x *Index, recs ...model.IndexRecord) {
	t.Helper()

	for i := range recs {
		require.NoError(t, x.Upsert(context.Background(), &recs[i]))
	}
}

func TestQuerySizeDescending(t *testing.T) {
	ctx := context.Background()
	x := New(testutil.NewDB(t))

	seed(t, x,
		record("2024/a.jpg", "2024/", 10, 1),
		record("2024/b.jpg", "2024/", 50, 2),
		record("2024/c.jpg", "2024/", 30, 3),
		record("2025/d.jpg", "2025/", 99, 4),
	)

	page, err := x.Query(ctx, QueryOptions{Folder: "2024/", SortBy: SortSize, Order: OrderDesc, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024/b.jpg", "2024/c.jpg"}, keys(page.Items))
	require.NotEmpty(t, page.NextCursor)

	page, err = x.Query(ctx, QueryOptions{Folder: "2024/", SortBy: SortSize, Order: OrderDesc, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024/a.jpg"}, keys(page.Items))
	assert.Empty(t, page.NextCursor)
}

func TestQueryPaginationCoversTies(t *testing.T) {
	ctx := context.Background()
	x := New(testutil.NewDB(t))

	// Every record has the same size, only the key breaks ties
	var recs []model.IndexRecord
	for i := range 7 {
		recs = append(recs, record(fmt.Sprintf("p/%02d.jpg", i), "p/", 100, int64(i)))
	}
	seed(t, x, recs...)

	for _, order := range []Order{OrderAsc, OrderDesc} {
		t.Run(string(order), func(t *testing.T) {
			var got []string
			cursor := ""

			for {
				page, err := x.Query(ctx, QueryOptions{Folder: "p/", SortBy: SortSize, Order: order, Limit: 3, Cursor: cursor})
				require.NoError(t, err)
				got = append(got, keys(page.Items)...)

				if page.NextCursor == "" {
					break
				}
				cursor = page.NextCursor
			}

			assert.Len(t, got, 7)
			assert.Equal(t, got[0] < got[6], order == OrderAsc)
		})
	}
}

func TestQuerySortKeys(t *testing.T) {
	ctx := context.Background()
	x := New(testutil.NewDB(t))

	seed(t, x,
		record("banana.jpg", "/", 3, 300, "a"),
		record("apple.jpg", "/", 2, 100, "a", "b", "c"),
		record("cherry.jpg", "/", 1, 200),
	)

	tests := []struct {
		sortBy SortBy
		want   []string
	}{
		{SortName, []string{"apple.jpg", "banana.jpg", "cherry.jpg"}},
		{SortDate, []string{"apple.jpg", "cherry.jpg", "banana.jpg"}},
		{SortSize, []string{"cherry.jpg", "apple.jpg", "banana.jpg"}},
		{SortTags, []string{"cherry.jpg", "banana.jpg", "apple.jpg"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sortBy), func(t *testing.T) {
			page, err := x.Query(ctx, QueryOptions{SortBy: tt.sortBy})
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(page.Items))
		})
	}
}

func TestQueryRejectsBadCursor(t *testing.T) {
	x := New(testutil.NewDB(t))

	_, err := x.Query(context.Background(), QueryOptions{Cursor: "%%%"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestBatchUpsertChunks(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	x := New(db)

	var sizes []int
	err := db.Callback().Create().After("gorm:create").Register("test:chunk_sizes", func(tx *gorm.DB) {
		sizes = append(sizes, tx.Statement.ReflectValue.Len())
	})
	require.NoError(t, err)

	recs := make([]model.IndexRecord, 53)
	for i := range recs {
		recs[i] = record(fmt.Sprintf("bulk/%03d.jpg", i), "bulk/", int64(i), int64(i))
	}

	n, err := x.BatchUpsert(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 53, n)
	assert.Equal(t, []int{25, 25, 3}, sizes)

	var count int64
	require.NoError(t, db.Model(&model.IndexRecord{}).Count(&count).Error)
	assert.Equal(t, int64(53), count)
}

func TestKeysUnderAndDeleteKeys(t *testing.T) {
	ctx := context.Background()
	x := New(testutil.NewDB(t))

	seed(t, x,
		record("a.jpg", "/", 1, 1),
		record("trip/b.jpg", "trip/", 1, 1),
		record("trip/c.jpg", "trip/", 1, 1),
		record("tripod.jpg", "/", 1, 1),
	)

	keys, err := x.KeysUnder(ctx, "trip/")
	require.NoError(t, err)
	assert.Equal(t, []string{"trip/b.jpg", "trip/c.jpg"}, keys)

	n, err := x.DeleteKeys(ctx, []string{"trip/b.jpg", "missing.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err = x.KeysUnder(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "trip/c.jpg", "tripod.jpg"}, keys)

	n, err = x.DeleteKeys(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsertReplacesAndUpdateTags(t *testing.T) {
	ctx := context.Background()
	x := New(testutil.NewDB(t))

	rec := record("a.jpg", "/", 1, 1)
	seed(t, x, rec)

	rec.Size = 42
	seed(t, x, rec)

	got, err := x.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Size)

	require.NoError(t, x.UpdateTags(ctx, "a.jpg", []string{"beach", "sunset"}))
	got, err = x.Get(ctx, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, model.StringSlice{"beach", "sunset"}, got.Tags)
	assert.Equal(t, 2, got.TagCount)

	err = x.UpdateTags(ctx, "missing.jpg", []string{"x"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	sets, err := x.TagSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, model.StringSlice{"beach", "sunset"}, sets[0])

	require.NoError(t, x.Delete(ctx, "a.jpg"))
	require.NoError(t, x.Delete(ctx, "a.jpg"))

	_, err = x.Get(ctx, "a.jpg")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestParseSortAndOrder(t *testing.T) {
	s, err := ParseSortBy("")
	require.NoError(t, err)
	assert.Equal(t, SortName, s)

	_, err = ParseSortBy("color")
	assert.Error(t, err)

	o, err := ParseOrder("desc")
	require.NoError(t, err)
	assert.Equal(t, OrderDesc, o)

	_, err = ParseOrder("sideways")
	assert.Error(t, err)
}
