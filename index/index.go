// Package index keeps a queryable copy of each original image's attributes
// so folder listings can be served in name, date, size or tag count order
// with stable keyset pagination.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/model"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// BatchWriteLimit caps how many records go into one write
	BatchWriteLimit = 25

	DefaultLimit = 50
	MaxLimit     = 100
)

type SortBy string

const (
	SortName SortBy = "name"
	SortDate SortBy = "date"
	SortSize SortBy = "size"
	SortTags SortBy = "tags"
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

var sortColumns = map[SortBy]string{
	SortName: "name",
	SortDate: "last_modified",
	SortSize: "size",
	SortTags: "tag_count",
}

// ParseSortBy maps a query parameter onto a sort key, defaulting to name.
func ParseSortBy(s string) (SortBy, error) {
	if s == "" {
		return SortName, nil
	}

	if _, ok := sortColumns[SortBy(s)]; !ok {
		return "", apperr.Validation("sortBy must be one of name, date, size, tags")
	}

	return SortBy(s), nil
}

// ParseOrder maps a query parameter onto a direction, defaulting to asc.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "":
		return OrderAsc, nil
	case OrderAsc, OrderDesc:
		return Order(s), nil
	default:
		return "", apperr.Validation("order must be asc or desc")
	}
}

type QueryOptions struct {
	// Folder in index form, "/" for the bucket root
	Folder string
	SortBy SortBy
	Order  Order
	Limit  int
	Cursor string
}

type QueryPage struct {
	Items      []model.IndexRecord `json:"items"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

type Index struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Index {
	return &Index{db: db}
}

func upsertClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "object_key"}},
		UpdateAll: true,
	}
}

// Upsert creates or fully replaces the record for rec.Key.
func (x *Index) Upsert(ctx context.Context, rec *model.IndexRecord) error {
	err := x.db.WithContext(ctx).
		Clauses(upsertClause()).
		Create(rec).
		Error
	if err != nil {
		return apperr.Upstream("index upsert", err)
	}

	return nil
}

// BatchUpsert writes recs in sequential chunks of BatchWriteLimit. It stops
// at the first failing chunk and reports how many records were written.
func (x *Index) BatchUpsert(ctx context.Context, recs []model.IndexRecord) (int, error) {
	written := 0

	for _, chunk := range util.Chunk(recs, BatchWriteLimit) {
		err := x.db.WithContext(ctx).
			Clauses(upsertClause()).
			Create(&chunk).
			Error
		if err != nil {
			return written, apperr.Upstream("index batch upsert", err)
		}

		written += len(chunk)
	}

	return written, nil
}

func (x *Index) Get(ctx context.Context, key string) (*model.IndexRecord, error) {
	var rec model.IndexRecord

	err := x.db.WithContext(ctx).
		Where("object_key = ?", key).
		First(&rec).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("index record not found")
		}

		return nil, apperr.Upstream("index get", err)
	}

	return &rec, nil
}

// Delete removes the record for key. A missing record is not an error.
func (x *Index) Delete(ctx context.Context, key string) error {
	err := x.db.WithContext(ctx).
		Where("object_key = ?", key).
		Delete(&model.IndexRecord{}).
		Error
	if err != nil {
		return apperr.Upstream("index delete", err)
	}

	return nil
}

// KeysUnder returns every indexed key starting with prefix, in key order.
func (x *Index) KeysUnder(ctx context.Context, prefix string) ([]string, error) {
	var all []string

	err := x.db.WithContext(ctx).
		Model(&model.IndexRecord{}).
		Order("object_key").
		Pluck("object_key", &all).
		Error
	if err != nil {
		return nil, apperr.Upstream("index key scan", err)
	}

	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	return keys, nil
}

// DeleteKeys removes the records for keys in chunks of BatchWriteLimit and
// reports how many rows were deleted before any failure.
func (x *Index) DeleteKeys(ctx context.Context, keys []string) (int, error) {
	deleted := 0

	for _, chunk := range util.Chunk(keys, BatchWriteLimit) {
		res := x.db.WithContext(ctx).
			Where("object_key IN ?", chunk).
			Delete(&model.IndexRecord{})
		if res.Error != nil {
			return deleted, apperr.Upstream("index batch delete", res.Error)
		}

		deleted += int(res.RowsAffected)
	}

	return deleted, nil
}

// UpdateTags rewrites only the tag columns of an existing record.
func (x *Index) UpdateTags(ctx context.Context, key string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}

	res := x.db.WithContext(ctx).
		Model(&model.IndexRecord{}).
		Where("object_key = ?", key).
		Updates(map[string]any{
			"tags":      model.StringSlice(tags),
			"tag_count": len(tags),
		})
	if res.Error != nil {
		return apperr.Upstream("index update tags", res.Error)
	}

	if res.RowsAffected == 0 {
		return apperr.NotFound("index record not found")
	}

	return nil
}

// TagSets returns the tag list of every indexed record.
func (x *Index) TagSets(ctx context.Context) ([]model.StringSlice, error) {
	var sets []model.StringSlice

	err := x.db.WithContext(ctx).
		Model(&model.IndexRecord{}).
		Pluck("tags", &sets).
		Error
	if err != nil {
		return nil, apperr.Upstream("index tag scan", err)
	}

	return sets, nil
}

// Query returns one page of a folder in the requested order. Ties on the
// sort column are broken by key so pages never overlap or skip records.
func (x *Index) Query(ctx context.Context, opts QueryOptions) (*QueryPage, error) {
	if opts.SortBy == "" {
		opts.SortBy = SortName
	}

	if opts.Order == "" {
		opts.Order = OrderAsc
	}

	col, ok := sortColumns[opts.SortBy]
	if !ok {
		return nil, apperr.Validation("unknown sort key %q", opts.SortBy)
	}

	folder := opts.Folder
	if folder == "" {
		folder = storage.RootFolder
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	dir, op := "ASC", ">"
	if opts.Order == OrderDesc {
		dir, op = "DESC", "<"
	}

	q := x.db.WithContext(ctx).
		Model(&model.IndexRecord{}).
		Where("folder = ?", folder)

	if opts.Cursor != "" {
		c, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}

		v := c.value(opts.SortBy)
		q = q.Where(fmt.Sprintf("((%s %s ?) OR (%s = ? AND object_key %s ?))", col, op, col, op), v, v, c.Key)
	}

	var items []model.IndexRecord

	err := q.
		Order(col + " " + dir).
		Order("object_key " + dir).
		Limit(limit + 1).
		Find(&items).
		Error
	if err != nil {
		return nil, apperr.Upstream("index query", err)
	}

	page := &QueryPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = encodeCursor(opts.SortBy, page.Items[limit-1])
	}

	return page, nil
}
