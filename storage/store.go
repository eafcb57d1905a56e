// Package storage defines the object store contract shared by the S3, R2 and
// MinIO backends, plus the key layout the rest of the service relies on.
package storage

import (
	"context"
	"io"
	"time"

	"bitwise74/photo-api/apperr"
)

// ErrNotFound is returned by every backend when the object does not exist.
var ErrNotFound error = &apperr.Error{Kind: apperr.KindNotFound, Message: "object not found"}

// MaxPresignExpiry is the longest lifetime S3 allows for a presigned URL.
const MaxPresignExpiry = 7 * 24 * time.Hour

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	CacheControl string
	ETag         string
	// Metadata holds user metadata with lowercased keys
	Metadata map[string]string
}

type PutOptions struct {
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

type ListOptions struct {
	Prefix            string
	Delimiter         string
	ContinuationToken string
	MaxKeys           int32
}

type ListPage struct {
	Objects []ObjectInfo
	// Folders are the common prefixes when a delimiter was given
	Folders   []string
	NextToken string
}

// Store is the subset of object storage operations the service needs.
type Store interface {
	BucketName() string
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) error
	Delete(ctx context.Context, keys ...string) error
	// ReplaceMetadata rewrites the object's metadata in place. Content type
	// and cache control are replaced too, so callers must pass them through.
	ReplaceMetadata(ctx context.Context, key string, opts PutOptions) error
	List(ctx context.Context, opts ListOptions) (*ListPage, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

// Walk lists every object under prefix, page by page, and calls fn for each
// one. It stops at the first error returned by fn.
func Walk(ctx context.Context, s Store, prefix string, fn func(ObjectInfo) error) error {
	token := ""

	for {
		page, err := s.List(ctx, ListOptions{
			Prefix:            prefix,
			ContinuationToken: token,
			MaxKeys:           1000,
		})
		if err != nil {
			return err
		}

		for _, obj := range page.Objects {
			if err := fn(obj); err != nil {
				return err
			}
		}

		if page.NextToken == "" {
			return nil
		}

		token = page.NextToken
	}
}

// ClampExpiry bounds a presign lifetime to (0, MaxPresignExpiry]. A zero or
// negative value yields def.
func ClampExpiry(ttl, def time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = def
	}

	return min(ttl, MaxPresignExpiry)
}
