// Package minio implements the object store on a self-hosted MinIO server
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/storage"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Client struct {
	c      *miniogo.Client
	bucket string
}

var _ storage.Store = (*Client)(nil)

// New connects using the minio.* config keys and checks the bucket exists.
func New(ctx context.Context) (*Client, error) {
	endpoint := viper.GetString("minio.endpoint")

	c, err := miniogo.New(endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_key"), viper.GetString("minio.secret_key"), ""),
		Secure: viper.GetBool("minio.use_ssl"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client, %w", err)
	}

	bucket := viper.GetString("storage.bucket")

	ok, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists, %w", err)
	}

	if !ok {
		return nil, fmt.Errorf("bucket '%s' does not exist", bucket)
	}

	return &Client{c: c, bucket: bucket}, nil
}

func (m *Client) BucketName() string {
	return m.bucket
}

func (m *Client) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	info, err := m.c.StatObject(ctx, m.bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError("stat", key, err)
	}

	return toObjectInfo(info), nil
}

func (m *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Head(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}

	return err == nil, err
}

func (m *Client) Get(ctx context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	obj, err := m.c.GetObject(ctx, m.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, nil, mapError("get", key, err)
	}

	// GetObject is lazy, Stat surfaces a missing key
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, nil, mapError("get", key, err)
	}

	return obj, toObjectInfo(info), nil
}

func (m *Client) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) error {
	_, err := m.c.PutObject(ctx, m.bucket, key, body, size, miniogo.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return mapError("put", key, err)
	}

	return nil
}

func (m *Client) Delete(ctx context.Context, keys ...string) error {
	objects := make(chan miniogo.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- miniogo.ObjectInfo{Key: k}
	}
	close(objects)

	var first error
	failed := 0
	for e := range m.c.RemoveObjects(ctx, m.bucket, objects, miniogo.RemoveObjectsOptions{}) {
		if e.Err == nil || isNotFound(e.Err) {
			continue
		}

		failed++
		if first == nil {
			first = fmt.Errorf("%s, %w", e.ObjectName, e.Err)
		}
	}

	if first != nil {
		return apperr.Upstream("minio delete", fmt.Errorf("failed to delete %d objects, first %w", failed, first))
	}

	return nil
}

// ReplaceMetadata copies the object onto itself. MinIO takes standard
// headers such as Content-Type from the metadata map when replacing.
func (m *Client) ReplaceMetadata(ctx context.Context, key string, opts storage.PutOptions) error {
	meta := make(map[string]string, len(opts.Metadata)+2)
	for k, v := range opts.Metadata {
		meta[k] = v
	}

	if opts.ContentType != "" {
		meta["Content-Type"] = opts.ContentType
	}

	if opts.CacheControl != "" {
		meta["Cache-Control"] = opts.CacheControl
	}

	_, err := m.c.CopyObject(ctx,
		miniogo.CopyDestOptions{
			Bucket:          m.bucket,
			Object:          key,
			UserMetadata:    meta,
			ReplaceMetadata: true,
		},
		miniogo.CopySrcOptions{
			Bucket: m.bucket,
			Object: key,
		},
	)
	if err != nil {
		return mapError("copy", key, err)
	}

	return nil
}

// List emulates continuation tokens with StartAfter, the token being the
// last key or prefix returned on the previous page.
func (m *Client) List(ctx context.Context, opts storage.ListOptions) (*storage.ListPage, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	maxKeys := int(opts.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	page := &storage.ListPage{
		Objects: []storage.ObjectInfo{},
		Folders: []string{},
	}

	count := 0
	last := ""
	for obj := range m.c.ListObjects(ctx, m.bucket, miniogo.ListObjectsOptions{
		Prefix:     opts.Prefix,
		Recursive:  opts.Delimiter == "",
		StartAfter: opts.ContinuationToken,
	}) {
		if obj.Err != nil {
			return nil, mapError("list", opts.Prefix, obj.Err)
		}

		if count == maxKeys {
			page.NextToken = last
			break
		}

		if opts.Delimiter != "" && strings.HasSuffix(obj.Key, opts.Delimiter) && obj.Size == 0 && obj.ETag == "" {
			page.Folders = append(page.Folders, obj.Key)
		} else {
			page.Objects = append(page.Objects, *toObjectInfo(obj))
		}

		count++
		last = obj.Key
	}

	return page, nil
}

func (m *Client) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.c.PresignedGetObject(ctx, m.bucket, key, ttl, nil)
	if err != nil {
		return "", apperr.Upstream("minio presign get", err)
	}

	return u.String(), nil
}

// PresignPut ignores contentType, MinIO does not sign it into the URL.
func (m *Client) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	u, err := m.c.PresignedPutObject(ctx, m.bucket, key, ttl)
	if err != nil {
		return "", apperr.Upstream("minio presign put", err)
	}

	return u.String(), nil
}

func toObjectInfo(info miniogo.ObjectInfo) *storage.ObjectInfo {
	return &storage.ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		CacheControl: info.Metadata.Get("Cache-Control"),
		ETag:         info.ETag,
		Metadata:     storage.LowerKeys(info.UserMetadata),
	}
}

func isNotFound(err error) bool {
	resp := miniogo.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func mapError(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("minio %s %q, %w", op, key, storage.ErrNotFound)
	}

	return apperr.Upstream("minio "+op, err)
}
