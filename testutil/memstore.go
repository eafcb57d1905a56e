// Package testutil provides in-memory stand-ins for the object store and the
// database, shared by package tests
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"bitwise74/photo-api/storage"
)

type memObject struct {
	data []byte
	info storage.ObjectInfo
}

// MemStore is a thread-safe storage.Store kept entirely in memory.
type MemStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]memObject
	calls   map[string]int
	now     func() time.Time

	// Fail, when set, is consulted before every operation. A non-nil
	// return aborts the call with that error.
	Fail func(op, key string) error
}

var _ storage.Store = (*MemStore)(nil)

func NewMemStore(bucket string) *MemStore {
	return &MemStore{
		bucket:  bucket,
		objects: map[string]memObject{},
		calls:   map[string]int{},
		now:     time.Now,
	}
}

// Calls returns how many times op was invoked.
func (m *MemStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[op]
}

// Keys returns every stored key in lexical order.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Sorted(maps.Keys(m.objects))
}

// Data returns the stored bytes of key, or nil.
func (m *MemStore) Data(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.objects[key].data
}

// Seed stores an object directly without counting a call.
func (m *MemStore) Seed(key string, data []byte, opts storage.PutOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store(key, data, opts)
}

func (m *MemStore) store(key string, data []byte, opts storage.PutOptions) {
	meta := map[string]string{}
	for k, v := range opts.Metadata {
		meta[strings.ToLower(k)] = v
	}

	m.objects[key] = memObject{
		data: data,
		info: storage.ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: m.now(),
			ContentType:  opts.ContentType,
			CacheControl: opts.CacheControl,
			ETag:         fmt.Sprintf(`"%x"`, len(data)),
			Metadata:     meta,
		},
	}
}

func (m *MemStore) begin(op, key string) error {
	m.calls[op]++

	if m.Fail != nil {
		return m.Fail(op, key)
	}

	return nil
}

func (m *MemStore) BucketName() string {
	return m.bucket
}

func (m *MemStore) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("head", key); err != nil {
		return nil, err
	}

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("head %q, %w", key, storage.ErrNotFound)
	}

	info := obj.info
	info.Metadata = maps.Clone(obj.info.Metadata)
	return &info, nil
}

func (m *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("exists", key); err != nil {
		return false, err
	}

	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemStore) Get(ctx context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("get", key); err != nil {
		return nil, nil, err
	}

	obj, ok := m.objects[key]
	if !ok {
		return nil, nil, fmt.Errorf("get %q, %w", key, storage.ErrNotFound)
	}

	info := obj.info
	return io.NopCloser(bytes.NewReader(obj.data)), &info, nil
}

func (m *MemStore) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("put", key); err != nil {
		return err
	}

	m.store(key, data, opts)
	return nil
}

func (m *MemStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		if err := m.begin("delete", k); err != nil {
			return err
		}

		delete(m.objects, k)
	}

	return nil
}

func (m *MemStore) ReplaceMetadata(ctx context.Context, key string, opts storage.PutOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("copy", key); err != nil {
		return err
	}

	obj, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("copy %q, %w", key, storage.ErrNotFound)
	}

	m.store(key, obj.data, opts)
	return nil
}

// List follows S3 semantics: keys come back in lexical order, the
// continuation token is the last key or common prefix of the previous page.
func (m *MemStore) List(ctx context.Context, opts storage.ListOptions) (*storage.ListPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("list", opts.Prefix); err != nil {
		return nil, err
	}

	maxKeys := int(opts.MaxKeys)
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	page := &storage.ListPage{
		Objects: []storage.ObjectInfo{},
		Folders: []string{},
	}

	seen := map[string]bool{}
	count := 0
	last := ""

	for _, key := range slices.Sorted(maps.Keys(m.objects)) {
		if !strings.HasPrefix(key, opts.Prefix) {
			continue
		}

		marker := key
		folder := false
		if opts.Delimiter != "" {
			rest := key[len(opts.Prefix):]
			if i := strings.Index(rest, opts.Delimiter); i >= 0 {
				marker = opts.Prefix + rest[:i+len(opts.Delimiter)]
				folder = true
			}
		}

		if opts.ContinuationToken != "" && marker <= opts.ContinuationToken {
			continue
		}

		if folder && seen[marker] {
			continue
		}

		if count == maxKeys {
			page.NextToken = last
			break
		}

		if folder {
			seen[marker] = true
			page.Folders = append(page.Folders, marker)
		} else {
			page.Objects = append(page.Objects, m.objects[key].info)
		}

		count++
		last = marker
	}

	return page, nil
}

func (m *MemStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("presign_get", key); err != nil {
		return "", err
	}

	return fmt.Sprintf("https://%s.example.test/%s?X-Amz-Expires=%d", m.bucket, key, int(ttl.Seconds())), nil
}

func (m *MemStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin("presign_put", key); err != nil {
		return "", err
	}

	return fmt.Sprintf("https://%s.example.test/%s?X-Amz-Expires=%d&upload=1", m.bucket, key, int(ttl.Seconds())), nil
}
