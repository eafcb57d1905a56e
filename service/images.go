package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/index"
	"bitwise74/photo-api/model"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/validators"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	DefaultURLExpiry = time.Hour
	DefaultPageSize  = 100
	MaxPageSize      = 1000

	folderContentType = "application/x-directory"
)

type ImageListing struct {
	Prefix    string        `json:"prefix"`
	Folders   []string      `json:"folders"`
	Images    []model.Image `json:"images"`
	NextToken string        `json:"nextToken,omitempty"`
}

type QueryListing struct {
	Images     []model.Image `json:"images"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

type UploadRequest struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Tags        []string
}

// ImageService is the storage facing half of the REST API. Every mutation
// writes the store first and the index second; the store is the source of
// truth, so index failures are logged and never fail the request.
type ImageService struct {
	store      storage.Store
	index      *index.Index
	gen        *Generator
	probeWidth int
	urlTTL     time.Duration
}

func NewImageService(store storage.Store, idx *index.Index, gen *Generator, probeWidth int, urlTTL time.Duration) *ImageService {
	if probeWidth <= 0 {
		probeWidth = DefaultProbeWidth
	}

	return &ImageService{
		store:      store,
		index:      idx,
		gen:        gen,
		probeWidth: probeWidth,
		urlTTL:     storage.ClampExpiry(urlTTL, DefaultURLExpiry),
	}
}

// List returns one page of a folder straight from the store, with each
// image's tags and presigned URLs. Derivative folders are hidden at the
// bucket root.
func (s *ImageService) List(ctx context.Context, prefix, token string, limit int) (*ImageListing, error) {
	p, err := validators.ValidatePrefix(prefix)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}

	page, err := s.store.List(ctx, storage.ListOptions{
		Prefix:            p,
		Delimiter:         "/",
		ContinuationToken: token,
		MaxKeys:           int32(min(limit, MaxPageSize)),
	})
	if err != nil {
		return nil, err
	}

	listing := &ImageListing{
		Prefix:    p,
		Folders:   visibleFolders(page.Folders),
		NextToken: page.NextToken,
	}

	objects := make([]storage.ObjectInfo, 0, len(page.Objects))
	for _, obj := range page.Objects {
		if obj.Key == p || storage.IsFolderMarker(obj.Key) || !validators.IsSupportedImage(obj.Key) {
			continue
		}

		objects = append(objects, obj)
	}

	images := make([]model.Image, len(objects))

	wp := pool.New().WithMaxGoroutines(s.probeWidth)
	for i, obj := range objects {
		wp.Go(func() {
			tags := []string{}

			info, err := s.store.Head(ctx, obj.Key)
			if err != nil {
				zap.L().Debug("Failed to read image metadata", zap.String("key", obj.Key), zap.Error(err))
			} else {
				tags = storage.ParseTags(info.Metadata)
			}

			images[i] = s.imageView(ctx, obj.Key, obj.Size, obj.LastModified.UnixMilli(), tags)
		})
	}
	wp.Wait()

	listing.Images = images
	return listing, nil
}

// Query serves a folder listing from the index in the requested order.
func (s *ImageService) Query(ctx context.Context, prefix string, opts index.QueryOptions) (*QueryListing, error) {
	p, err := validators.ValidatePrefix(prefix)
	if err != nil {
		return nil, err
	}

	opts.Folder = p
	if p == "" {
		opts.Folder = storage.RootFolder
	}

	page, err := s.index.Query(ctx, opts)
	if err != nil {
		return nil, err
	}

	images := make([]model.Image, 0, len(page.Items))
	for _, rec := range page.Items {
		images = append(images, s.imageView(ctx, rec.Key, rec.Size, rec.LastModified, rec.Tags))
	}

	return &QueryListing{Images: images, NextCursor: page.NextCursor}, nil
}

// View returns one image with its tags and presigned URLs.
func (s *ImageService) View(ctx context.Context, key string) (*model.Image, error) {
	if err := validators.ValidateKey(key); err != nil {
		return nil, err
	}

	info, err := s.store.Head(ctx, key)
	if err != nil {
		return nil, err
	}

	img := s.imageView(ctx, key, info.Size, info.LastModified.UnixMilli(), storage.ParseTags(info.Metadata))
	return &img, nil
}

// imageView presigns URLs without probing whether the derivatives exist.
// A missing derivative yields a URL that 404s until it is generated.
func (s *ImageService) imageView(ctx context.Context, key string, size, modified int64, tags []string) model.Image {
	img := model.Image{
		Key:          key,
		Name:         storage.NameOf(key),
		Folder:       storage.FolderOf(key),
		Size:         size,
		LastModified: modified,
		Tags:         tags,
	}

	if img.Tags == nil {
		img.Tags = []string{}
	}

	var err error
	if img.URL, err = s.store.PresignGet(ctx, key, s.urlTTL); err != nil {
		zap.L().Warn("Failed to presign image", zap.String("key", key), zap.Error(err))
	}

	if img.ThumbnailURL, err = s.store.PresignGet(ctx, storage.ThumbnailKey(key), s.urlTTL); err != nil {
		zap.L().Warn("Failed to presign thumbnail", zap.String("key", key), zap.Error(err))
	}

	if img.PreviewURL, err = s.store.PresignGet(ctx, storage.PreviewKey(key), s.urlTTL); err != nil {
		zap.L().Warn("Failed to presign preview", zap.String("key", key), zap.Error(err))
	}

	return img
}

// DownloadURL presigns a GET for an existing object.
func (s *ImageService) DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if err := validators.ValidateKey(key); err != nil {
		return "", time.Time{}, err
	}

	if _, err := s.store.Head(ctx, key); err != nil {
		return "", time.Time{}, err
	}

	ttl = storage.ClampExpiry(ttl, s.urlTTL)

	url, err := s.store.PresignGet(ctx, key, ttl)
	if err != nil {
		return "", time.Time{}, err
	}

	return url, time.Now().Add(ttl), nil
}

// UploadURL presigns a PUT so clients can upload straight to the store.
// The object shows up in the index once its creation event is handled.
func (s *ImageService) UploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, time.Time, error) {
	if err := validators.ValidateKey(key); err != nil {
		return "", time.Time{}, err
	}

	if storage.IsDerivativeKey(key) {
		return "", time.Time{}, apperr.Validation("key must not be under a derivative prefix")
	}

	if !validators.IsSupportedImage(key) {
		return "", time.Time{}, apperr.Validation("unsupported image format")
	}

	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return "", time.Time{}, apperr.Validation("content type must be an image type")
	}

	ttl = storage.ClampExpiry(ttl, s.urlTTL)

	url, err := s.store.PresignPut(ctx, key, contentType, ttl)
	if err != nil {
		return "", time.Time{}, err
	}

	return url, time.Now().Add(ttl), nil
}

// Upload stores an image sent through the API and indexes it right away.
func (s *ImageService) Upload(ctx context.Context, req UploadRequest) (*model.IndexRecord, error) {
	if err := validators.ValidateKey(req.Key); err != nil {
		return nil, err
	}

	if storage.IsDerivativeKey(req.Key) {
		return nil, apperr.Validation("key must not be under a derivative prefix")
	}

	tags, err := validators.NormalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}

	err = s.store.Put(ctx, req.Key, req.Body, req.Size, storage.PutOptions{
		ContentType: req.ContentType,
		Metadata:    map[string]string{storage.MetaTags: storage.EncodeTags(tags)},
	})
	if err != nil {
		return nil, err
	}

	rec, err := recordFor(ctx, s.store, req.Key)
	if err != nil {
		zap.L().Warn("Failed to read uploaded image, indexing request attributes", zap.String("key", req.Key), zap.Error(err))

		fallback := model.NewIndexRecord(storage.ObjectInfo{
			Key:          req.Key,
			Size:         req.Size,
			LastModified: time.Now(),
			ContentType:  req.ContentType,
		}, tags)
		rec = &fallback
	}

	if err := s.index.Upsert(ctx, rec); err != nil {
		zap.L().Warn("Failed to index uploaded image", zap.String("key", req.Key), zap.Error(err))
	}

	return rec, nil
}

// Delete removes an original with both derivatives and its index record.
func (s *ImageService) Delete(ctx context.Context, key string) error {
	if err := validators.ValidateKey(key); err != nil {
		return err
	}

	if storage.IsDerivativeKey(key) {
		return apperr.Validation("derivatives are removed together with their original")
	}

	if _, err := s.store.Head(ctx, key); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, key, storage.ThumbnailKey(key), storage.PreviewKey(key)); err != nil {
		return err
	}

	if err := s.index.Delete(ctx, key); err != nil {
		zap.L().Warn("Failed to remove image from index", zap.String("key", key), zap.Error(err))
	}

	return nil
}

// GenerateDerivatives (re)runs the derivative generator for one original.
func (s *ImageService) GenerateDerivatives(ctx context.Context, key string) ([]DerivativeResult, error) {
	if err := validators.ValidateKey(key); err != nil {
		return nil, err
	}

	if _, err := s.store.Head(ctx, key); err != nil {
		return nil, err
	}

	return s.gen.GenerateAll(ctx, key), nil
}

// Folders lists the sub-folders directly under prefix.
func (s *ImageService) Folders(ctx context.Context, prefix string) ([]string, error) {
	p, err := validators.ValidatePrefix(prefix)
	if err != nil {
		return nil, err
	}

	folders := []string{}
	token := ""

	for {
		page, err := s.store.List(ctx, storage.ListOptions{
			Prefix:            p,
			Delimiter:         "/",
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}

		folders = append(folders, visibleFolders(page.Folders)...)

		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	return folders, nil
}

// CreateFolder writes a zero-byte marker so an empty folder shows up in
// listings.
func (s *ImageService) CreateFolder(ctx context.Context, prefix string) (string, error) {
	p, err := validators.ValidatePrefix(prefix)
	if err != nil {
		return "", err
	}

	if p == "" {
		return "", apperr.Validation("folder name is required")
	}

	if storage.IsDerivativeKey(p) {
		return "", apperr.Validation("folder name is reserved")
	}

	err = s.store.Put(ctx, p, bytes.NewReader(nil), 0, storage.PutOptions{ContentType: folderContentType})
	if err != nil {
		return "", fmt.Errorf("failed to create folder marker, %w", err)
	}

	return p, nil
}

func visibleFolders(folders []string) []string {
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		if f == storage.ThumbnailPrefix || f == storage.PreviewPrefix {
			continue
		}

		out = append(out, f)
	}

	return slices.Clip(out)
}
