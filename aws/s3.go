package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"bitwise74/photo-api/apperr"
	"bitwise74/photo-api/storage"
	"bitwise74/photo-api/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	minMultipartSize = 12 << 20
	maxDeleteBatch   = 1000
)

var _ storage.Store = (*S3Client)(nil)

func (s *S3Client) BucketName() string {
	return aws.ToString(s.Bucket)
}

func (s *S3Client) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	out, err := s.C.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("head", key, err)
	}

	return &storage.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		CacheControl: aws.ToString(out.CacheControl),
		ETag:         aws.ToString(out.ETag),
		Metadata:     storage.LowerKeys(out.Metadata),
	}, nil
}

func (s *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}

	return err == nil, err
}

func (s *S3Client) Get(ctx context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	out, err := s.C.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, mapError("get", key, err)
	}

	return out.Body, &storage.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		CacheControl: aws.ToString(out.CacheControl),
		ETag:         aws.ToString(out.ETag),
		Metadata:     storage.LowerKeys(out.Metadata),
	}, nil
}

// Put uploads body. Objects above minMultipartSize, or of unknown size, go
// through the multipart uploader.
func (s *S3Client) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket:   s.Bucket,
		Key:      aws.String(key),
		Body:     body,
		Metadata: opts.Metadata,
	}

	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}

	var err error
	if size < 0 || size > minMultipartSize {
		_, err = s.uploader.Upload(ctx, input)
	} else {
		input.ContentLength = aws.Int64(size)
		_, err = s.C.PutObject(ctx, input)
	}
	if err != nil {
		return mapError("put", key, err)
	}

	return nil
}

// Delete removes keys in batches. Missing keys are not an error.
func (s *S3Client) Delete(ctx context.Context, keys ...string) error {
	for _, chunk := range util.Chunk(keys, maxDeleteBatch) {
		objects := make([]types.ObjectIdentifier, 0, len(chunk))
		for _, k := range chunk {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.C.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: s.Bucket,
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return mapError("delete", chunk[0], err)
		}

		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return apperr.Upstream("s3 delete", fmt.Errorf("failed to delete %d objects, first %s: %s",
				len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}

	return nil
}

func (s *S3Client) ReplaceMetadata(ctx context.Context, key string, opts storage.PutOptions) error {
	input := &s3.CopyObjectInput{
		Bucket:            s.Bucket,
		Key:               aws.String(key),
		CopySource:        aws.String(copySource(s.BucketName(), key)),
		MetadataDirective: types.MetadataDirectiveReplace,
		Metadata:          opts.Metadata,
	}

	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}

	if _, err := s.C.CopyObject(ctx, input); err != nil {
		return mapError("copy", key, err)
	}

	return nil
}

func (s *S3Client) List(ctx context.Context, opts storage.ListOptions) (*storage.ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: s.Bucket,
		Prefix: aws.String(opts.Prefix),
	}

	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}

	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(opts.MaxKeys)
	}

	out, err := s.C.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, mapError("list", opts.Prefix, err)
	}

	page := &storage.ListPage{
		Objects: make([]storage.ObjectInfo, 0, len(out.Contents)),
		Folders: make([]string, 0, len(out.CommonPrefixes)),
	}

	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, storage.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         aws.ToString(obj.ETag),
		})
	}

	for _, p := range out.CommonPrefixes {
		page.Folders = append(page.Folders, aws.ToString(p.Prefix))
	}

	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}

	return page, nil
}

func (s *S3Client) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", apperr.Upstream("s3 presign get", err)
	}

	return req.URL, nil
}

func (s *S3Client) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	}

	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", apperr.Upstream("s3 presign put", err)
	}

	return req.URL, nil
}

// copySource URL-encodes every path segment of bucket/key.
func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}

	return bucket + "/" + strings.Join(parts, "/")
}

func mapError(op, key string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("s3 %s %q, %w", op, key, storage.ErrNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("s3 %s %q, %w", op, key, storage.ErrNotFound)
		}
	}

	return apperr.Upstream("s3 "+op, err)
}
