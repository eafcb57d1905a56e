// Package aws defines functions used to interact with the AWS API
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/spf13/viper"
)

// S3Client implements storage.Store on top of the S3 API. It is also used
// for S3 compatible providers such as R2.
type S3Client struct {
	C        *s3.Client
	Bucket   *string
	presign  *s3.PresignClient
	uploader *manager.Uploader
}

// NewS3 builds a client from the aws.* config keys and makes sure the bucket
// is reachable. Without static keys the default credential chain is used.
func NewS3(ctx context.Context) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(viper.GetString("aws.region")),
	}

	if key := viper.GetString("aws.access_key"); key != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			key,
			viper.GetString("aws.secret_access_key"),
			"",
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config, %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := viper.GetString("aws.endpoint"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return Wrap(ctx, client, viper.GetString("storage.bucket"))
}

// Wrap checks that bucket exists and returns a store backed by client.
func Wrap(ctx context.Context, client *s3.Client, bucket string) (*S3Client, error) {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var apiErr smithy.APIError

		if errors.As(err, &apiErr) {
			if apiErr.ErrorCode() == "NotFound" {
				return nil, fmt.Errorf("bucket '%s' does not exist", bucket)
			}
		}

		return nil, fmt.Errorf("failed to check if bucket exists, %w", err)
	}

	return New(client, bucket), nil
}

// New returns a store for bucket without probing it.
func New(client *s3.Client, bucket string) *S3Client {
	return &S3Client{
		C:       client,
		Bucket:  aws.String(bucket),
		presign: s3.NewPresignClient(client),
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.Concurrency = 5
			u.PartSize = 6 << 20
		}),
	}
}
