package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// digestMetaKey is the user metadata key holding the hex SHA-256 of an uploaded archive.
const digestMetaKey = "chatwatch-sha256"

// S3Client is the slice of the S3 API the mirror needs.
type S3Client interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, meta map[string]string) error
	// HeadObject returns the object's user metadata, or ErrNotFound.
	HeadObject(ctx context.Context, bucket, key string) (map[string]string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// AWSS3Client implements S3Client with the AWS SDK.
type AWSS3Client struct {
	client       *s3.Client
	storageClass types.StorageClass
}

// NewAWSS3Client wraps client. storageClass may be empty.
func NewAWSS3Client(client *s3.Client, storageClass string) *AWSS3Client {
	return &AWSS3Client{client: client, storageClass: types.StorageClass(storageClass)}
}

func (c *AWSS3Client) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// PutObject uploads data with a SHA-256 checksum so S3 rejects a corrupted transfer.
func (c *AWSS3Client) PutObject(ctx context.Context, bucket, key string, data []byte, meta map[string]string) error {
	sum := sha256.Sum256(data)
	in := &s3.PutObjectInput{
		Bucket:         aws.String(bucket),
		Key:            aws.String(key),
		Body:           bytes.NewReader(data),
		ContentType:    aws.String("text/plain; charset=utf-8"),
		ChecksumSHA256: aws.String(base64.StdEncoding.EncodeToString(sum[:])),
		Metadata:       meta,
	}
	if c.storageClass != "" {
		in.StorageClass = c.storageClass
	}
	if _, err := c.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *AWSS3Client) HeadObject(ctx context.Context, bucket, key string) (map[string]string, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}
	return out.Metadata, nil
}

// ListObjects returns every key below prefix. A missing bucket lists as empty.
func (c *AWSS3Client) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	pages := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	keys := []string{}
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			var noSuchBucket *types.NoSuchBucket
			if errors.As(err, &noSuchBucket) {
				return []string{}, nil
			}
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
