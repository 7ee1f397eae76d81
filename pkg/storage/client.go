// Package storage publishes ranking exports to S3.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pixelsort/imgrank/pkg/errors"
)

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Client provides S3 storage operations
type Client struct {
	s3Client ObjectAPI
	bucket   string
	prefix   string
}

// NewClient creates a new S3 client using the default credential chain.
// Keys are placed under prefix.
func NewClient(ctx context.Context, bucket, region, prefix string) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region, "prefix", prefix)

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(cfg)

	slog.Info("s3_client_created", "bucket", bucket)

	return NewClientWithAPI(s3Client, bucket, prefix), nil
}

// NewClientWithAPI wraps an existing S3 API implementation.
func NewClientWithAPI(api ObjectAPI, bucket, prefix string) *Client {
	return &Client{
		s3Client: api,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// Bucket returns the target bucket.
func (c *Client) Bucket() string {
	return c.bucket
}

// Key joins parts onto the client prefix.
func (c *Client) Key(parts ...string) string {
	return path.Join(append([]string{c.prefix}, parts...)...)
}

// UploadResult contains upload metadata
type UploadResult struct {
	Key    string
	SHA256 string
	Size   int64
}

// UploadFile uploads a local file to key and computes its SHA256
func (c *Client) UploadFile(ctx context.Context, key, localPath string) (*UploadResult, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		slog.Error("local_file_read_failed", "path", localPath, "error", err)
		return nil, errors.Wrap(err, "failed to read local file")
	}
	return c.Upload(ctx, key, bytes.NewReader(data))
}

// Upload uploads the content of r to key and computes its SHA256
func (c *Client) Upload(ctx context.Context, key string, r io.Reader) (*UploadResult, error) {
	slog.Info("s3_upload_start", "bucket", c.bucket, "s3_key", key)

	var buf bytes.Buffer
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(&buf, hash), r)
	if err != nil {
		slog.Error("s3_upload_read_failed", "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to read upload body")
	}
	checksum := hex.EncodeToString(hash.Sum(nil))

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
		Metadata:      map[string]string{"sha256": checksum},
	})
	if err != nil {
		slog.Error("s3_put_object_failed", "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to put object to S3")
	}

	slog.Info("s3_upload_complete",
		"s3_key", key,
		"size_kb", size/1024,
		"sha256", checksum[:16]+"...",
	)

	return &UploadResult{Key: key, SHA256: checksum, Size: size}, nil
}

// ListObjects lists all objects in the bucket with a given prefix
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	slog.Info("s3_list_start", "bucket", c.bucket, "prefix", prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}

		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	slog.Info("s3_list_complete", "prefix", prefix, "object_count", len(keys))

	return keys, nil
}
