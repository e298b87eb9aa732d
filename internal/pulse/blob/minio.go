package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig addresses a MinIO (or any S3 compatible) bucket.
type MinioConfig struct {
	Endpoint  string // host:port or a full URL
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string

	// PublicBaseURL overrides the URL prefix handed to clients.
	PublicBaseURL string

	// CreateBucket makes the bucket when it is missing instead of failing.
	CreateBucket bool
}

// MinioStore is a Store backed by minio-go.
type MinioStore struct {
	client  *mclient.Client
	bucket  string
	baseURL string
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore creates the client and checks the bucket is reachable.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	const op = "blob/NewMinioStore"

	endpoint := cfg.Endpoint
	secure := strings.HasPrefix(endpoint, "https://")
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		if !cfg.CreateBucket {
			return nil, fmt.Errorf("%s: bucket %q does not exist", op, cfg.Bucket)
		}
		if err := client.MakeBucket(ctx, cfg.Bucket, mclient.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		base = scheme + "://" + endpoint + "/" + cfg.Bucket
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, baseURL: base}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	const op = "blob/minio/Put"

	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, r, size, mclient.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	const op = "blob/minio/Delete"

	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, mclient.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *MinioStore) URL(key string) string {
	return joinURL(s.baseURL, key)
}
