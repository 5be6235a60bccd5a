// Package objectstore implements ports.ObjectStore on S3-compatible storage
// (AWS S3, Cloudflare R2, MinIO) through minio-go.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mediabatch/internal/core/domain"
)

const (
	defaultPartSize    = 16 << 20
	defaultContentType = "application/octet-stream"
)

// Config captures the object store connection.
type Config struct {
	EndpointURL     string
	Region          string
	UseSSL          bool
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicBaseURL is prefixed to keys to build public locators.
	PublicBaseURL string
	// PartSize bounds the memory used per multipart chunk for unknown-length streams.
	PartSize uint64
}

// minioAPI is the subset of *minio.Client used here.
type minioAPI interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FPutObject(ctx context.Context, bucket, key, path string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// S3Client is a stateless, concurrency-safe ports.ObjectStore.
type S3Client struct {
	client minioAPI
	cfg    Config
}

// NewS3Client creates a real S3 client from config.
func NewS3Client(cfg Config) (*S3Client, error) {
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("%w: endpoint URL is required", domain.ErrStorage)
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("%w: credentials are required", domain.ErrStorage)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", domain.ErrStorage)
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("%w: public base URL is required", domain.ErrStorage)
	}

	// Parse endpoint URL to extract host
	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint URL: %v", domain.ErrStorage, err)
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.EndpointURL
	}
	useSSL := cfg.UseSSL || u.Scheme == "https"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create minio client: %v", domain.ErrStorage, err)
	}
	return newS3Client(client, cfg), nil
}

func newS3Client(client minioAPI, cfg Config) *S3Client {
	if cfg.PartSize == 0 {
		cfg.PartSize = defaultPartSize
	}
	return &S3Client{client: client, cfg: cfg}
}

// EnsureBucket creates the configured bucket when it does not exist.
func (s *S3Client) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return classifyMinioError(err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

// Put streams r to key. A size of -1 uploads in PartSize chunks.
func (s *S3Client) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: object key is required", domain.ErrStorage)
	}
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size, minio.PutObjectOptions{
		ContentType: orDefault(contentType),
		PartSize:    s.cfg.PartSize,
	})
	if err != nil {
		return "", classifyMinioError(err)
	}
	return s.PublicURL(key), nil
}

// PutFile uploads the file at path to key.
func (s *S3Client) PutFile(ctx context.Context, key, path, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: object key is required", domain.ErrStorage)
	}
	_, err := s.client.FPutObject(ctx, s.cfg.Bucket, key, path, minio.PutObjectOptions{
		ContentType: orDefault(contentType),
		PartSize:    s.cfg.PartSize,
	})
	if err != nil {
		return "", classifyMinioError(err)
	}
	return s.PublicURL(key), nil
}

// Remove deletes key. S3 treats missing keys as success.
func (s *S3Client) Remove(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("%w: object key is required", domain.ErrStorage)
	}
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

// PublicURL joins the public base and key with exactly one separator.
func (s *S3Client) PublicURL(key string) string {
	return JoinURL(s.cfg.PublicBaseURL, key)
}

// JoinURL concatenates base and key, normalizing the slash between them.
func JoinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

func orDefault(contentType string) string {
	if contentType == "" {
		return defaultContentType
	}
	return contentType
}

// classifyMinioError wraps minio-go errors with domain.ErrStorage and a short reason.
func classifyMinioError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	reason := "request failed"
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchBucket":
		reason = "bucket not found"
	case "NoSuchKey":
		reason = "object not found"
	case "AccessDenied":
		reason = "permission denied"
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		reason = "credentials rejected"
	default:
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
			reason = "endpoint unreachable"
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, reason, err)
}
