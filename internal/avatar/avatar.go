// Package avatar stores profile pictures in S3-compatible object storage.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"folio/internal/config"
)

var (
	ErrTooLarge        = errors.New("avatar exceeds the size limit")
	ErrUnsupportedType = errors.New("avatar must be a JPEG, PNG, WebP or GIF image")
	ErrEmpty           = errors.New("avatar is empty")
	ErrDisabled        = errors.New("avatar storage is not configured")
)

const DefaultMaxBytes = 2 << 20

var allowedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// ObjectStore is the blob storage the Service writes to.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Delete(ctx context.Context, key string) error
}

// S3Store is an ObjectStore backed by an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a client from the default AWS credential chain. A custom
// endpoint (MinIO, LocalStack) switches to path-style addressing.
func NewS3Store(ctx context.Context, cfg config.AvatarConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// Service validates uploads and maps them to public URLs.
type Service struct {
	store    ObjectStore
	baseURL  string
	maxBytes int64
}

// NewService creates a Service. A nil store disables uploads.
func NewService(store ObjectStore, cfg config.AvatarConfig) *Service {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		store:    store,
		baseURL:  publicBaseURL(cfg),
		maxBytes: maxBytes,
	}
}

// MaxBytes is the upload size limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores the image read from r for owner and returns its public URL.
// The content type is sniffed from the bytes, never taken from the client.
func (s *Service) Upload(ctx context.Context, owner uuid.UUID, r io.Reader) (string, error) {
	if s.store == nil {
		return "", ErrDisabled
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read avatar: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedTypes...) {
		return "", ErrUnsupportedType
	}

	key := fmt.Sprintf("avatars/%s/%s%s", owner, uuid.New(), mt.Extension())
	if err := s.store.Put(ctx, key, mt.String(), data); err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

// Remove deletes the object behind url. URLs that do not point into this
// store are ignored.
func (s *Service) Remove(ctx context.Context, url string) error {
	if s.store == nil || url == "" {
		return nil
	}
	key, ok := s.KeyFromURL(url)
	if !ok {
		return nil
	}
	return s.store.Delete(ctx, key)
}

// KeyFromURL returns the object key for a URL produced by Upload.
func (s *Service) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || !strings.HasPrefix(key, "avatars/") {
		return "", false
	}
	return key, true
}

func publicBaseURL(cfg config.AvatarConfig) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}
