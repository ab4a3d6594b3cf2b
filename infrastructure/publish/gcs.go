package publish

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures the Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string // optional; application default credentials when empty
	Endpoint        string // optional; emulators
}

// GCSBucket writes objects to Google Cloud Storage.
type GCSBucket struct {
	client *gcs.Client
	bucket string
}

// NewGCSBucket creates a GCS bucket client.
func NewGCSBucket(ctx context.Context, cfg GCSConfig) (*GCSBucket, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSBucket{client: client, bucket: cfg.Bucket}, nil
}

// Name implements Bucket.
func (b *GCSBucket) Name() string {
	return "gs://" + b.bucket
}

// Put implements Bucket.
func (b *GCSBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

// Close closes the GCS client.
func (b *GCSBucket) Close() error {
	return b.client.Close()
}
