package upload

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures a Cloud Storage bucket.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSUploader writes files to a Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a client with Application Default Credentials unless opts
// say otherwise.
func NewGCS(ctx context.Context, cfg GCSConfig, opts ...option.ClientOption) (*GCSUploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSUploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Provider returns "gcs".
func (u *GCSUploader) Provider() string { return "gcs" }

// Upload streams the file to prefix + basename.
func (u *GCSUploader) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	name := objectName(u.prefix, path)
	writer := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, f); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", u.bucket, name, err)
	}
	return nil
}

// Close releases the client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
