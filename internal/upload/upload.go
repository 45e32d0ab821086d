// Package upload ships finished output files to object storage or a webhook.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/heavy-aggregator/internal/metrics"
)

// ErrUnknownProvider is returned for an unrecognised provider name.
var ErrUnknownProvider = errors.New("unknown upload provider")

// Uploader ships one file. A nil error means the upload succeeded.
type Uploader interface {
	Upload(ctx context.Context, path string) error
	Provider() string
}

// Config selects and configures the upload backend.
type Config struct {
	Provider string
	S3       S3Config
	GCS      GCSConfig
	Webhook  WebhookConfig
}

// New builds the configured Uploader. Provider "none" or "" returns nil.
func New(ctx context.Context, cfg Config) (Uploader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case "s3":
		u, err := NewS3(cfg.S3)
		if err != nil {
			return nil, err
		}
		return u, nil
	case "gcs":
		u, err := NewGCS(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return u, nil
	case "webhook":
		u, err := NewWebhook(cfg.Webhook)
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// All uploads every path, logging each outcome, and returns the paths that
// failed. One failure does not stop the rest.
func All(ctx context.Context, u Uploader, paths []string, logger *zap.Logger) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	var failed []string
	for _, path := range paths {
		err := u.Upload(ctx, path)
		metrics.ObserveUpload(u.Provider(), err)
		if err != nil {
			logger.Error("upload failed",
				zap.String("provider", u.Provider()),
				zap.String("file", path),
				zap.Error(err),
			)
			failed = append(failed, path)
			continue
		}
		logger.Info("uploaded", zap.String("provider", u.Provider()), zap.String("file", path))
	}
	return failed
}

// objectName joins prefix and the file's base name.
func objectName(prefix, path string) string {
	return prefix + filepath.Base(path)
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
