// Package app wires long-lived harvester services from configuration, acting
// as a dependency injection container for the cmd layer.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/heavy-aggregator/internal/checkpoint"
	"github.com/JakeFAU/heavy-aggregator/internal/config"
	collyfetcher "github.com/JakeFAU/heavy-aggregator/internal/fetcher/colly"
	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
	"github.com/JakeFAU/heavy-aggregator/internal/orchestrator"
	"github.com/JakeFAU/heavy-aggregator/internal/policy/ratelimit"
	"github.com/JakeFAU/heavy-aggregator/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/heavy-aggregator/internal/publisher/pubsub"
	"github.com/JakeFAU/heavy-aggregator/internal/source"
	"github.com/JakeFAU/heavy-aggregator/internal/source/heavyathlete"
	"github.com/JakeFAU/heavy-aggregator/internal/source/nasga"
	"github.com/JakeFAU/heavy-aggregator/internal/source/scottishscores"
	"github.com/JakeFAU/heavy-aggregator/internal/upload"
)

// App holds the shared services for one harvester process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *checkpoint.Store
	fetcher   *collyfetcher.Fetcher
	uploader  upload.Uploader
	publisher publisher.Publisher
	closers   []func() error
}

// Checkpoints returns the loaded checkpoint store.
func (a *App) Checkpoints() *checkpoint.Store { return a.store }

// Fetcher returns the shared HTTP fetcher.
func (a *App) Fetcher() harvest.Fetcher { return a.fetcher }

// Uploader returns the configured uploader, or nil when uploads are off.
func (a *App) Uploader() upload.Uploader { return a.uploader }

// Publisher returns the run-summary publisher, or nil when notifications are off.
func (a *App) Publisher() publisher.Publisher { return a.publisher }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// New initializes every service named in cfg and fails fast when one cannot
// be built. Services created before the failure are closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, closeStore, err := OpenCheckpoints(ctx, cfg.Checkpoint, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)
	a.store.Load(ctx)

	opts := []collyfetcher.Option{collyfetcher.WithLogger(logger)}
	if cfg.HTTP.MaxRPS > 0 {
		opts = append(opts, collyfetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.HTTP.MaxRPS,
			DefaultBurst: 1,
		})))
	}
	a.fetcher, err = collyfetcher.New(FetcherConfig(cfg.HTTP), opts...)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	a.uploader, err = upload.New(ctx, UploadConfig(cfg.Upload))
	if err != nil {
		return nil, fmt.Errorf("init uploader: %w", err)
	}
	if c, ok := a.uploader.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	if a.uploader != nil {
		logger.Info("uploads enabled", zap.String("provider", a.uploader.Provider()))
	}

	if ps := cfg.Notify.PubSub; ps.Topic != "" {
		p, err := pubsubpublisher.New(ctx, ps.ProjectID, ps.Topic)
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, p.Close)
		logger.Info("run notifications enabled", zap.String("topic", ps.Topic))
	}

	return a, nil
}

// OpenCheckpoints builds a Store over the configured backend. The returned
// func releases the backend. The store is not loaded.
func OpenCheckpoints(ctx context.Context, cfg config.CheckpointConfig, logger *zap.Logger) (*checkpoint.Store, func() error, error) {
	switch cfg.Backend {
	case "", "file":
		backend, err := checkpoint.NewFileBackend(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init checkpoint file: %w", err)
		}
		return checkpoint.New(backend, logger), func() error { return nil }, nil
	case "postgres":
		backend, err := checkpoint.NewPostgresBackend(ctx, checkpoint.PostgresConfig{
			DSN:   cfg.DSN,
			Table: cfg.Table,
			Name:  cfg.Name,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init checkpoint postgres: %w", err)
		}
		return checkpoint.New(backend, logger), func() error { backend.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

// FetcherConfig maps HTTP settings onto the fetcher.
func FetcherConfig(h config.HTTPConfig) collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent:     h.UserAgent,
		Proxy:         h.Proxy,
		Headers:       collyfetcher.DefaultHeaders(),
		Timeout:       h.Timeout(),
		Throttle:      h.Throttle(),
		RetryCount:    h.RetryCount,
		BackoffBase:   h.BackoffInitial(),
		BackoffMax:    h.BackoffMax(),
		RetryStatuses: h.RetryStatuses,
	}
}

// UploadConfig maps upload settings onto the upload package.
func UploadConfig(u config.UploadConfig) upload.Config {
	return upload.Config{
		Provider: u.Provider,
		S3: upload.S3Config{
			Bucket:    u.S3.Bucket,
			Region:    u.S3.Region,
			Endpoint:  u.S3.Endpoint,
			AccessKey: u.S3.AccessKey,
			SecretKey: u.S3.SecretKey,
			UseSSL:    u.S3.UseSSL,
			Prefix:    u.S3.Prefix,
		},
		GCS: upload.GCSConfig{Bucket: u.GCS.Bucket, Prefix: u.GCS.Prefix},
		Webhook: upload.WebhookConfig{
			URL:     u.Webhook.URL,
			Timeout: secondsToDuration(u.Webhook.TimeoutSeconds),
		},
	}
}

// SourceSettings maps per-archive settings onto the adapters.
func SourceSettings(s config.SourcesConfig) source.Settings {
	return source.Settings{
		HeavyAthlete:   heavyathlete.Config{BaseURL: s.HeavyAthlete.BaseURL, StartYear: s.HeavyAthlete.StartYear},
		NASGA:          nasga.Config{BaseURL: s.NASGA.BaseURL},
		ScottishScores: scottishscores.Config{BaseURL: s.ScottishScores.BaseURL, StartYear: s.ScottishScores.StartYear},
	}
}

// Adapter builds the named source adapter.
func (a *App) Adapter(name string) (harvest.Adapter, error) {
	return source.New(name, SourceSettings(a.cfg.Sources))
}

// Orchestrator returns a run driver over the shared fetcher and store.
func (a *App) Orchestrator(opts ...orchestrator.Option) *orchestrator.Orchestrator {
	opts = append([]orchestrator.Option{orchestrator.WithLogger(a.logger)}, opts...)
	return orchestrator.New(orchestrator.Config{
		OutputDir:   a.cfg.Harvest.OutputDir,
		LineLimit:   a.cfg.Harvest.OutputLineLimit,
		BatchSize:   a.cfg.Harvest.BatchSize,
		Concurrency: a.cfg.Harvest.Concurrency,
	}, a.fetcher, a.store, opts...)
}

// Close releases services in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
