// Package orchestrator drives source adapters through discovery, bounded
// concurrent fetching, extraction, streaming output and checkpointing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/heavy-aggregator/internal/checkpoint"
	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
	"github.com/JakeFAU/heavy-aggregator/internal/metrics"
	"github.com/JakeFAU/heavy-aggregator/internal/output"
)

const stampLayout = "2006-01-02_15-04-05"

// Config controls output placement and the unit sizes of a run.
type Config struct {
	OutputDir   string
	LineLimit   int
	BatchSize   int
	Concurrency int
}

// Orchestrator runs adapters one at a time. The checkpoint store must have
// been loaded before Run is called.
type Orchestrator struct {
	cfg     Config
	fetcher harvest.Fetcher
	store   *checkpoint.Store
	clock   harvest.Clock
	logger  *zap.Logger
	newID   func() string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the clock used for file stamps and report times.
func WithClock(c harvest.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRunID overrides run id generation.
func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New builds an Orchestrator.
func New(cfg Config, fetcher harvest.Fetcher, store *checkpoint.Store, opts ...Option) *Orchestrator {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	o := &Orchestrator{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		clock:   harvest.SystemClock{},
		logger:  zap.NewNop(),
		newID:   newRunID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Run harvests every phase of adapter in order. Output files written so far
// are listed in the report even when Run fails. Cancellation returns
// ctx.Err() and leaves the checkpoint at its last persisted value.
func (o *Orchestrator) Run(ctx context.Context, adapter harvest.Adapter) (report harvest.Report, err error) {
	name := adapter.Name()
	report = harvest.Report{
		RunID:     o.newID(),
		Source:    name,
		StartedAt: o.clock.Now(),
		Records:   make(map[string]int),
	}
	logger := o.logger.With(zap.String("source", name), zap.String("run_id", report.RunID))
	client := harvest.NewClient(o.fetcher, harvest.NewGate(o.cfg.Concurrency), name, logger)
	stamp := report.StartedAt.Format(stampLayout)
	defer func() {
		report.FinishedAt = o.clock.Now()
	}()

	logger.Info("harvest started", zap.Int("concurrency", o.cfg.Concurrency))
	for _, phase := range adapter.Phases() {
		r := &phaseRun{
			o:      o,
			source: name,
			phase:  phase,
			client: client,
			report: &report,
			logger: logger.With(zap.String("stream", phase.Stream())),
		}
		if err := r.run(ctx, stamp); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				logger.Warn("harvest interrupted", zap.Error(ctxErr))
				return report, ctxErr
			}
			logger.Error("harvest failed", zap.Error(err))
			return report, err
		}
	}
	logger.Info("harvest finished",
		zap.Int("keys", report.KeysProcessed),
		zap.Int("failed", report.Failed),
		zap.Any("records", report.Records),
	)
	return report, nil
}

type phaseRun struct {
	o      *Orchestrator
	source string
	phase  harvest.Phase
	client *harvest.Client
	report *harvest.Report
	logger *zap.Logger
	writer *output.Writer
}

func (r *phaseRun) run(ctx context.Context, stamp string) (err error) {
	base := fmt.Sprintf("%s_%s_%s.json", r.source, r.phase.Stream(), stamp)
	r.writer, err = output.New(r.o.cfg.OutputDir, base, r.o.cfg.LineLimit)
	if err != nil {
		return fmt.Errorf("open %s output: %w", r.phase.Stream(), err)
	}
	defer func() {
		closeErr := r.writer.Close()
		paths := r.writer.Paths()
		r.report.Files = append(r.report.Files, paths...)
		metrics.ObserveShards(r.source, r.phase.Stream(), len(paths))
		if closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close %s output: %w", r.phase.Stream(), closeErr))
		}
	}()

	switch p := r.phase.(type) {
	case harvest.KeyedPhase:
		return r.runKeyed(ctx, p)
	case harvest.BatchedPhase:
		return r.runBatched(ctx, p)
	default:
		return fmt.Errorf("phase %s: unsupported type %T", r.phase.Stream(), r.phase)
	}
}

// runKeyed processes discovery keys in increasing order, committing the
// checkpoint after each key resolves.
func (r *phaseRun) runKeyed(ctx context.Context, p harvest.KeyedPhase) error {
	keys, err := p.Keys(ctx, r.client)
	if err != nil {
		return fmt.Errorf("list %s keys: %w", p.Stream(), err)
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	cpKey := p.CheckpointKey()
	if r.o.store.Get(cpKey, nil) != nil {
		last := harvest.DiscoveryKey(r.o.store.GetInt(cpKey, 0))
		idx, _ := slices.BinarySearch(keys, last+1)
		if idx > 0 {
			r.logger.Info("resuming after checkpoint", zap.Int("last_completed", int(last)))
		}
		keys = keys[idx:]
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := r.logger.With(zap.Int("key", int(key)))
		targets, err := p.Discover(ctx, r.client, key)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			log.Warn("discovery failed, key yields no targets", zap.Error(err))
			metrics.ObserveKey(r.source, "discovery_failed")
			targets = nil
		default:
			log.Info("key discovered", zap.Int("targets", len(targets)))
		}

		if err := r.resolve(ctx, targets); err != nil {
			return err
		}
		r.commit(ctx, cpKey, int(key))
		r.report.KeysProcessed++
		metrics.ObserveKey(r.source, "done")
	}
	return nil
}

// runBatched walks a flat target list in fixed-size batches, committing the
// next offset after each batch resolves.
func (r *phaseRun) runBatched(ctx context.Context, p harvest.BatchedPhase) error {
	targets, err := p.List(ctx, r.client)
	if err != nil {
		return fmt.Errorf("list %s targets: %w", p.Stream(), err)
	}
	cpKey := p.CheckpointKey()
	offset := max(r.o.store.GetInt(cpKey, 0), 0)
	if offset > len(targets) {
		r.logger.Warn("checkpoint offset beyond target list",
			zap.Int("offset", offset),
			zap.Int("targets", len(targets)),
		)
		offset = len(targets)
	}
	if offset > 0 {
		r.logger.Info("resuming from offset", zap.Int("offset", offset), zap.Int("targets", len(targets)))
	}

	size := r.o.cfg.BatchSize
	for start := offset; start < len(targets); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(targets))
		if err := r.resolve(ctx, targets[start:end]); err != nil {
			return err
		}
		r.commit(ctx, cpKey, end)
		r.logger.Info("batch complete", zap.Int("processed", end), zap.Int("targets", len(targets)))
	}
	return nil
}

// resolve fetches a batch behind the gate, waits for all of it, then
// extracts and writes results in target order. A canceled batch is
// discarded without writing.
func (r *phaseRun) resolve(ctx context.Context, targets []harvest.Target) error {
	if len(targets) == 0 {
		return nil
	}
	reqs := make([]harvest.Request, len(targets))
	for i, t := range targets {
		reqs[i] = t.Request
	}
	results := r.client.DoAll(ctx, reqs)
	if err := ctx.Err(); err != nil {
		return err
	}

	stream := r.phase.Stream()
	for i, res := range results {
		target := targets[i]
		if res.Err != nil {
			r.report.Failed++
			r.logger.Warn("target skipped",
				zap.String("target_id", target.ID),
				zap.String("target_name", target.Name),
				zap.String("url", target.Request.URL),
				zap.Error(res.Err),
			)
			continue
		}
		item, ok := r.phase.Extract(target, res.Doc)
		if !ok {
			r.logger.Debug("target produced nothing", zap.String("target_id", target.ID))
			continue
		}
		if err := r.writer.WriteItem(item); err != nil {
			return fmt.Errorf("write %s item %s: %w", stream, target.ID, err)
		}
		r.report.Records[stream]++
		metrics.ObserveRecord(r.source, stream)
	}
	return nil
}

// commit persists progress. The unit of work is already written, so the
// save runs even if ctx was canceled meanwhile; failures are logged only.
func (r *phaseRun) commit(ctx context.Context, key string, value int) {
	err := r.o.store.Save(context.WithoutCancel(ctx), key, value)
	metrics.ObserveCheckpointSave(err)
	if err != nil {
		r.logger.Warn("checkpoint save failed", zap.String("checkpoint_key", key), zap.Error(err))
	}
}
