package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/heavy-aggregator/internal/api"
	"github.com/JakeFAU/heavy-aggregator/internal/app"
	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
	"github.com/JakeFAU/heavy-aggregator/internal/publisher"
	"github.com/JakeFAU/heavy-aggregator/internal/source"
	"github.com/JakeFAU/heavy-aggregator/internal/upload"
)

func newHarvestCmd() *cobra.Command {
	var sources []string
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Run the configured sources",
		Long: `Runs each source in turn, resuming from the checkpoint. Finished files
are uploaded and a run summary is published when those are configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if len(sources) > 0 {
				for _, name := range sources {
					if !slices.Contains(source.Names(), name) {
						return fmt.Errorf("%w: %q", source.ErrUnknown, name)
					}
				}
				e.cfg.Harvest.Sources = sources
			}
			return runHarvest(cmd.Context(), e)
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "sources to run (overrides harvest.sources)")
	return cmd
}

func runHarvest(ctx context.Context, e *env) (err error) {
	logger := e.logger
	a, err := app.New(ctx, e.cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()

	var status *api.Server
	if addr := e.cfg.Metrics.Addr; addr != "" {
		status = api.NewServer(a.Checkpoints(), logger)
		serveCtx, stopServe := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Go(func() {
			if err := status.Serve(serveCtx, addr); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		})
		defer func() {
			stopServe()
			wg.Wait()
		}()
	}

	orch := a.Orchestrator()
	var failedUploads int
	for _, name := range e.cfg.Harvest.Sources {
		adapter, err := a.Adapter(name)
		if err != nil {
			return err
		}
		if status != nil {
			status.SetActive(name)
		}

		report, runErr := orch.Run(ctx, adapter)
		if status != nil {
			status.RecordReport(report)
			status.SetActive("")
		}
		if runErr != nil {
			if ctx.Err() != nil {
				logger.Warn("harvest interrupted, checkpoint retained",
					zap.String("source", name),
					zap.Strings("files", report.Files),
				)
				return runErr
			}
			return fmt.Errorf("harvest %s: %w", name, runErr)
		}

		failedUploads += len(afterRun(ctx, a.Uploader(), a.Publisher(), report, logger))
	}

	if failedUploads > 0 {
		return fmt.Errorf("%d file uploads failed", failedUploads)
	}
	return nil
}

// afterRun uploads the report's files and publishes the summary. It returns
// the files that failed to upload.
func afterRun(ctx context.Context, u upload.Uploader, p publisher.Publisher, report harvest.Report, logger *zap.Logger) []string {
	var failed []string
	if u != nil && len(report.Files) > 0 {
		failed = upload.All(ctx, u, report.Files, logger)
	}
	if p != nil {
		id, err := p.Publish(ctx, report)
		if err != nil {
			logger.Warn("run summary not published", zap.String("run_id", report.RunID), zap.Error(err))
		} else {
			logger.Info("run summary published", zap.String("run_id", report.RunID), zap.String("message_id", id))
		}
	}
	return failed
}
