package main

import (
	"context"
	"log/slog"
	"time"

	"murmur/internal/analysis"
	"murmur/internal/config"
	"murmur/internal/enrich"
	"murmur/internal/ingest"
	"murmur/internal/jobs"
	"murmur/internal/logging"
	"murmur/internal/memo"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/records"
	"murmur/internal/runner"
	"murmur/internal/transcription"
)

// daemon owns the wired-together enrichment stack: stores, job runners,
// and the recordings watcher.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	transcripts *transcription.Store
	titleJobs   *jobs.Repository
	distillJobs *jobs.Repository

	titleRunner   *runner.Runner
	distillRunner *runner.Runner
	watcher       *ingest.Watcher
}

func newDaemon(cfg *config.Config, db *records.DB, logger *slog.Logger) (*daemon, error) {
	memos := memo.NewStore(db, logger)
	transcripts := transcription.NewStore(db, logger)
	titleJobs := jobs.NewRepository(jobs.AutoTitle, db, logger)
	distillJobs := jobs.NewRepository(jobs.AutoDistill, db, logger)
	cache := analysis.NewCache(db, logger)
	notifier := notifications.NewService(cfg)

	p := pipeline.New(pipeline.Deps{
		Config:      cfg,
		Memos:       memos,
		Transcripts: transcripts,
		TitleJobs:   titleJobs,
		DistillJobs: distillJobs,
		Cache:       cache,
		Transcriber: enrich.NewWhisperClient(cfg.Transcription),
		Generator:   enrich.NewClient(cfg.Enrichment),
		Notifier:    notifier,
		Logger:      logger,
	})

	policy := jobs.PolicyFromConfig(cfg)
	interval := time.Duration(cfg.Jobs.PollInterval) * time.Second

	titleRunner := runner.New(titleJobs, p.TitleWork, policy, logger,
		runner.WithPollInterval(interval),
		runner.WithClassifier(enrich.Classify),
		runner.WithOnExhausted(p.OnJobExhausted(jobs.AutoTitle)))
	distillRunner := runner.New(distillJobs, p.DistillWork, policy, logger,
		runner.WithPollInterval(interval),
		runner.WithClassifier(enrich.Classify),
		runner.WithOnExhausted(p.OnJobExhausted(jobs.AutoDistill)))

	return &daemon{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		transcripts:   transcripts,
		titleJobs:     titleJobs,
		distillJobs:   distillJobs,
		titleRunner:   titleRunner,
		distillRunner: distillRunner,
		watcher:       ingest.New(cfg, p, memos, logger),
	}, nil
}

// Start recovers jobs stranded by a previous process, then brings up the
// runners and the recordings watcher.
func (d *daemon) Start(ctx context.Context) error {
	for _, repo := range []*jobs.Repository{d.titleJobs, d.distillJobs} {
		reset, err := repo.ResetStuckProcessing(ctx)
		if err != nil {
			return err
		}
		if reset > 0 {
			d.logger.Info("requeued stuck jobs",
				logging.String("kind", repo.Kind().Name),
				logging.Int64("count", reset))
		}
	}

	if err := d.titleRunner.Start(ctx); err != nil {
		return err
	}
	if err := d.distillRunner.Start(ctx); err != nil {
		return err
	}
	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	d.logger.Info("murmurd started")
	return nil
}

// Stop shuts the watcher and runners down in dependency order.
func (d *daemon) Stop() {
	d.watcher.Stop()
	d.titleRunner.Stop()
	d.distillRunner.Stop()
	d.transcripts.Close()
	d.titleJobs.Close()
	d.distillJobs.Close()
}
