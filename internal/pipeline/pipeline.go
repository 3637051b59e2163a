package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/analysis"
	"murmur/internal/config"
	"murmur/internal/enrich"
	"murmur/internal/jobs"
	"murmur/internal/logging"
	"murmur/internal/memo"
	"murmur/internal/notifications"
	"murmur/internal/transcription"
)

// Deps collects the collaborators the pipeline orchestrates.
type Deps struct {
	Config      *config.Config
	Memos       *memo.Store
	Transcripts *transcription.Store
	TitleJobs   *jobs.Repository
	DistillJobs *jobs.Repository
	Cache       *analysis.Cache
	Transcriber enrich.Transcriber
	Generator   enrich.Generator
	Notifier    notifications.Service
	Logger      *slog.Logger
}

// Pipeline drives a memo from finished recording to fully enriched:
// transcription through the state store, then title and distill jobs
// through their repositories.
type Pipeline struct {
	cfg         *config.Config
	memos       *memo.Store
	transcripts *transcription.Store
	titleJobs   *jobs.Repository
	distillJobs *jobs.Repository
	cache       *analysis.Cache
	transcriber enrich.Transcriber
	generator   enrich.Generator
	notifier    notifications.Service
	logger      *slog.Logger
}

// New wires a pipeline from its dependencies.
func New(deps Deps) *Pipeline {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(deps.Config)
	}
	return &Pipeline{
		cfg:         deps.Config,
		memos:       deps.Memos,
		transcripts: deps.Transcripts,
		titleJobs:   deps.TitleJobs,
		distillJobs: deps.DistillJobs,
		cache:       deps.Cache,
		transcriber: deps.Transcriber,
		generator:   deps.Generator,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(deps.Logger, "pipeline"),
	}
}

// OnRecordingComplete registers a finished recording and runs its
// transcription. The returned memo exists even when transcription fails;
// enrichment state is readable through the stores.
func (p *Pipeline) OnRecordingComplete(ctx context.Context, filename string, durationSeconds float64) (*memo.Memo, error) {
	m, err := p.memos.Create(ctx, filename, durationSeconds)
	if err != nil {
		return nil, err
	}
	p.logger.Info("recording registered",
		logging.String(logging.FieldMemoID, m.ID),
		logging.String("filename", filename))
	if err := p.Transcribe(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("transcription failed",
			logging.String(logging.FieldMemoID, m.ID),
			logging.Error(err))
	}
	return m, nil
}

// Transcribe runs the transcription state machine for one memo:
// InProgress, then Completed with the text or Failed with the message.
// Completion enqueues both enrichment job kinds. A context cancellation
// rewinds to NotStarted so the memo is picked up again later.
func (p *Pipeline) Transcribe(ctx context.Context, m *memo.Memo) error {
	p.transcripts.SaveState(ctx, m.ID, transcription.InProgress())

	text, err := p.transcriber.Transcribe(ctx, p.audioPath(m))
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			reset, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			p.transcripts.SaveState(reset, m.ID, transcription.NotStarted())
			return context.Canceled
		}
		p.transcripts.SaveState(ctx, m.ID, transcription.Failed(err.Error()))
		if nerr := p.notifier.NotifyTranscriptionFailed(ctx, m.DisplayTitle(), err.Error()); nerr != nil {
			p.logger.Warn("notify failed", logging.Error(nerr))
		}
		return err
	}

	p.transcripts.SaveState(ctx, m.ID, transcription.Completed(text))
	if _, err := p.titleJobs.Enqueue(ctx, m.ID, ""); err != nil {
		p.logger.Warn("enqueue title job failed",
			logging.String(logging.FieldMemoID, m.ID),
			logging.Error(err))
	}
	if _, err := p.distillJobs.Enqueue(ctx, m.ID, string(analysis.ModeSummary)); err != nil {
		p.logger.Warn("enqueue distill job failed",
			logging.String(logging.FieldMemoID, m.ID),
			logging.Error(err))
	}
	if err := p.notifier.NotifyTranscriptionCompleted(ctx, m.DisplayTitle()); err != nil {
		p.logger.Warn("notify failed", logging.Error(err))
	}
	return nil
}

// RetryTranscription reruns transcription for a memo whose previous run
// failed or never happened. In-flight and completed memos are refused.
func (p *Pipeline) RetryTranscription(ctx context.Context, memoID string) error {
	m, err := p.memos.GetByID(ctx, memoID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("memo %s not found", memoID)
	}
	switch state := p.transcripts.GetState(ctx, memoID); state.Status {
	case transcription.StatusInProgress:
		return fmt.Errorf("memo %s transcription already in progress", memoID)
	case transcription.StatusCompleted:
		return fmt.Errorf("memo %s already transcribed", memoID)
	default:
		return p.Transcribe(ctx, m)
	}
}

// TitleWork is the WorkFunc for auto-title jobs. A user-set title is never
// overwritten; the job still completes so it is not retried.
func (p *Pipeline) TitleWork(ctx context.Context, job *jobs.Job) error {
	m, text, err := p.transcriptFor(ctx, job.MemoID)
	if err != nil {
		return err
	}
	title, err := p.generator.GenerateTitle(ctx, text)
	if err != nil {
		return err
	}
	if strings.TrimSpace(m.CustomTitle) != "" {
		p.logger.Info("title kept, user already set one",
			logging.String(logging.FieldMemoID, m.ID))
		return nil
	}
	if err := p.memos.SetTitle(ctx, m.ID, title); err != nil {
		return fmt.Errorf("%w: set title: %w", enrich.ErrTransient, err)
	}
	if err := p.notifier.NotifyEnrichmentCompleted(ctx, title, "Title"); err != nil {
		p.logger.Warn("notify failed", logging.Error(err))
	}
	return nil
}

// DistillWork is the WorkFunc for auto-distill jobs.
func (p *Pipeline) DistillWork(ctx context.Context, job *jobs.Job) error {
	m, text, err := p.transcriptFor(ctx, job.MemoID)
	if err != nil {
		return err
	}
	mode := analysis.ModeSummary
	if job.Mode != "" {
		parsed, ok := analysis.ParseMode(job.Mode)
		if !ok {
			return fmt.Errorf("%w: unknown analysis mode %q", enrich.ErrInvalidInput, job.Mode)
		}
		mode = parsed
	}
	env, err := p.generator.GenerateDistill(ctx, text, mode)
	if err != nil {
		return err
	}
	if err := p.cache.Save(ctx, m.ID, env); err != nil {
		return fmt.Errorf("%w: save analysis: %w", enrich.ErrTransient, err)
	}
	if err := p.notifier.NotifyEnrichmentCompleted(ctx, m.DisplayTitle(), "Distill"); err != nil {
		p.logger.Warn("notify failed", logging.Error(err))
	}
	return nil
}

// OnJobExhausted returns the runner hook that reports a terminally failed
// job of one kind.
func (p *Pipeline) OnJobExhausted(kind jobs.Kind) func(job *jobs.Job) {
	return func(job *jobs.Job) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		title := job.MemoID
		if m, err := p.memos.GetByID(ctx, job.MemoID); err == nil && m != nil {
			title = m.DisplayTitle()
		}
		if err := p.notifier.NotifyJobExhausted(ctx, title, kind.Name, string(job.FailureReason)); err != nil {
			p.logger.Warn("notify failed", logging.Error(err))
		}
	}
}

// DeleteMemo removes a memo and every enrichment artifact attached to it.
func (p *Pipeline) DeleteMemo(ctx context.Context, memoID string) error {
	if _, err := p.titleJobs.Delete(ctx, memoID); err != nil {
		return err
	}
	if _, err := p.distillJobs.Delete(ctx, memoID); err != nil {
		return err
	}
	if err := p.cache.DeleteAll(ctx, memoID); err != nil {
		return err
	}
	if err := p.transcripts.DeleteState(ctx, memoID); err != nil {
		return err
	}
	deleted, err := p.memos.Delete(ctx, memoID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("memo %s not found", memoID)
	}
	p.logger.Info("memo deleted", logging.String(logging.FieldMemoID, memoID))
	return nil
}

func (p *Pipeline) audioPath(m *memo.Memo) string {
	if filepath.IsAbs(m.Filename) {
		return m.Filename
	}
	return filepath.Join(p.cfg.Paths.RecordingsDir, m.Filename)
}

// transcriptFor loads the memo and its completed transcript, classifying
// missing prerequisites as invalid input so the job fails terminally
// instead of retrying forever.
func (p *Pipeline) transcriptFor(ctx context.Context, memoID string) (*memo.Memo, string, error) {
	m, err := p.memos.GetByID(ctx, memoID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: load memo: %w", enrich.ErrTransient, err)
	}
	if m == nil {
		return nil, "", fmt.Errorf("%w: memo %s no longer exists", enrich.ErrInvalidInput, memoID)
	}
	state := p.transcripts.GetState(ctx, memoID)
	if state.Status != transcription.StatusCompleted {
		return nil, "", fmt.Errorf("%w: transcript not completed (status %s)", enrich.ErrInvalidInput, state.Status)
	}
	if strings.TrimSpace(state.Text) == "" {
		return nil, "", fmt.Errorf("%w: transcript empty", enrich.ErrInvalidInput)
	}
	return m, state.Text, nil
}
