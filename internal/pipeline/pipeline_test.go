package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"murmur/internal/analysis"
	"murmur/internal/enrich"
	"murmur/internal/jobs"
	"murmur/internal/logging"
	"murmur/internal/memo"
	"murmur/internal/testsupport"
	"murmur/internal/transcription"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeGenerator struct {
	title    string
	titleErr error
	distErr  error
}

func (f *fakeGenerator) GenerateTitle(ctx context.Context, transcript string) (string, error) {
	if f.titleErr != nil {
		return "", f.titleErr
	}
	return f.title, nil
}

func (f *fakeGenerator) GenerateDistill(ctx context.Context, transcript string, mode analysis.Mode) (analysis.Envelope, error) {
	if f.distErr != nil {
		return analysis.Envelope{}, f.distErr
	}
	payload, _ := json.Marshal(map[string]any{"headline": "distilled: " + transcript})
	return analysis.NewEnvelope(mode, "fake-model", 0, payload), nil
}

type fixture struct {
	pipeline    *Pipeline
	memos       *memo.Store
	transcripts *transcription.Store
	titleJobs   *jobs.Repository
	distillJobs *jobs.Repository
	cache       *analysis.Cache
}

func newFixture(t *testing.T, transcriber enrich.Transcriber, generator enrich.Generator) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	logger := logging.NewNop()

	memos := memo.NewStore(db, logger)
	transcripts := transcription.NewStore(db, logger)
	t.Cleanup(transcripts.Close)
	titleJobs := jobs.NewRepository(jobs.AutoTitle, db, logger)
	t.Cleanup(titleJobs.Close)
	distillJobs := jobs.NewRepository(jobs.AutoDistill, db, logger)
	t.Cleanup(distillJobs.Close)
	cache := analysis.NewCache(db, logger)

	p := New(Deps{
		Config:      cfg,
		Memos:       memos,
		Transcripts: transcripts,
		TitleJobs:   titleJobs,
		DistillJobs: distillJobs,
		Cache:       cache,
		Transcriber: transcriber,
		Generator:   generator,
		Logger:      logger,
	})
	return &fixture{
		pipeline:    p,
		memos:       memos,
		transcripts: transcripts,
		titleJobs:   titleJobs,
		distillJobs: distillJobs,
		cache:       cache,
	}
}

func TestRecordingCompleteEnqueuesEnrichment(t *testing.T) {
	fx := newFixture(t, &fakeTranscriber{text: "remember to call the plumber"}, &fakeGenerator{title: "Call The Plumber"})
	ctx := context.Background()

	m, err := fx.pipeline.OnRecordingComplete(ctx, "memo.m4a", 12.5)
	if err != nil {
		t.Fatalf("recording complete: %v", err)
	}

	state := fx.transcripts.GetState(ctx, m.ID)
	if state.Status != transcription.StatusCompleted {
		t.Fatalf("expected completed transcript, got %s", state.Status)
	}
	if state.Text != "remember to call the plumber" {
		t.Fatalf("unexpected transcript %q", state.Text)
	}

	titleJob, err := fx.titleJobs.JobFor(ctx, m.ID)
	if err != nil || titleJob == nil {
		t.Fatalf("expected title job, got %+v err %v", titleJob, err)
	}
	if titleJob.Status != jobs.StatusQueued {
		t.Fatalf("expected queued title job, got %s", titleJob.Status)
	}
	distillJob, err := fx.distillJobs.JobFor(ctx, m.ID)
	if err != nil || distillJob == nil {
		t.Fatalf("expected distill job, got %+v err %v", distillJob, err)
	}
	if distillJob.Mode != string(analysis.ModeSummary) {
		t.Fatalf("expected summary mode, got %q", distillJob.Mode)
	}
}

func TestTranscriptionFailureIsTerminalAndEnqueuesNothing(t *testing.T) {
	fx := newFixture(t, &fakeTranscriber{err: errors.New("no speech detected")}, &fakeGenerator{})
	ctx := context.Background()

	m, err := fx.pipeline.OnRecordingComplete(ctx, "memo.m4a", 3.0)
	if err != nil {
		t.Fatalf("recording complete: %v", err)
	}

	state := fx.transcripts.GetState(ctx, m.ID)
	if state.Status != transcription.StatusFailed {
		t.Fatalf("expected failed transcript, got %s", state.Status)
	}
	if state.ErrorMessage != "no speech detected" {
		t.Fatalf("unexpected message %q", state.ErrorMessage)
	}

	if job, _ := fx.titleJobs.JobFor(ctx, m.ID); job != nil {
		t.Fatalf("unexpected title job %+v", job)
	}
	if job, _ := fx.distillJobs.JobFor(ctx, m.ID); job != nil {
		t.Fatalf("unexpected distill job %+v", job)
	}
}

func TestTitleWorkSetsGeneratedTitle(t *testing.T) {
	fx := newFixture(t, &fakeTranscriber{text: "standup notes"}, &fakeGenerator{title: "Standup Notes"})
	ctx := context.Background()

	m, err := fx.pipeline.OnRecordingComplete(ctx, "memo.m4a", 5)
	if err != nil {
		t.Fatalf("recording complete: %v", err)
	}
	job, err := fx.titleJobs.JobFor(ctx, m.ID)
	if err != nil {
		t.Fatalf("job for: %v", err)
	}
	if err := fx.pipeline.TitleWork(ctx, job); err != nil {
		t.Fatalf("title work: %v", err)
	}

	updated, err := fx.memos.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("get memo: %v", err)
	}
	if updated.CustomTitle != "Standup Notes" {
		t.Fatalf("expected generated title, got %q", updated.CustomTitle)
	}
}

func TestTitleWorkKeepsUserTitle(t *testing.T) {
	fx := newFixture(t, &fakeTranscriber{text: "standup notes"}, &fakeGenerator{title: "Generated"})
	ctx := context.Background()

	m, err := fx.pipeline.OnRecordingComplete(ctx, "memo.m4a", 5)
	if err != nil {
		t.Fatalf("recording complete: %v", err)
	}
	if err := fx.memos.SetTitle(ctx, m.ID, "My Own Title"); err != nil {
		t.Fatalf("set title: %v", err)
	}

	job, err := fx.titleJobs.JobFor(ctx, m.ID)
	if err != nil {
		t.Fatalf("job for: %v", err)
	}
	if err := fx.pipeline.TitleWork(ctx, job); err != nil {
		t.Fatalf("title work: %v", err)
	}
	updated, err := fx.memos.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("get memo: %v", err)
	}
	if updated.CustomTitle != "My Own Title" {
		t.Fatalf("user title overwritten: %q", updated.CustomTitle)
	}
}

func TestWorkWithoutTranscriptIsInvalidInput(t *testing.T) {
	fx := newFixture(t, &fakeTranscriber{}, &fakeGenerator{})
	ctx := context.Background()

	err := fx.pipeline.TitleWork(ctx, &jobs.Job{MemoID: "no-such-memo"})
	if !errors.Is(err, enrich.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDistillWorkStoresEnvelope(t *testing.T) {
	fx := newFixture(t, &fakeTranscriber{text: "ship the release"}, &fakeGenerator{})
	ctx := context.Background()

	m, err := fx.pipeline.OnRecordingComplete(ctx, "memo.m4a", 8)
	if err != nil {
		t.Fatalf("recording complete: %v", err)
	}
	job, err := fx.distillJobs.JobFor(ctx, m.ID)
	if err != nil {
		t.Fatalf("job for: %v", err)
	}
	if err := fx.pipeline.DistillWork(ctx, job); err != nil {
		t.Fatalf("distill work: %v", err)
	}

	var payload struct {
		Headline string `json:"headline"`
	}
	payload, ok := analysis.Get[struct {
		Headline string `json:"headline"`
	}](ctx, fx.cache, m.ID, analysis.ModeSummary)
	if !ok {
		t.Fatal("expected cached summary")
	}
	if payload.Headline != "distilled: ship the release" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDeleteMemoCascades(t *testing.T) {
	fx := newFixture(t, &fakeTranscriber{text: "tear it all down"}, &fakeGenerator{title: "T"})
	ctx := context.Background()

	m, err := fx.pipeline.OnRecordingComplete(ctx, "memo.m4a", 4)
	if err != nil {
		t.Fatalf("recording complete: %v", err)
	}
	job, err := fx.distillJobs.JobFor(ctx, m.ID)
	if err != nil {
		t.Fatalf("job for: %v", err)
	}
	if err := fx.pipeline.DistillWork(ctx, job); err != nil {
		t.Fatalf("distill work: %v", err)
	}

	if err := fx.pipeline.DeleteMemo(ctx, m.ID); err != nil {
		t.Fatalf("delete memo: %v", err)
	}

	if got, _ := fx.memos.GetByID(ctx, m.ID); got != nil {
		t.Fatalf("memo survived delete: %+v", got)
	}
	if job, _ := fx.titleJobs.JobFor(ctx, m.ID); job != nil {
		t.Fatalf("title job survived delete: %+v", job)
	}
	if job, _ := fx.distillJobs.JobFor(ctx, m.ID); job != nil {
		t.Fatalf("distill job survived delete: %+v", job)
	}
	if fx.cache.Has(ctx, m.ID, analysis.ModeSummary) {
		t.Fatal("analysis result survived delete")
	}
	if state := fx.transcripts.GetState(ctx, m.ID); state.Status != transcription.StatusNotStarted {
		t.Fatalf("transcript state survived delete: %s", state.Status)
	}
}

func TestRetryTranscriptionAfterFailure(t *testing.T) {
	transcriber := &fakeTranscriber{err: errors.New("backend down")}
	fx := newFixture(t, transcriber, &fakeGenerator{})
	ctx := context.Background()

	m, err := fx.pipeline.OnRecordingComplete(ctx, "memo.m4a", 6)
	if err != nil {
		t.Fatalf("recording complete: %v", err)
	}
	if state := fx.transcripts.GetState(ctx, m.ID); state.Status != transcription.StatusFailed {
		t.Fatalf("expected failed state, got %s", state.Status)
	}

	transcriber.err = nil
	transcriber.text = "second time lucky"
	if err := fx.pipeline.RetryTranscription(ctx, m.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	state := fx.transcripts.GetState(ctx, m.ID)
	if state.Status != transcription.StatusCompleted || state.Text != "second time lucky" {
		t.Fatalf("unexpected state after retry %+v", state)
	}

	// A completed memo is not retried again.
	if err := fx.pipeline.RetryTranscription(ctx, m.ID); err == nil {
		t.Fatal("expected retry of completed memo to be refused")
	}
}
