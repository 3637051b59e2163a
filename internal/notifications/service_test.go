package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"murmur/internal/config"
	"murmur/internal/notifications"
)

type captured struct {
	title    string
	message  string
	tags     string
	priority string
}

func captureServer(t *testing.T, sink *[]captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*sink = append(*sink, captured{
			title:    r.Header.Get("Title"),
			message:  string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func serviceFor(topic string, transcription, enrichment, errorsOn bool) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.Transcription = transcription
	cfg.Notifications.Enrichment = enrichment
	cfg.Notifications.Errors = errorsOn
	return notifications.NewService(&cfg)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := serviceFor("", true, true, true)
	if err := svc.NotifyTranscriptionCompleted(context.Background(), "Standup Notes"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsMessages(t *testing.T) {
	var got []captured
	server := captureServer(t, &got)
	svc := serviceFor(server.URL, true, true, true)
	ctx := context.Background()

	if err := svc.NotifyTranscriptionCompleted(ctx, "Standup Notes"); err != nil {
		t.Fatalf("transcription completed: %v", err)
	}
	if err := svc.NotifyJobExhausted(ctx, "Standup Notes", "auto_title", "rate_limited"); err != nil {
		t.Fatalf("job exhausted: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("disk full"), "startup"); err != nil {
		t.Fatalf("error notify: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(got))
	}
	if got[0].title != "Murmur - Transcribed" || got[0].message != "Transcription complete: Standup Notes" {
		t.Fatalf("unexpected first notification %+v", got[0])
	}
	if got[1].priority != "high" || got[1].tags != "murmur,enrichment,failed" {
		t.Fatalf("unexpected exhausted notification %+v", got[1])
	}
	if got[2].message != "Error with startup: disk full" {
		t.Fatalf("unexpected error notification %+v", got[2])
	}
}

func TestCategoryTogglesSuppressSends(t *testing.T) {
	var got []captured
	server := captureServer(t, &got)
	svc := serviceFor(server.URL, false, false, false)
	ctx := context.Background()

	if err := svc.NotifyTranscriptionCompleted(ctx, "Standup Notes"); err != nil {
		t.Fatalf("transcription: %v", err)
	}
	if err := svc.NotifyEnrichmentCompleted(ctx, "Standup Notes", "auto_title"); err != nil {
		t.Fatalf("enrichment: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), ""); err != nil {
		t.Fatalf("error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected suppressed notifications, got %d", len(got))
	}

	// Test notifications are never gated.
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("test notification: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected test notification to send, got %d", len(got))
	}
}

func TestNtfyErrorStatusSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	svc := serviceFor(server.URL, true, true, true)
	if err := svc.NotifyTranscriptionCompleted(context.Background(), "Standup Notes"); err == nil {
		t.Fatal("expected error from non-2xx response")
	}
}
