package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"murmur/internal/config"
)

const userAgent = "Murmur/0.1.0"

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	NotifyTranscriptionCompleted(ctx context.Context, memoTitle string) error
	NotifyTranscriptionFailed(ctx context.Context, memoTitle, message string) error
	NotifyEnrichmentCompleted(ctx context.Context, memoTitle, kind string) error
	NotifyJobExhausted(ctx context.Context, memoTitle, kind, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		transcription: cfg.Notifications.Transcription,
		enrichment:    cfg.Notifications.Enrichment,
		errors:        cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client

	transcription bool
	enrichment    bool
	errors        bool
}

func (n *ntfyService) NotifyTranscriptionCompleted(ctx context.Context, memoTitle string) error {
	if !n.transcription {
		return nil
	}
	memoTitle = strings.TrimSpace(memoTitle)
	data := payload{
		title:   "Murmur - Transcribed",
		message: fmt.Sprintf("Transcription complete: %s", memoTitle),
		tags:    []string{"murmur", "transcription", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTranscriptionFailed(ctx context.Context, memoTitle, message string) error {
	if !n.transcription {
		return nil
	}
	memoTitle = strings.TrimSpace(memoTitle)
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown error"
	}
	data := payload{
		title:    "Murmur - Transcription Failed",
		message:  fmt.Sprintf("Transcription failed: %s\n%s", memoTitle, message),
		tags:     []string{"murmur", "transcription", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEnrichmentCompleted(ctx context.Context, memoTitle, kind string) error {
	if !n.enrichment {
		return nil
	}
	memoTitle = strings.TrimSpace(memoTitle)
	kind = strings.TrimSpace(kind)
	data := payload{
		title:   "Murmur - Enriched",
		message: fmt.Sprintf("%s ready: %s", kind, memoTitle),
		tags:    []string{"murmur", "enrichment", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobExhausted(ctx context.Context, memoTitle, kind, reason string) error {
	if !n.enrichment {
		return nil
	}
	memoTitle = strings.TrimSpace(memoTitle)
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Murmur - Enrichment Gave Up",
		message:  fmt.Sprintf("%s failed permanently for %s (%s)", kind, memoTitle, reason),
		tags:     []string{"murmur", "enrichment", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Murmur - Error",
		message:  builder.String(),
		tags:     []string{"murmur", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Murmur - Test",
		message:  "Notification system test",
		tags:     []string{"murmur", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTranscriptionCompleted(context.Context, string) error { return nil }

func (noopService) NotifyTranscriptionFailed(context.Context, string, string) error { return nil }

func (noopService) NotifyEnrichmentCompleted(context.Context, string, string) error { return nil }

func (noopService) NotifyJobExhausted(context.Context, string, string, string) error { return nil }

func (noopService) NotifyError(context.Context, error, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
