package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"murmur/internal/analysis"
	"murmur/internal/config"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 30 * time.Second
)

const titlePrompt = `You title voice memos. Given a transcript, respond with JSON only:
{"title": "<at most eight words capturing the memo's subject>"}
Do not quote the transcript verbatim. Do not add commentary.`

// distillPrompts maps each analysis mode to its system prompt. The model
// must answer with the JSON shape the mode's readers decode.
var distillPrompts = map[analysis.Mode]string{
	analysis.ModeSummary: `You summarize voice memos. Given a transcript, respond with JSON only:
{"headline": "<one sentence>", "points": ["<key point>", ...]}
At most five points. Do not add commentary.`,
	analysis.ModeInsights: `You extract insights from voice memos. Given a transcript, respond with JSON only:
{"themes": ["<recurring theme>", ...], "actions": ["<follow-up the speaker committed to>", ...]}
Empty arrays are valid. Do not add commentary.`,
}

// Generator produces AI enrichments from a memo transcript.
type Generator interface {
	GenerateTitle(ctx context.Context, transcript string) (string, error)
	GenerateDistill(ctx context.Context, transcript string, mode analysis.Mode) (analysis.Envelope, error)
}

// Client wraps an OpenRouter-style chat completion API for title and
// distill generation. It performs no retries of its own; callers classify
// failures and reschedule through the job repository.
type Client struct {
	cfg        config.Enrichment
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient constructs an enrichment client from configuration.
func NewClient(cfg config.Enrichment, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: config.Enrichment{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			TitleModel:     strings.TrimSpace(cfg.TitleModel),
			DistillModel:   strings.TrimSpace(cfg.DistillModel),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// GenerateTitle produces a short display title for a transcript.
func (c *Client) GenerateTitle(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", fmt.Errorf("%w: generate title: empty transcript", ErrInvalidInput)
	}
	content, err := c.completeJSON(ctx, "generate title", c.cfg.TitleModel, titlePrompt, transcript)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Title string `json:"title"`
	}
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return "", fmt.Errorf("%w: generate title: parse payload: %w", ErrTransient, err)
	}
	title := NormalizeTitle(parsed.Title)
	if title == "" {
		return "", fmt.Errorf("%w: generate title: empty title", ErrTransient)
	}
	return title, nil
}

// GenerateDistill produces an analysis envelope for one mode.
func (c *Client) GenerateDistill(ctx context.Context, transcript string, mode analysis.Mode) (analysis.Envelope, error) {
	var empty analysis.Envelope
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return empty, fmt.Errorf("%w: generate distill: empty transcript", ErrInvalidInput)
	}
	prompt, ok := distillPrompts[mode]
	if !ok {
		return empty, fmt.Errorf("%w: generate distill: unknown mode %q", ErrInvalidInput, mode)
	}

	start := time.Now()
	content, err := c.completeJSON(ctx, "generate distill", c.cfg.DistillModel, prompt, transcript)
	if err != nil {
		return empty, err
	}
	payload, err := ExtractModelJSON(content)
	if err != nil {
		return empty, fmt.Errorf("%w: generate distill: parse payload: %w", ErrTransient, err)
	}
	return analysis.NewEnvelope(mode, c.cfg.DistillModel, time.Since(start), payload), nil
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.completeJSON(ctx, "health", c.cfg.TitleModel,
		"You must respond with JSON only.",
		`Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return fmt.Errorf("health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("health: unexpected response")
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) completeJSON(ctx context.Context, op, model, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%s: api key required", op)
	}
	if model == "" {
		return "", fmt.Errorf("%s: model required", op)
	}
	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode body: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: http error: %w", ErrTransient, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: read body: %w", ErrTransient, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(op, resp.StatusCode, raw)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return "", fmt.Errorf("%w: %s: decode response: %w", ErrTransient, op, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("%w: %s: api error: %s", ErrModelUnavailable, op, strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return "", fmt.Errorf("%w: %s: model refused: %s", ErrInvalidInput, op, refusal)
		}
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if content := strings.TrimSpace(choice.Text); content != "" {
			return content, nil
		}
	}
	return "", fmt.Errorf("%w: %s: empty completion", ErrTransient, op)
}

// DecodeModelJSON decodes JSON from a model response, tolerating code
// fences and leading prose.
func DecodeModelJSON(content string, target any) error {
	raw, err := ExtractModelJSON(content)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// ExtractModelJSON pulls the JSON object or array out of a model response.
func ExtractModelJSON(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, errors.New("empty payload")
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized != "" && json.Valid([]byte(sanitized)) {
		return json.RawMessage(sanitized), nil
	}
	return nil, fmt.Errorf("no JSON payload in %q", snippet(trimmed))
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	if start := strings.Index(trimmed, "["); start >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	const limit = 120
	runes := []rune(clean)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
