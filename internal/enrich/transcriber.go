package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/config"
)

// Transcriber converts a recorded audio file into text. Implementations
// tag failures with the sentinel markers in this package so the pipeline
// can classify them.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// WhisperClient talks to an OpenAI-compatible audio transcription endpoint.
type WhisperClient struct {
	cfg        config.Transcription
	httpClient *http.Client
}

// NewWhisperClient constructs a transcription client from configuration.
func NewWhisperClient(cfg config.Transcription, opts ...WhisperOption) *WhisperClient {
	timeout := 120 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &WhisperClient{
		cfg: config.Transcription{
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// WhisperOption customizes the transcription client.
type WhisperOption func(*WhisperClient)

// WithWhisperHTTPClient overrides the default HTTP client.
func WithWhisperHTTPClient(httpClient *http.Client) WhisperOption {
	return func(c *WhisperClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// Transcribe uploads the audio file and returns the recognized text.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if strings.TrimSpace(audioPath) == "" {
		return "", fmt.Errorf("%w: transcribe: audio path required", ErrInvalidInput)
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("transcribe: api key required")
	}

	audio, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("%w: transcribe: open audio: %w", ErrInvalidInput, err)
	}
	defer audio.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("transcribe: read audio: %w", err)
	}
	if err := writer.WriteField("model", c.cfg.Model); err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: transcribe: http error: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: transcribe: read body: %w", ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("transcribe", resp.StatusCode, raw)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: transcribe: decode response: %w", ErrTransient, err)
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", fmt.Errorf("%w: transcribe: empty transcript", ErrInvalidInput)
	}
	return text, nil
}

// classifyStatus tags an HTTP failure with the matching sentinel marker.
func classifyStatus(op string, statusCode int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: http %d: %s", ErrRateLimited, op, statusCode, detail)
	case statusCode == http.StatusBadRequest,
		statusCode == http.StatusUnprocessableEntity,
		statusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s: http %d: %s", ErrInvalidInput, op, statusCode, detail)
	case statusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s: http %d: %s", ErrModelUnavailable, op, statusCode, detail)
	default:
		return fmt.Errorf("%w: %s: http %d: %s", ErrTransient, op, statusCode, detail)
	}
}
