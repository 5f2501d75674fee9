// Package tts wraps the ElevenLabs-compatible text-to-speech API used to
// render each dialogue turn as an mp3 segment.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"prcast/internal/services"
)

const (
	defaultBaseURL     = "https://api.elevenlabs.io/v1/text-to-speech"
	defaultModelID     = "eleven_turbo_v2_5"
	defaultHTTPTimeout = 60 * time.Second
)

// Config captures the runtime settings for the TTS client.
type Config struct {
	APIKey         string
	BaseURL        string
	ModelID        string
	TimeoutSeconds int
}

// Client renders text into audio.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a TTS client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			ModelID:        strings.TrimSpace(cfg.ModelID),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.ModelID == "" {
		client.cfg.ModelID = defaultModelID
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// RenderTurn synthesizes one spoken line with the given voice and returns the
// mp3 bytes. Failures are tagged for the retry policy.
func (c *Client) RenderTurn(ctx context.Context, voice, text string) ([]byte, error) {
	voice = strings.TrimSpace(voice)
	text = strings.TrimSpace(text)
	if voice == "" {
		return nil, services.Wrap(services.ErrValidation, "rendering", "tts", "voice required", nil)
	}
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "rendering", "tts", "text required", nil)
	}
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "rendering", "tts", "api key required", nil)
	}

	encoded, err := json.Marshal(synthesisRequest{Text: text, ModelID: c.cfg.ModelID})
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "rendering", "tts", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+voice, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "rendering", "tts", "build request", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "rendering", "tts", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "rendering", "tts", "read body", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail := fmt.Sprintf("voice %s: http %d: %s", voice, resp.StatusCode, summarize(body))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, services.Wrap(services.ErrConfiguration, "rendering", "tts", detail, nil)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			return nil, services.Wrap(services.ErrTransient, "rendering", "tts", detail, nil)
		default:
			return nil, services.Wrap(services.ErrPermanent, "rendering", "tts", detail, nil)
		}
	}
	if len(body) == 0 {
		return nil, services.Wrap(services.ErrTransient, "rendering", "tts", "empty audio response", nil)
	}
	return body, nil
}

func summarize(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
