package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"prcast/internal/config"
)

const userAgent = "PRCast/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyEpisodePublished(ctx context.Context, repo, title string, prNumber int) error
	NotifyJobFailed(ctx context.Context, repo string, prNumber int, reason string) error
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
		endpoint:         topic,
		client:           &http.Client{Timeout: timeout},
		publishedEnabled: cfg.Notifications.Published,
		errorsEnabled:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint         string
	client           *http.Client
	publishedEnabled bool
	errorsEnabled    bool
}

func (n *ntfyService) NotifyEpisodePublished(ctx context.Context, repo, title string, prNumber int) error {
	if !n.publishedEnabled {
		return nil
	}
	data := payload{
		title:   "PRCast - Episode Published",
		message: fmt.Sprintf("New episode for %s#%d: %s", repo, prNumber, strings.TrimSpace(title)),
		tags:    []string{"prcast", "episode", "published"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, repo string, prNumber int, reason string) error {
	if !n.errorsEnabled {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "PRCast - Job Failed",
		message:  fmt.Sprintf("Episode for %s#%d failed: %s", repo, prNumber, reason),
		tags:     []string{"prcast", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "PRCast - Test",
		message:  "Notification system test",
		tags:     []string{"prcast", "test"},
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
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ntfy notification failed: http %d", resp.StatusCode)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyEpisodePublished(context.Context, string, string, int) error { return nil }

func (noopService) NotifyJobFailed(context.Context, string, int, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
