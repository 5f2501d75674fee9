// Package github wraps the GitHub REST API calls needed to collect pull
// request context for an episode.
package github

import (
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
	defaultBaseURL      = "https://api.github.com"
	defaultHTTPTimeout  = 30 * time.Second
	defaultDiffMaxBytes = 50 * 1024
	apiVersion          = "2022-11-28"
)

// Config captures the runtime settings for the GitHub client.
type Config struct {
	Token          string
	BaseURL        string
	TimeoutSeconds int
	DiffMaxBytes   int
}

// Client talks to the GitHub REST API.
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

// NewClient constructs a GitHub API client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			Token:          strings.TrimSpace(cfg.Token),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			TimeoutSeconds: cfg.TimeoutSeconds,
			DiffMaxBytes:   cfg.DiffMaxBytes,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.DiffMaxBytes <= 0 {
		client.cfg.DiffMaxBytes = defaultDiffMaxBytes
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// PullRequest holds the metadata fields the scriptwriter cares about.
type PullRequest struct {
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	State        string     `json:"state"`
	Merged       bool       `json:"merged"`
	MergedAt     *time.Time `json:"merged_at"`
	HTMLURL      string     `json:"html_url"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	BaseRef      string     `json:"-"`
	HeadRef      string     `json:"-"`
	Author       string     `json:"-"`
}

// Review is one submitted pull request review.
type Review struct {
	Author string `json:"-"`
	State  string `json:"state"`
	Body   string `json:"body"`
}

// Comment is a review comment or issue comment on the pull request.
type Comment struct {
	Author string `json:"-"`
	Body   string `json:"body"`
	Path   string `json:"path,omitempty"`
}

// PRContext bundles everything collected about one pull request.
type PRContext struct {
	Repo          string      `json:"repo"`
	PR            PullRequest `json:"pr"`
	Diff          string      `json:"diff"`
	DiffTruncated bool        `json:"diff_truncated"`
	Reviews       []Review    `json:"reviews"`
	Comments      []Comment   `json:"comments"`
	CollectedAt   time.Time   `json:"collected_at"`
}

// CollectPR gathers metadata, the diff, reviews, and discussion for a pull
// request. The diff is capped at the configured byte limit; everything else is
// fetched whole. Failures are tagged for the retry policy.
func (c *Client) CollectPR(ctx context.Context, repo string, number int) (*PRContext, error) {
	repo = strings.TrimSpace(repo)
	if repo == "" || number <= 0 {
		return nil, services.Wrap(services.ErrValidation, "collecting", "collect", fmt.Sprintf("invalid target %s#%d", repo, number), nil)
	}
	if c.cfg.Token == "" {
		return nil, services.Wrap(services.ErrConfiguration, "collecting", "collect", "github token required", nil)
	}

	pr, err := c.fetchPullRequest(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	diff, truncated, err := c.fetchDiff(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	reviews, err := c.fetchReviews(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	reviewComments, err := c.fetchComments(ctx, fmt.Sprintf("%s/repos/%s/pulls/%d/comments", c.cfg.BaseURL, repo, number))
	if err != nil {
		return nil, err
	}
	issueComments, err := c.fetchComments(ctx, fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.cfg.BaseURL, repo, number))
	if err != nil {
		return nil, err
	}

	return &PRContext{
		Repo:          repo,
		PR:            *pr,
		Diff:          diff,
		DiffTruncated: truncated,
		Reviews:       reviews,
		Comments:      append(reviewComments, issueComments...),
		CollectedAt:   time.Now().UTC(),
	}, nil
}

func (c *Client) fetchPullRequest(ctx context.Context, repo string, number int) (*PullRequest, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/pulls/%d", c.cfg.BaseURL, repo, number), "application/vnd.github+json", -1)
	if err != nil {
		return nil, err
	}
	var raw struct {
		PullRequest
		User *struct {
			Login string `json:"login"`
		} `json:"user"`
		Base *struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head *struct {
			Ref string `json:"ref"`
		} `json:"head"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "collecting", "pull request", "decode response", err)
	}
	pr := raw.PullRequest
	if raw.User != nil {
		pr.Author = raw.User.Login
	}
	if raw.Base != nil {
		pr.BaseRef = raw.Base.Ref
	}
	if raw.Head != nil {
		pr.HeadRef = raw.Head.Ref
	}
	return &pr, nil
}

func (c *Client) fetchDiff(ctx context.Context, repo string, number int) (string, bool, error) {
	limit := int64(c.cfg.DiffMaxBytes)
	body, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/pulls/%d", c.cfg.BaseURL, repo, number), "application/vnd.github.v3.diff", limit+1)
	if err != nil {
		return "", false, err
	}
	if int64(len(body)) > limit {
		return string(body[:limit]), true, nil
	}
	return string(body), false, nil
}

func (c *Client) fetchReviews(ctx context.Context, repo string, number int) ([]Review, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/repos/%s/pulls/%d/reviews", c.cfg.BaseURL, repo, number), "application/vnd.github+json", -1)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Review
		User *struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "collecting", "reviews", "decode response", err)
	}
	reviews := make([]Review, 0, len(raw))
	for _, entry := range raw {
		review := entry.Review
		if entry.User != nil {
			review.Author = entry.User.Login
		}
		if strings.TrimSpace(review.Body) == "" && review.State == "" {
			continue
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

func (c *Client) fetchComments(ctx context.Context, url string) ([]Comment, error) {
	body, err := c.get(ctx, url, "application/vnd.github+json", -1)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Comment
		User *struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "collecting", "comments", "decode response", err)
	}
	comments := make([]Comment, 0, len(raw))
	for _, entry := range raw {
		comment := entry.Comment
		if entry.User != nil {
			comment.Author = entry.User.Login
		}
		if strings.TrimSpace(comment.Body) == "" {
			continue
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// get issues one authenticated GET. maxBytes < 0 reads the whole body.
func (c *Client) get(ctx context.Context, url, accept string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "collecting", "request", url, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "collecting", "request", url, err)
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if maxBytes >= 0 {
		reader = io.LimitReader(resp.Body, maxBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "collecting", "read body", url, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return body, nil
	}
	return nil, classifyStatus(resp.StatusCode, url, body)
}

func classifyStatus(status int, url string, body []byte) error {
	detail := fmt.Sprintf("http %d: %s", status, summarize(body))
	switch {
	case status == http.StatusUnauthorized:
		return services.Wrap(services.ErrConfiguration, "collecting", url, detail, nil)
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		// GitHub reports both secondary rate limits and abuse blocks as 403.
		return services.Wrap(services.ErrTransient, "collecting", url, detail, nil)
	case status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "collecting", url, detail, nil)
	default:
		return services.Wrap(services.ErrPermanent, "collecting", url, detail, nil)
	}
}

func summarize(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
