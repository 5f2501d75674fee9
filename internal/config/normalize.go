package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGitHub()
	c.normalizeLLM()
	c.normalizeTTS()
	c.normalizePodcast()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.AudioDir, err = expandPath(c.Paths.AudioDir); err != nil {
		return fmt.Errorf("paths.audio_dir: %w", err)
	}
	if c.Paths.FeedsDir, err = expandPath(c.Paths.FeedsDir); err != nil {
		return fmt.Errorf("paths.feeds_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGitHub() {
	if token := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); token != "" && c.GitHub.Token == "" {
		c.GitHub.Token = token
	}
	c.GitHub.BaseURL = strings.TrimRight(strings.TrimSpace(c.GitHub.BaseURL), "/")
	if c.GitHub.BaseURL == "" {
		c.GitHub.BaseURL = defaultGitHubBaseURL
	}
	if len(c.GitHub.TriggerActions) == 0 {
		c.GitHub.TriggerActions = []string{"closed"}
	}
	for i, action := range c.GitHub.TriggerActions {
		c.GitHub.TriggerActions[i] = strings.ToLower(strings.TrimSpace(action))
	}
	if c.GitHub.TimeoutSeconds <= 0 {
		c.GitHub.TimeoutSeconds = defaultGitHubTimeout
	}
	if c.GitHub.DiffMaxBytes <= 0 {
		c.GitHub.DiffMaxBytes = defaultGitHubDiffMaxBytes
	}
}

func (c *Config) normalizeLLM() {
	if key := strings.TrimSpace(os.Getenv("PRCAST_LLM_API_KEY")); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeTTS() {
	if key := strings.TrimSpace(os.Getenv("PRCAST_TTS_API_KEY")); key != "" && c.TTS.APIKey == "" {
		c.TTS.APIKey = key
	}
	if strings.TrimSpace(c.TTS.BaseURL) == "" {
		c.TTS.BaseURL = defaultTTSBaseURL
	}
	if strings.TrimSpace(c.TTS.ModelID) == "" {
		c.TTS.ModelID = defaultTTSModelID
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
	if c.TTS.TurnGapMillis < 0 {
		c.TTS.TurnGapMillis = defaultTTSTurnGapMillis
	}
}

func (c *Config) normalizePodcast() {
	c.Podcast.BaseURL = strings.TrimRight(strings.TrimSpace(c.Podcast.BaseURL), "/")
	if c.Podcast.BaseURL == "" {
		c.Podcast.BaseURL = defaultPodcastBaseURL
	}
	if strings.TrimSpace(c.Podcast.HostAName) == "" {
		c.Podcast.HostAName = defaultHostAName
	}
	if strings.TrimSpace(c.Podcast.HostBName) == "" {
		c.Podcast.HostBName = defaultHostBName
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.MaxPerRepo <= 0 {
		c.Workflow.MaxPerRepo = defaultMaxPerRepo
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.LeaseSeconds <= 0 {
		c.Workflow.LeaseSeconds = defaultLeaseSeconds
	}
	if c.Workflow.RetryBaseSeconds <= 0 {
		c.Workflow.RetryBaseSeconds = defaultRetryBaseSeconds
	}
	if c.Workflow.RetryMaxSeconds <= 0 {
		c.Workflow.RetryMaxSeconds = defaultRetryMaxSeconds
	}
	if c.Workflow.MaxAttempts <= 0 {
		c.Workflow.MaxAttempts = defaultMaxAttempts
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
