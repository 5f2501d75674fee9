package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	AudioDir string `toml:"audio_dir"`
	FeedsDir string `toml:"feeds_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
}

// GitHub contains configuration for the PR context collector and webhook intake.
type GitHub struct {
	Token          string   `toml:"token"`
	BaseURL        string   `toml:"base_url"`
	WebhookSecret  string   `toml:"webhook_secret"`
	TriggerActions []string `toml:"trigger_actions"`
	RequireMerged  bool     `toml:"require_merged"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	DiffMaxBytes   int      `toml:"diff_max_bytes"`
}

// LLM contains configuration for dialogue script generation.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTS contains configuration for per-turn audio rendering.
type TTS struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	ModelID        string `toml:"model_id"`
	HostAVoice     string `toml:"host_a_voice"`
	HostBVoice     string `toml:"host_b_voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	TurnGapMillis  int    `toml:"turn_gap_millis"`
}

// Podcast contains channel metadata used for RSS generation.
type Podcast struct {
	Title       string            `toml:"title"`
	Description string            `toml:"description"`
	Author      string            `toml:"author"`
	Email       string            `toml:"email"`
	Language    string            `toml:"language"`
	Category    string            `toml:"category"`
	Image       string            `toml:"image"`
	ImageMap    map[string]string `toml:"image_map"`
	BaseURL     string            `toml:"base_url"`
	HostAName   string            `toml:"host_a_name"`
	HostBName   string            `toml:"host_b_name"`
}

// Workflow contains scheduler timing, concurrency, and retry configuration.
type Workflow struct {
	Workers            int `toml:"workers"`
	MaxPerRepo         int `toml:"max_per_repo"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	LeaseSeconds       int `toml:"lease_seconds"`
	RetryBaseSeconds   int `toml:"retry_base_seconds"`
	RetryMaxSeconds    int `toml:"retry_max_seconds"`
	MaxAttempts        int `toml:"max_attempts"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Published      bool   `toml:"published"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for PRCast.
//
// Configuration sections by subsystem:
//   - Paths: data, audio, feed, and log directories plus the API bind address
//   - GitHub: collector credentials and webhook intake settings
//   - LLM: dialogue script generation connection settings
//   - TTS: per-turn audio rendering connection settings
//   - Podcast: RSS channel metadata and host names
//   - Workflow: worker pool sizing, lease timing, and retry policy
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	GitHub        GitHub        `toml:"github"`
	LLM           LLM           `toml:"llm"`
	TTS           TTS           `toml:"tts"`
	Podcast       Podcast       `toml:"podcast"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/prcast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. The boolean reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to overwrite.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists: %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.AudioDir, c.Paths.FeedsDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("prcast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}
