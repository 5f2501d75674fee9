package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGitHub(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGitHub() error {
	if strings.TrimSpace(c.GitHub.Token) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/prcast/config.toml"
		}
		return fmt.Errorf("github.token is required. Set GITHUB_TOKEN env var or edit %s (create with 'prcast config init')", defaultPath)
	}
	for _, action := range c.GitHub.TriggerActions {
		if strings.TrimSpace(action) == "" {
			return errors.New("github.trigger_actions entries must not be empty")
		}
	}
	return nil
}

func (c *Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.api_key is required for script generation")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	return nil
}

func (c *Config) validateTTS() error {
	if strings.TrimSpace(c.TTS.HostAVoice) == "" {
		return errors.New("tts.host_a_voice must be set")
	}
	if strings.TrimSpace(c.TTS.HostBVoice) == "" {
		return errors.New("tts.host_b_voice must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxPerRepo != 1 {
		return errors.New("workflow.max_per_repo must be 1; episodes within a repository are published in event order")
	}
	if c.Workflow.Workers < 1 {
		return errors.New("workflow.workers must be at least 1")
	}
	if c.Workflow.LeaseSeconds <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.lease_seconds must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.RetryMaxSeconds < c.Workflow.RetryBaseSeconds {
		return errors.New("workflow.retry_max_seconds must be >= workflow.retry_base_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
