package config

const (
	defaultDataDir  = "~/.local/share/prcast"
	defaultAudioDir = "~/.local/share/prcast/audio"
	defaultFeedsDir = "~/.local/share/prcast/feeds"
	defaultLogDir   = "~/.local/share/prcast/logs"
	defaultAPIBind  = "127.0.0.1:8080"

	defaultGitHubBaseURL      = "https://api.github.com"
	defaultGitHubTimeout      = 30
	defaultGitHubDiffMaxBytes = 50 * 1024

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "openai/gpt-4o"
	defaultLLMReferer        = "https://github.com/prcast/prcast"
	defaultLLMTitle          = "PRCast Scriptwriter"
	defaultLLMTimeoutSeconds = 120

	defaultTTSBaseURL        = "https://api.elevenlabs.io/v1/text-to-speech"
	defaultTTSModelID        = "eleven_turbo_v2_5"
	defaultTTSHostAVoice     = "en-US-AndrewMultilingualNeural"
	defaultTTSHostBVoice     = "en-US-JennyNeural"
	defaultTTSTimeoutSeconds = 60
	defaultTTSTurnGapMillis  = 600

	defaultPodcastTitle       = "PRCast"
	defaultPodcastDescription = "AI-generated podcast episodes from Pull Requests"
	defaultPodcastAuthor      = "PRCast"
	defaultPodcastLanguage    = "en"
	defaultPodcastCategory    = "Technology"
	defaultPodcastBaseURL     = "http://localhost:8080"
	defaultHostAName          = "Alex"
	defaultHostBName          = "Sam"

	defaultWorkers            = 4
	defaultMaxPerRepo         = 1
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultLeaseSeconds       = 120
	defaultRetryBaseSeconds   = 5
	defaultRetryMaxSeconds    = 300
	defaultMaxAttempts        = 5

	defaultNtfyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			AudioDir: defaultAudioDir,
			FeedsDir: defaultFeedsDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		GitHub: GitHub{
			BaseURL:        defaultGitHubBaseURL,
			TriggerActions: []string{"closed"},
			RequireMerged:  true,
			TimeoutSeconds: defaultGitHubTimeout,
			DiffMaxBytes:   defaultGitHubDiffMaxBytes,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			ModelID:        defaultTTSModelID,
			HostAVoice:     defaultTTSHostAVoice,
			HostBVoice:     defaultTTSHostBVoice,
			TimeoutSeconds: defaultTTSTimeoutSeconds,
			TurnGapMillis:  defaultTTSTurnGapMillis,
		},
		Podcast: Podcast{
			Title:       defaultPodcastTitle,
			Description: defaultPodcastDescription,
			Author:      defaultPodcastAuthor,
			Language:    defaultPodcastLanguage,
			Category:    defaultPodcastCategory,
			BaseURL:     defaultPodcastBaseURL,
			HostAName:   defaultHostAName,
			HostBName:   defaultHostBName,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			MaxPerRepo:         defaultMaxPerRepo,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			LeaseSeconds:       defaultLeaseSeconds,
			RetryBaseSeconds:   defaultRetryBaseSeconds,
			RetryMaxSeconds:    defaultRetryMaxSeconds,
			MaxAttempts:        defaultMaxAttempts,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Published:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
