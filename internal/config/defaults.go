package config

const (
	defaultDataDir              = "~/.local/share/murmur"
	defaultRecordingsDir        = "~/.local/share/murmur/recordings"
	defaultLogDir               = "~/.local/share/murmur/logs"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultTranscriptionBaseURL = "http://127.0.0.1:8771/v1/audio/transcriptions"
	defaultTranscriptionModel   = "whisper-large-v3"
	defaultTranscriptionTimeout = 600
	defaultEnrichmentBaseURL    = "https://openrouter.ai/api/v1/chat/completions"
	defaultTitleModel           = "google/gemini-3-flash-preview"
	defaultDistillModel         = "google/gemini-3-flash-preview"
	defaultEnrichmentReferer    = "https://github.com/murmur-app/murmur"
	defaultEnrichmentTitle      = "Murmur Memo Enrichment"
	defaultEnrichmentTimeout    = 60
	defaultRetryLimit           = 3
	defaultBackoffBaseSeconds   = 30
	defaultBackoffMaxSeconds    = 600
	defaultJobPollInterval      = 5
	defaultNtfyRequestTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			RecordingsDir: defaultRecordingsDir,
			LogDir:        defaultLogDir,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscriptionBaseURL,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Enrichment: Enrichment{
			BaseURL:        defaultEnrichmentBaseURL,
			TitleModel:     defaultTitleModel,
			DistillModel:   defaultDistillModel,
			Referer:        defaultEnrichmentReferer,
			Title:          defaultEnrichmentTitle,
			TimeoutSeconds: defaultEnrichmentTimeout,
		},
		Jobs: Jobs{
			RetryLimit:         defaultRetryLimit,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffMaxSeconds:  defaultBackoffMaxSeconds,
			PollInterval:       defaultJobPollInterval,
		},
		Ingest: Ingest{
			Enabled:  true,
			Backfill: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Transcription:  true,
			Enrichment:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
