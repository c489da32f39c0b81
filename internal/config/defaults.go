package config

const (
	defaultConfigPath            = "~/.config/keepsake/config.toml"
	defaultDataDir               = "~/.local/share/keepsake"
	defaultLogDir                = "~/.local/share/keepsake/logs"
	defaultBlobDir               = "~/.local/share/keepsake/blobs"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultStorageBackend        = "filesystem"
	defaultStorageTimeoutSeconds = 30
	defaultMaxFileBytes          = 100 << 20
	defaultMaxBatchItems         = 10
	defaultUploadConcurrency     = 4
	defaultSweepIntervalSeconds  = 300
	defaultErrorRetrySeconds     = 10
	defaultClaimTimeoutSeconds   = 1800
	defaultEnrichmentBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultEnrichmentModel       = "google/gemini-3-flash-preview"
	defaultEnrichmentReferer     = "https://github.com/keepsake/keepsake"
	defaultEnrichmentTitle       = "Keepsake"
	defaultStageTimeoutSeconds   = 120
	defaultRenderPollInitialMS   = 1000
	defaultRenderPollMaxMS       = 15000
	defaultRenderMaxWaitSeconds  = 600
	defaultVideoDurationSeconds  = 30
	defaultVideoWidth            = 1920
	defaultVideoHeight           = 1080
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	envEnrichmentAPIKey          = "KEEPSAKE_LLM_API_KEY"
	envRenderAPIKey              = "KEEPSAKE_RENDER_API_KEY"
	envAPIToken                  = "KEEPSAKE_API_TOKEN"
	envOpenRouterAPIKey          = "OPENROUTER_API_KEY"
	storageBackendFilesystem     = "filesystem"
	storageBackendBadger         = "badger"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Storage: Storage{
			Backend:        defaultStorageBackend,
			BlobDir:        defaultBlobDir,
			TimeoutSeconds: defaultStorageTimeoutSeconds,
		},
		Capsule: Capsule{
			MaxFileBytes:      defaultMaxFileBytes,
			MaxBatchItems:     defaultMaxBatchItems,
			UploadConcurrency: defaultUploadConcurrency,
		},
		Scheduler: Scheduler{
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
			ErrorRetrySeconds:    defaultErrorRetrySeconds,
			ClaimTimeoutSeconds:  defaultClaimTimeoutSeconds,
		},
		Enrichment: Enrichment{
			BaseURL:              defaultEnrichmentBaseURL,
			Model:                defaultEnrichmentModel,
			Referer:              defaultEnrichmentReferer,
			Title:                defaultEnrichmentTitle,
			StageTimeoutSeconds:  defaultStageTimeoutSeconds,
			RenderPollInitialMS:  defaultRenderPollInitialMS,
			RenderPollMaxMS:      defaultRenderPollMaxMS,
			RenderMaxWaitSeconds: defaultRenderMaxWaitSeconds,
			VideoDurationSeconds: defaultVideoDurationSeconds,
			VideoWidth:           defaultVideoWidth,
			VideoHeight:          defaultVideoHeight,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
