package config

const (
	defaultCredentialsPath     = "~/.config/parcelwatch/credentials.json"
	defaultTokenPath           = "~/.config/parcelwatch/token.json"
	defaultSinceDays           = 30
	defaultDataDir             = "~/.local/share/parcelwatch"
	defaultLogDir              = "~/.local/share/parcelwatch/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultCheckInterval       = 15
	defaultMaxMessages         = 50
	defaultRefreshStaleMinutes = 60
	defaultDeliveredRefresh    = 0
	defaultRequestTimeout      = 10
	defaultRetryMaxAttempts    = 3
	defaultRetryBaseDelayMS    = 500
	defaultRetryMaxDelayMS     = 10000
	defaultCircuitThreshold    = 5
	defaultMaxDisplayParcels   = 20
	defaultDisplayRefresh      = 30
)

// Default returns the configuration used before any file or environment
// overrides are applied.
func Default() Config {
	return Config{
		Gmail: Gmail{
			CredentialsPath: defaultCredentialsPath,
			TokenPath:       defaultTokenPath,
			SinceDays:       defaultSinceDays,
		},
		Tracking: Tracking{
			CheckIntervalMinutes:    defaultCheckInterval,
			MaxMessagesPerCycle:     defaultMaxMessages,
			RefreshStaleMinutes:     defaultRefreshStaleMinutes,
			DeliveredRefreshHours:   defaultDeliveredRefresh,
			RequestTimeoutSeconds:   defaultRequestTimeout,
			RetryMaxAttempts:        defaultRetryMaxAttempts,
			RetryBaseDelayMS:        defaultRetryBaseDelayMS,
			RetryMaxDelayMS:         defaultRetryMaxDelayMS,
			CircuitFailureThreshold: defaultCircuitThreshold,
		},
		Display: Display{
			MaxParcels:     defaultMaxDisplayParcels,
			RefreshSeconds: defaultDisplayRefresh,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
