package config

// Defaults for every configuration key in the external interfaces table.
const (
	DefaultLlamaURL = "http://127.0.0.1:8080"
	DefaultNSlots   = 4
	DefaultPort     = 8090
	DefaultMetaDir  = "~/.proxycache/meta"

	DefaultBigThresholdWords = 256
	DefaultWordsPerBlock     = 32
	DefaultLCPThreshold      = 0.5

	DefaultRequestTimeoutSeconds = 120

	DefaultCacheDir                     = "~/.proxycache/cache"
	DefaultCacheMaxAgeHours             = 24
	DefaultCacheMaxSizeGB               = 10.0
	DefaultCacheCleanupIntervalMinutes  = 15

	DefaultLogLevel  = "info"
	DefaultLogFormat = ""

	DefaultConfigFilename = "proxycache.toml"
)
