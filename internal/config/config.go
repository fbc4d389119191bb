// Package config loads proxycached's configuration: environment variables
// are authoritative per the external interfaces table, with an optional
// TOML file for operators who prefer files, and hot reload for the subset
// of settings safe to change live.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the fully resolved, validated configuration.
type Config struct {
	LlamaURL string `mapstructure:"llama_url"`
	NSlots   int    `mapstructure:"n_slots"`
	Port     int    `mapstructure:"port"`
	MetaDir  string `mapstructure:"meta_dir"`

	BigThresholdWords int     `mapstructure:"big_threshold_words"`
	WordsPerBlock     int     `mapstructure:"words_per_block"`
	LCPThreshold      float64 `mapstructure:"lcp_th"`

	RequestTimeoutSeconds int `mapstructure:"request_timeout"`

	CacheDir                    string  `mapstructure:"cache_dir"`
	CacheMaxAgeHours            int     `mapstructure:"cache_max_age_hours"`
	CacheMaxSizeGB              float64 `mapstructure:"cache_max_size_gb"`
	CacheCleanupIntervalMinutes int     `mapstructure:"cache_cleanup_interval_minutes"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// RequestTimeout returns the configured request timeout as a time.Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// CacheCleanupInterval returns the janitor tick period as a time.Duration.
func (c *Config) CacheCleanupInterval() time.Duration {
	return time.Duration(c.CacheCleanupIntervalMinutes) * time.Minute
}

// CacheMaxSizeBytes returns the size bound in bytes.
func (c *Config) CacheMaxSizeBytes() int64 {
	return int64(c.CacheMaxSizeGB * (1 << 30))
}

// envKeys maps each config field to the literal environment variable name
// from the external interfaces table — flat, unprefixed, exactly as
// operators expect from the table, not this stack's usual PROJECTNAME_
// prefix convention.
var envKeys = map[string]string{
	"llama_url":                      "LLAMA_URL",
	"n_slots":                        "N_SLOTS",
	"port":                           "PORT",
	"meta_dir":                       "META_DIR",
	"big_threshold_words":            "BIG_THRESHOLD_WORDS",
	"words_per_block":                "WORDS_PER_BLOCK",
	"lcp_th":                         "LCP_TH",
	"request_timeout":                "REQUEST_TIMEOUT",
	"cache_dir":                      "CACHE_DIR",
	"cache_max_age_hours":            "CACHE_MAX_AGE_HOURS",
	"cache_max_size_gb":              "CACHE_MAX_SIZE_GB",
	"cache_cleanup_interval_minutes": "CACHE_CLEANUP_INTERVAL_MINUTES",
	"log_level":                      "LOG_LEVEL",
	"log_format":                     "LOG_FORMAT",
}

// Load builds a Config from defaults, an optional TOML file (if tomlPath is
// non-empty and exists), and the environment, with the environment always
// winning.
func Load(tomlPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	if tomlPath != "" {
		if data, err := os.ReadFile(tomlPath); err == nil {
			if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", tomlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", tomlPath, err)
		}
	}

	for key, env := range envKeys {
		_ = v.BindEnv(key, env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.MetaDir = ExpandHome(cfg.MetaDir)
	cfg.CacheDir = ExpandHome(cfg.CacheDir)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llama_url", DefaultLlamaURL)
	v.SetDefault("n_slots", DefaultNSlots)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("meta_dir", DefaultMetaDir)
	v.SetDefault("big_threshold_words", DefaultBigThresholdWords)
	v.SetDefault("words_per_block", DefaultWordsPerBlock)
	v.SetDefault("lcp_th", DefaultLCPThreshold)
	v.SetDefault("request_timeout", DefaultRequestTimeoutSeconds)
	v.SetDefault("cache_dir", DefaultCacheDir)
	v.SetDefault("cache_max_age_hours", DefaultCacheMaxAgeHours)
	v.SetDefault("cache_max_size_gb", DefaultCacheMaxSizeGB)
	v.SetDefault("cache_cleanup_interval_minutes", DefaultCacheCleanupIntervalMinutes)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
}

// current is the atomically-swapped live snapshot, populated by main and
// updated by the file watcher on hot-reloadable keys.
var current atomic.Pointer[Config]

func Set(c *Config)    { current.Store(c) }
func Current() *Config { return current.Load() }

// ExpandHome expands a leading "~" to the user's home directory, mirroring
// the convention this stack's config loader already uses for directory
// defaults.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
