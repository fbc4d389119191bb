package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidLogLevels lists the allowed zerolog level names.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// Validate checks a Config for invalid or out-of-range values, collecting
// every violation before returning so an operator sees the whole list at
// once rather than fixing one field at a time.
func Validate(cfg *Config) error {
	var errs []string

	if _, err := url.ParseRequestURI(cfg.LlamaURL); err != nil {
		errs = append(errs, fmt.Sprintf("llama_url must be a valid URL, got %q", cfg.LlamaURL))
	}
	if cfg.NSlots < 1 {
		errs = append(errs, fmt.Sprintf("n_slots must be at least 1, got %d", cfg.NSlots))
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port))
	}
	if cfg.MetaDir == "" {
		errs = append(errs, "meta_dir must not be empty")
	}
	if cfg.BigThresholdWords < 0 {
		errs = append(errs, fmt.Sprintf("big_threshold_words must be non-negative, got %d", cfg.BigThresholdWords))
	}
	if cfg.WordsPerBlock < 1 {
		errs = append(errs, fmt.Sprintf("words_per_block must be at least 1, got %d", cfg.WordsPerBlock))
	}
	if cfg.LCPThreshold < 0 || cfg.LCPThreshold > 1 {
		errs = append(errs, fmt.Sprintf("lcp_th must be between 0 and 1, got %f", cfg.LCPThreshold))
	}
	if cfg.RequestTimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("request_timeout must be positive, got %d", cfg.RequestTimeoutSeconds))
	}
	if cfg.CacheDir == "" {
		errs = append(errs, "cache_dir must not be empty")
	}
	if cfg.CacheMaxAgeHours < 0 {
		errs = append(errs, fmt.Sprintf("cache_max_age_hours must be non-negative (0 disables age eviction), got %d", cfg.CacheMaxAgeHours))
	}
	if cfg.CacheMaxSizeGB <= 0 {
		errs = append(errs, fmt.Sprintf("cache_max_size_gb must be positive, got %f", cfg.CacheMaxSizeGB))
	}
	if cfg.CacheCleanupIntervalMinutes < 1 {
		errs = append(errs, fmt.Sprintf("cache_cleanup_interval_minutes must be at least 1, got %d", cfg.CacheCleanupIntervalMinutes))
	}
	if !isValidEnum(cfg.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("log_level must be one of %v, got %q", ValidLogLevels, cfg.LogLevel))
	}
	if cfg.LogFormat != "" && cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("log_format must be \"console\", \"json\", or empty, got %q", cfg.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
