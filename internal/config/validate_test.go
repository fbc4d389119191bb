package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		LlamaURL:                    DefaultLlamaURL,
		NSlots:                      DefaultNSlots,
		Port:                        DefaultPort,
		MetaDir:                     "/tmp/meta",
		BigThresholdWords:           DefaultBigThresholdWords,
		WordsPerBlock:               DefaultWordsPerBlock,
		LCPThreshold:                DefaultLCPThreshold,
		RequestTimeoutSeconds:       DefaultRequestTimeoutSeconds,
		CacheDir:                    "/tmp/cache",
		CacheMaxAgeHours:            DefaultCacheMaxAgeHours,
		CacheMaxSizeGB:              DefaultCacheMaxSizeGB,
		CacheCleanupIntervalMinutes: DefaultCacheCleanupIntervalMinutes,
		LogLevel:                    DefaultLogLevel,
		LogFormat:                   DefaultLogFormat,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("validate valid config: %v", err)
	}
}

func TestValidate_BadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for port 70000")
	}
	if !strings.Contains(err.Error(), "port") {
		t.Errorf("error should mention port: %v", err)
	}
}

func TestValidate_ZeroSlotsRejected(t *testing.T) {
	cfg := validConfig()
	cfg.NSlots = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for n_slots=0")
	}
}

func TestValidate_LCPThresholdOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.LCPThreshold = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for lcp_th > 1")
	}
}

func TestValidate_NegativeAgeHoursRejected(t *testing.T) {
	cfg := validConfig()
	cfg.CacheMaxAgeHours = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative cache_max_age_hours")
	}
}

func TestValidate_ZeroAgeHoursAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.CacheMaxAgeHours = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected cache_max_age_hours=0 (disables age eviction) to be valid, got %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = -1
	cfg.NSlots = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "port") || !strings.Contains(err.Error(), "n_slots") {
		t.Fatalf("expected combined error to mention both violations, got: %v", err)
	}
}
