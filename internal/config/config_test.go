package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NSlots != DefaultNSlots {
		t.Fatalf("expected default n_slots %d, got %d", DefaultNSlots, cfg.NSlots)
	}
	if cfg.WordsPerBlock != DefaultWordsPerBlock {
		t.Fatalf("expected default words_per_block %d, got %d", DefaultWordsPerBlock, cfg.WordsPerBlock)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("N_SLOTS", "8")
	t.Setenv("LCP_TH", "0.75")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NSlots != 8 {
		t.Fatalf("expected env override n_slots=8, got %d", cfg.NSlots)
	}
	if cfg.LCPThreshold != 0.75 {
		t.Fatalf("expected env override lcp_th=0.75, got %f", cfg.LCPThreshold)
	}
}

func TestLoad_TOMLFileSuppliesValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxycache.toml")
	content := "n_slots = 6\nlcp_th = 0.6\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NSlots != 6 {
		t.Fatalf("expected toml n_slots=6, got %d", cfg.NSlots)
	}
}

func TestLoad_EnvWinsOverTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxycache.toml")
	if err := os.WriteFile(path, []byte("n_slots = 6\n"), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	t.Setenv("N_SLOTS", "9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NSlots != 9 {
		t.Fatalf("expected env to win over file, got %d", cfg.NSlots)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("N_SLOTS", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for n_slots=0")
	}
}

func TestLoad_NonexistentExplicitFileIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("expected missing explicit file to fall back to defaults, got error: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	got := ExpandHome("~/x")
	want := filepath.Join(home, "x")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandHome_LeavesNonTildePathsAlone(t *testing.T) {
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("expected absolute path untouched, got %q", got)
	}
}
