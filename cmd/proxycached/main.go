// Command proxycached is the process entry point: load config, construct
// the core components, start the janitor, start the HTTP server, wait for
// a shutdown signal, and shut down in reverse order.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dingausmwald/proxycache/internal/config"
	"github.com/dingausmwald/proxycache/internal/coordinator"
	"github.com/dingausmwald/proxycache/internal/daemon"
	"github.com/dingausmwald/proxycache/internal/janitor"
	"github.com/dingausmwald/proxycache/internal/lcpindex"
	"github.com/dingausmwald/proxycache/internal/logging"
	"github.com/dingausmwald/proxycache/internal/metastore"
	"github.com/dingausmwald/proxycache/internal/proxyserver"
	"github.com/dingausmwald/proxycache/internal/slotmanager"
	"github.com/dingausmwald/proxycache/internal/stats"
	"github.com/dingausmwald/proxycache/internal/upstream"
	"github.com/dingausmwald/proxycache/internal/version"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		fmt.Println(version.String())
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	tomlPath := ""
	if _, err := os.Stat(config.DefaultConfigFilename); err == nil {
		tomlPath = config.DefaultConfigFilename
	}

	cfg, err := config.Load(tomlPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.Set(cfg)

	logger, ok := logging.New(cfg.LogLevel, cfg.LogFormat)
	if !ok {
		logger.Warn().Str("log_level", cfg.LogLevel).Msg("proxycached: unrecognized log level, defaulting to info")
	}
	logger.Info().Str("version", version.Version).Str("llama_url", cfg.LlamaURL).Int("port", cfg.Port).Msg("proxycached starting")

	if err := os.MkdirAll(cfg.MetaDir, 0o755); err != nil {
		return fmt.Errorf("creating meta dir %s: %w", cfg.MetaDir, err)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir %s: %w", cfg.CacheDir, err)
	}

	if daemon.IsRunning(cfg.MetaDir) {
		return fmt.Errorf("proxycached already running (PID file present in %s)", cfg.MetaDir)
	}
	if err := daemon.WritePID(cfg.MetaDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := daemon.RemovePID(cfg.MetaDir); err != nil {
			logger.Warn().Err(err).Msg("proxycached: failed to remove PID file")
		}
	}()

	meta := metastore.New(cfg.MetaDir, logger)
	index := lcpindex.New()

	entries, err := meta.LoadAll()
	if err != nil {
		return fmt.Errorf("loading metadata from %s: %w", cfg.MetaDir, err)
	}
	for _, e := range entries {
		index.Insert(e)
	}
	logger.Info().Int("entries", len(entries)).Msg("proxycached: metadata loaded")

	slots, err := slotmanager.New(cfg.NSlots)
	if err != nil {
		return fmt.Errorf("creating slot manager: %w", err)
	}

	upstreamClient := upstream.New(cfg.LlamaURL)

	counters := stats.New()

	coord := coordinator.New(coordinator.Config{
		BigThresholdWords: cfg.BigThresholdWords,
		WordsPerBlock:     cfg.WordsPerBlock,
		LCPThreshold:      cfg.LCPThreshold,
		RequestTimeout:    cfg.RequestTimeout(),
	}, slots, index, meta, upstreamClient, logger)
	coord.SetStats(counters)

	j := janitor.New(janitor.Config{
		CacheDir:     cfg.CacheDir,
		MaxAgeHours:  cfg.CacheMaxAgeHours,
		MaxSizeBytes: cfg.CacheMaxSizeBytes(),
		TickInterval: cfg.CacheCleanupInterval(),
	}, meta, index, logger)
	j.SetStats(counters)
	j.Start()
	defer j.Stop()

	var watcher *config.Watcher
	if tomlPath != "" {
		w, err := config.Watch(tomlPath, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("proxycached: failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			// A reload updates config.Current(); the coordinator and janitor
			// keep the settings they were constructed with above, so their
			// behaviour does not change until the process restarts.
			watcher.OnChange(func(old, newCfg *config.Config) {
				logger.Info().Msg("proxycached: configuration reloaded")
			})
		}
	}

	listSlots := func(ctx context.Context, model string) ([]proxyserver.SlotState, error) {
		slots, err := upstreamClient.ListSlots(ctx, model)
		if err != nil {
			return nil, err
		}
		out := make([]proxyserver.SlotState, len(slots))
		for i, s := range slots {
			out[i] = proxyserver.SlotState{ID: s.ID, SaveFile: s.SaveFile}
		}
		return out, nil
	}

	handler := proxyserver.NewHandler(coord, slots, j, counters, listSlots, upstreamClient.PassthroughModels, logger)
	srv := proxyserver.NewServer(handler, fmt.Sprintf(":%d", cfg.Port), 0, 0, 0)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	logger.Info().Int("port", cfg.Port).Msg("proxycached: listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("proxycached: shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("proxycached: fatal server error")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("proxycached: server shutdown error")
	}

	logger.Info().Msg("proxycached stopped")
	return nil
}
