package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"codecell/internal/analyzer"
	"codecell/internal/api"
	"codecell/internal/cache"
	"codecell/internal/config"
	"codecell/internal/executor"
	"codecell/internal/monitor"
	"codecell/internal/sandbox"
	"codecell/internal/storage"
)

// learningRecorder bridges executor records into the buffered writer.
type learningRecorder struct {
	writer *storage.Writer
}

func (r *learningRecorder) Record(rec executor.Record) {
	r.writer.Log(&storage.ExecutionRecord{
		CodeHash:      rec.CodeHash,
		Language:      "python",
		Success:       rec.Success,
		ExecutionTime: rec.ExecutionTime,
		ErrorCategory: rec.ErrorCategory,
		CodeSnippet:   rec.CodeSnippet,
	})
}

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	metrics := monitor.NewMetrics()

	// Result cache (optional)
	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = cache.New(cfg.Cache.Directory, cfg.Cache.MaxSizeMB, cfg.Cache.TTL)
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.Cache.Directory).Msg("cache unavailable, caching disabled")
			store = nil
		}
	}

	// Database is optional; the service runs without it for development.
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, learning records disabled")
		} else {
			defer db.Close()
		}
	}

	// Learning writer (buffered, async)
	var writer *storage.Writer
	if db != nil {
		writer = storage.NewWriter(db, 10000)
		writer.Start()
		defer writer.Flush(10 * time.Second)
	}

	// Sandbox runner and execution pipeline
	var exec *executor.Executor
	var runner *sandbox.Runner
	if cfg.Sandbox.Enabled {
		runner, err = sandbox.NewRunner(sandbox.Options{
			PythonBin:      cfg.Sandbox.PythonBin,
			DefaultTimeout: cfg.Sandbox.Timeout,
			MaxTimeout:     cfg.Sandbox.MaxTimeout,
			MaxOutputLen:   cfg.Sandbox.MaxOutputLen,
			MaxCodeLen:     cfg.Sandbox.MaxCodeLen,
			MaxConcurrent:  cfg.Sandbox.MaxConcurrent,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("invalid sandbox options")
		}

		opts := []executor.Option{executor.WithMetrics(metrics)}
		if store != nil {
			opts = append(opts, executor.WithCache(store))
		}
		if writer != nil {
			opts = append(opts, executor.WithRecorder(&learningRecorder{writer: writer}))
		}
		exec, err = executor.New(analyzer.New(), runner, cfg.Sandbox.Timeout, cfg.Sandbox.MaxOutputLen, opts...)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build execution pipeline")
		}
	} else {
		log.Warn().Msg("sandbox disabled, execution requests will be rejected")
	}

	// Create and start HTTP server
	server := api.NewServer(cfg, exec, store, db, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		if runner != nil {
			if err := runner.Close(); err != nil {
				log.Error().Err(err).Msg("runner close error")
			}
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("cache_enabled", store != nil).
		Bool("db_enabled", db != nil).
		Bool("sandbox_enabled", exec != nil).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
