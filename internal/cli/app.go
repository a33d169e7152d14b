package cli

import (
	"context"
	"fmt"
	"time"

	"cohortlens/internal/ai"
	"cohortlens/internal/anonymize"
	"cohortlens/internal/cache"
	"cohortlens/internal/config"
	"cohortlens/internal/corpus"
	"cohortlens/internal/errors"
	"cohortlens/internal/observability"
	"cohortlens/internal/recommend"
	"cohortlens/internal/server"
	"cohortlens/internal/stats"
)

const corpusReloadDelay = time.Second

// app holds the services shared by the commands
type app struct {
	cfg    *config.Config
	logger *errors.Logger

	obs        *observability.Manager
	snapshot   *corpus.Snapshot
	pinger     interface{ Ping(context.Context) error }
	watcher    *corpus.Watcher
	anonymizer ai.Anonymizer
	stats      *stats.Service
	cache      *cache.Counting
	recommend  *recommend.Service

	closers []func() error
}

// newApp builds the pipeline from configuration. Close releases everything
// it opened, including on a partial failure.
func newApp(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	var err error

	a.obs, err = observability.NewManager(cfg, Version, logger)
	if err != nil {
		return err
	}

	source, err := a.openCorpus()
	if err != nil {
		return err
	}
	a.snapshot = corpus.NewSnapshot(source, logger)

	if file, ok := source.(*corpus.FileSource); ok && cfg.Corpus.Watch {
		a.watcher = corpus.NewWatcher(file.Path(), a.snapshot, corpusReloadDelay, logger)
		if err := a.watcher.Start(); err != nil {
			return fmt.Errorf("failed to watch corpus file: %w", err)
		}
		a.closers = append(a.closers, a.watcher.Stop)
	}

	a.anonymizer, err = ai.NewAnonymizer(cfg.Anonymizer, logger)
	if err != nil {
		return err
	}
	var orchestrator *anonymize.Orchestrator
	if a.anonymizer != nil {
		a.closers = append(a.closers, a.anonymizer.Close)
		orchestrator = anonymize.NewOrchestrator(a.anonymizer, cfg.Anonymizer, a.obs, logger)
	}

	a.stats, err = stats.NewService(stats.Options{
		Corpus:     a.snapshot,
		Engine:     cfg.Engine,
		Normalizer: cfg.Normalizer,
		Anonymizer: orchestrator,
		Metrics:    a.obs,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	store, err := cache.New(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)
	a.cache = cache.NewCounting(store, a.obs)

	a.recommend = recommend.NewService(a.stats, a.stats.Extractor(), a.cache, cfg.Recommend, cfg.Cache, a.obs, logger)
	return nil
}

func (a *app) openCorpus() (corpus.Source, error) {
	switch a.cfg.Corpus.Source {
	case "postgres":
		db, err := corpus.OpenPostgres(a.cfg.Corpus.DSN)
		if err != nil {
			return nil, errors.NewCorpusError(errors.ErrCodeCorpusUnavailable, "failed to open corpus database", err)
		}
		source, err := corpus.NewPostgresSource(db, a.cfg.Corpus.Table, a.cfg.Corpus.Limit)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.closers = append(a.closers, source.Close)
		a.pinger = source
		return source, nil
	default:
		return corpus.NewFileSource(a.cfg.Corpus.Path, a.cfg.App.MaxFileSize, a.cfg.Corpus.Limit), nil
	}
}

// componentStatus lists the components reported on the /stats endpoint
func (a *app) componentStatus() map[string]server.StatusFunc {
	status := map[string]server.StatusFunc{
		"cache": func() any { return a.cache.Stats() },
		"corpus": func() any {
			return map[string]any{
				"source":    a.cfg.Corpus.Source,
				"records":   a.snapshot.Size(),
				"loaded_at": a.snapshot.LoadedAt(),
				"watching":  a.watcher != nil && a.watcher.IsRunning(),
			}
		},
		"anonymizer": func() any {
			return map[string]any{
				"enabled":  a.anonymizer != nil,
				"provider": a.cfg.Anonymizer.Provider,
				"model":    a.cfg.Anonymizer.Model,
			}
		},
	}
	if g, ok := a.anonymizer.(*ai.GeminiAnonymizer); ok {
		status["circuit_breakers"] = func() any { return g.BreakerStats() }
	}
	return status
}

// health reports whether the corpus database and the anonymizer model are
// reachable. A disabled anonymizer is healthy.
func (a *app) health(ctx context.Context) (map[string]any, bool) {
	details := map[string]any{}
	healthy := true

	if a.pinger != nil {
		if err := a.pinger.Ping(ctx); err != nil {
			details["corpus"] = map[string]any{"available": false, "error": err.Error()}
			healthy = false
		} else {
			details["corpus"] = map[string]any{"available": true}
		}
	}

	if a.anonymizer == nil {
		details["anonymizer"] = "disabled"
		if a.cfg.Anonymizer.Enabled {
			details["anonymizer"] = "not configured"
		}
		return details, healthy
	}
	info := a.anonymizer.GetModelInfo(ctx)
	details["anonymizer"] = info
	return details, healthy && info.Available
}

// Close stops the watcher, closes the stores and flushes telemetry
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to release resource", "error", err.Error())
		}
	}
	a.closers = nil

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.obs.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("Failed to flush telemetry", "error", err.Error())
	}
}
