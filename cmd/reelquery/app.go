package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/reelquery/reelquery/internal/bus"
	"github.com/reelquery/reelquery/internal/config"
	"github.com/reelquery/reelquery/internal/endpoint"
	"github.com/reelquery/reelquery/internal/entity"
	"github.com/reelquery/reelquery/internal/execute"
	"github.com/reelquery/reelquery/internal/inject"
	"github.com/reelquery/reelquery/internal/lookup"
	"github.com/reelquery/reelquery/internal/metrics"
	"github.com/reelquery/reelquery/internal/observability"
	"github.com/reelquery/reelquery/internal/pkg/logger"
	"github.com/reelquery/reelquery/internal/planner"
	"github.com/reelquery/reelquery/internal/qdrant"
	"github.com/reelquery/reelquery/internal/query"
	"github.com/reelquery/reelquery/internal/relax"
	"github.com/reelquery/reelquery/internal/retrieval"
	"github.com/reelquery/reelquery/internal/server"
	"github.com/reelquery/reelquery/internal/tmdb"
	"github.com/reelquery/reelquery/internal/watch"
)

// app holds the wired services of one process.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	planner  *planner.Planner
	catalog  *endpoint.Catalog
	api      *tmdb.Client
	bus      bus.Bus
	metrics  *metrics.Metrics
	queryLog *observability.Service
	tracer   *observability.Tracer
	health   *server.HealthChecker

	resolver  *lookup.Resolver
	retriever retrieval.Retriever

	// vector is set when retrieval runs against Qdrant.
	vector *retrieval.VectorRetriever

	// closers run in order on shutdown.
	closers []func(context.Context) error
}

// loadConfig loads the config file named by --config and applies the
// --verbose override.
func loadConfig(path string, verbose bool) (*config.Config, *logger.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.IsDevelopment() {
		log.Debug("Configuration loaded",
			"file", path,
			"retrieval", cfg.Retrieval.Type,
			"bus", cfg.Bus.Type,
			"lookup_cache", cfg.Lookup.CacheType,
		)
	}
	return cfg, log, nil
}

// newApp wires every service from cfg. Callers must call close.
func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		catalog: endpoint.DefaultCatalog(),
		health:  server.NewHealthChecker(),
	}
	ready := false
	defer func() {
		if !ready {
			_ = a.close(context.Background())
		}
	}()

	// Metrics first: the bus and the lookup cache report into it.
	if cfg.Observability.MetricsEnabled {
		a.metrics = metrics.New()
	}

	var err error
	a.tracer, err = observability.NewTracer(cfg.Observability.TracingEnabled, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	a.closers = append(a.closers, a.tracer.Shutdown)

	a.queryLog = observability.NewService(cfg.Observability.QueryLogSize, log)

	a.api = tmdb.New(tmdb.Config{
		BaseURL:           cfg.API.BaseURL,
		Token:             cfg.API.Token,
		Language:          cfg.API.Language,
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		MaxRetries:        cfg.Execution.MaxRetries,
		InitialBackoff:    cfg.Execution.InitialBackoff,
		MaxBackoff:        cfg.Execution.MaxBackoff,
	}, log)
	a.health.Register("discovery_api", true, func(ctx context.Context) (string, error) {
		genres, err := a.api.Genres(ctx, entity.MediaMovie)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d movie genres", len(genres)), nil
	})

	resolver, err := a.newResolver()
	if err != nil {
		return nil, err
	}
	a.resolver = resolver

	retriever, err := a.newRetriever()
	if err != nil {
		return nil, err
	}
	a.retriever = retriever

	eventBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	if a.metrics != nil {
		eventBus = bus.NewInstrumentedBus(eventBus, a.metrics)
	}
	a.bus = eventBus
	a.closers = append(a.closers, func(context.Context) error { return eventBus.Close() })
	log.Info("Event bus ready", "type", cfg.Bus.Type, "journal", cfg.Bus.JournalPath)

	deps := planner.Deps{
		Resolver:  resolver,
		Retriever: retriever,
		Catalog:   a.catalog,
		Scorer: endpoint.NewScorer(endpoint.ScorerConfig{
			SemanticWeight: cfg.Planner.SemanticWeight,
			CoverageWeight: cfg.Planner.CoverageWeight,
			PriorWeight:    cfg.Planner.PriorWeight,
			TieMargin:      cfg.Planner.TieMargin,
			MinCoverage:    cfg.Planner.MinCoverage,
		}, log),
		Analyzer: query.NewAnalyzer(query.NewSortStrategy(cfg.Planner.MinVoteCount), log),
		Pipeline: inject.NewPipeline(inject.Config{
			Language:     cfg.API.Language,
			MinVoteCount: cfg.Planner.MinVoteCount,
			QualityFloor: inject.DefaultConfig().QualityFloor,
		}, nil, log),
		Engine: execute.NewEngine(a.api, a.catalog, execute.Config{
			MaxPages:          cfg.Execution.MaxPages,
			EnrichSample:      cfg.Execution.EnrichSample,
			EnrichConcurrency: cfg.Execution.EnrichConcurrency,
		}, log),
		Bus:      a.bus,
		Tracer:   a.tracer,
		QueryLog: a.queryLog,
	}
	if a.metrics != nil {
		deps.Metrics = a.metrics
	}

	a.planner = planner.New(deps, planner.Config{
		Thresholds: relax.Thresholds{List: cfg.Planner.MinResultsList, Other: cfg.Planner.MinResults},
		MaxEntries: cfg.Planner.MaxEntries,
	}, log)

	ready = true
	return a, nil
}

func (a *app) newResolver() (*lookup.Resolver, error) {
	cfg := a.cfg.Lookup

	overrides := lookup.DefaultOverrides()
	if cfg.OverridesFile != "" {
		t, err := lookup.LoadOverrides(cfg.OverridesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load lookup overrides: %w", err)
		}
		overrides = t
		a.log.Info("Loaded lookup overrides", "path", cfg.OverridesFile, "entries", t.Len())
	}

	var cache lookup.Cache
	switch cfg.CacheType {
	case "redis":
		rc, err := lookup.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect lookup cache: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
		a.health.Register("redis", false, func(ctx context.Context) (string, error) {
			return "ok", rc.Ping(ctx)
		})
		cache = rc
	default:
		mc := lookup.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL)
		if a.metrics != nil {
			mc.SetMetrics(a.metrics)
		}
		cache = mc
	}
	a.log.Info("Lookup cache ready", "type", cfg.CacheType, "ttl", cfg.CacheTTL)

	return lookup.NewResolver(lookup.Config{
		Overrides:   overrides,
		Cache:       cache,
		Search:      a.api,
		Concurrency: cfg.Concurrency,
	}, a.log), nil
}

// watchOverrides starts reloading the overrides file into the resolver
// when it changes. It returns nil when there is nothing to watch.
func (a *app) watchOverrides(ctx context.Context) (*watch.Watcher, error) {
	path := a.cfg.Lookup.OverridesFile
	if path == "" || !a.cfg.Lookup.WatchOverrides || a.resolver == nil {
		return nil, nil
	}
	w, err := watch.New(watch.Config{
		Path: path,
		OnChange: func(context.Context) error {
			t, err := lookup.LoadOverrides(path)
			if err != nil {
				return err
			}
			a.resolver.SetOverrides(t)
			a.log.Info("Reloaded lookup overrides", "path", path, "version", t.Version, "entries", t.Len())
			return nil
		},
	}, a.log)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("Overrides watcher stopped", "error", err)
		}
	}()
	a.closers = append(a.closers, func(context.Context) error {
		w.Stop()
		return nil
	})
	return w, nil
}

// newRetriever returns the keyword retriever, or a vector retriever that
// degrades to it when Qdrant or the embedder is unavailable.
func (a *app) newRetriever() (retrieval.Retriever, error) {
	keyword := retrieval.NewCatalogRetriever(a.catalog)
	if a.cfg.Retrieval.Type != "qdrant" {
		return keyword, nil
	}

	vector, err := a.newVectorRetriever()
	if err != nil {
		return nil, err
	}
	a.vector = vector
	return &retrieval.Fallback{Primary: vector, Secondary: keyword, Log: a.log}, nil
}

func (a *app) newVectorRetriever() (*retrieval.VectorRetriever, error) {
	cfg := a.cfg.Retrieval

	coll, err := qdrant.Open(qdrant.Config{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.Collection,
		VectorSize: uint64(cfg.EmbedDim),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open endpoint collection: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return coll.Close() })
	a.health.Register("qdrant", false, coll.Health)
	a.log.Info("Qdrant collection ready", "host", cfg.QdrantHost, "port", cfg.QdrantPort, "collection", coll.Name(), "dim", coll.VectorSize())

	embedder := retrieval.NewHTTPEmbedder(retrieval.EmbedderConfig{
		URL:   cfg.EmbedderURL,
		Model: cfg.EmbedderModel,
		Dim:   cfg.EmbedDim,
	})
	return retrieval.NewVectorRetriever(embedder, coll, cfg.TopK, a.log), nil
}

// close runs the closers in order and returns the first error.
func (a *app) close(ctx context.Context) error {
	var first error
	for _, fn := range a.closers {
		if err := fn(ctx); err != nil {
			a.log.Warn("Close error", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}
