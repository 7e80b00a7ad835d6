// Package bootstrap wires configuration into a ready search pipeline. Both
// the HTTP server and the CLI start from here.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"lootscout/pkg/aggregator"
	"lootscout/pkg/cache"
	"lootscout/pkg/config"
	"lootscout/pkg/fetch"
	"lootscout/pkg/logger"
	"lootscout/pkg/models"
	"lootscout/pkg/scrapers"
	"lootscout/pkg/scrapers/dkoldies"
	"lootscout/pkg/scrapers/ebay"
	"lootscout/pkg/scrapers/jjgames"
	"lootscout/pkg/scrapers/lukiegames"
	"lootscout/pkg/scrapers/vgny"
)

// App holds the long-lived pieces of a running pipeline.
type App struct {
	Config     *config.Config
	Log        *slog.Logger
	Cache      *cache.Cache
	Fetcher    *fetch.Fetcher
	Aggregator *aggregator.Aggregator
}

// Registry returns every built-in source adapter. Browser timings for
// rendered sources come from cfg.
func Registry(cfg config.BrowserConfig) *scrapers.Registry {
	r := scrapers.NewRegistry()

	r.Register("lukiegames", func(sc config.SourceConfig) (scrapers.Adapter, error) {
		return lukiegames.NewScraper(sc.BaseURL), nil
	})
	r.Register("vgny", func(sc config.SourceConfig) (scrapers.Adapter, error) {
		return vgny.NewScraper(sc.BaseURL), nil
	})
	r.Register("jjgames", func(sc config.SourceConfig) (scrapers.Adapter, error) {
		return jjgames.NewScraper(sc.BaseURL), nil
	})
	r.Register("dkoldies", func(sc config.SourceConfig) (scrapers.Adapter, error) {
		s := dkoldies.NewScraper(sc.BaseURL)
		if d := cfg.Settle(); d > 0 {
			s.Settle = d
		}
		if d := cfg.WaitTimeout(); d > 0 {
			s.Timeout = d
		}
		return s, nil
	})
	r.Register("ebay", func(sc config.SourceConfig) (scrapers.Adapter, error) {
		return ebay.NewScraper(sc.AppID, sc.BaseURL)
	})

	return r
}

// OpenCache builds the result cache for the configured backend. The "none"
// backend returns a nil cache, which every caller treats as disabled.
func OpenCache(cfg config.CacheConfig, log *slog.Logger) (*cache.Cache, error) {
	var store cache.Store
	switch cfg.Backend {
	case "file", "":
		store = cache.NewFileStore(cfg.Dir)
	case "sqlite":
		s, err := cache.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		store = s
	case "memory":
		store = cache.NewMemoryStore()
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidCacheBackend, cfg.Backend)
	}
	return cache.New(store, cfg.TTL(), cache.WithLogger(log)), nil
}

// New builds the pipeline for cfg. Enabled sources that fail to build (an
// eBay entry without an app id, say) are logged and left out; New fails
// only when none remain.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}

	reg := Registry(cfg.Browser)
	var adapters []scrapers.Adapter
	for _, sc := range cfg.EnabledSources() {
		built, err := reg.Build([]config.SourceConfig{sc})
		if err != nil {
			log.Warn("source disabled", "source", sc.Name, "err", err)
			continue
		}
		adapters = append(adapters, built...)
	}
	if len(adapters) == 0 {
		return nil, config.ErrNoEnabledSources
	}

	c, err := OpenCache(cfg.Cache, log)
	if err != nil {
		return nil, err
	}

	f := fetch.NewFetcher(fetch.Options{
		HTTP: fetch.NewHTTPClient(cfg.Fetch.UserAgent, cfg.Fetch.Timeout(), log),
		Browser: fetch.NewBrowserRenderer(fetch.BrowserOptions{
			UserAgent:       cfg.Fetch.UserAgent,
			Headless:        cfg.Browser.Headless,
			Settle:          cfg.Browser.Settle(),
			WaitTimeout:     cfg.Browser.WaitTimeout(),
			NavigateTimeout: cfg.Fetch.Timeout(),
			Logger:          log,
		}),
		Cache:         c,
		Retry:         cfg.Fetch.RetryPolicy,
		CourtesyDelay: cfg.Fetch.CourtesyDelay(),
		Logger:        log,
	})

	agg := aggregator.New(adapters, f, aggregator.Options{
		Concurrency:   cfg.Search.Concurrency,
		SourceTimeout: cfg.Fetch.SourceTimeout(),
		Logger:        log,
	})

	return &App{Config: cfg, Log: log, Cache: c, Fetcher: f, Aggregator: agg}, nil
}

// Search runs q over the named sources, or all of them when names is empty.
// A zero MaxResults takes the configured default.
func (a *App) Search(ctx context.Context, q models.Query, names []string) ([]models.Product, aggregator.Report, error) {
	agg, err := a.Aggregator.Select(names)
	if err != nil {
		return []models.Product{}, aggregator.Report{}, err
	}
	if q.MaxResults <= 0 {
		q.MaxResults = a.Config.Search.DefaultMaxResults
	}
	products, report := agg.Search(ctx, q)
	return products, report, nil
}

// Close releases the cache after dropping expired entries.
func (a *App) Close() error {
	if n, err := a.Cache.Prune(); err != nil {
		a.Log.Warn("cache prune failed", "err", err)
	} else if n > 0 {
		a.Log.Debug("pruned expired cache entries", "count", n)
	}
	return a.Cache.Close()
}
