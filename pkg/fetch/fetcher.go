package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"lootscout/pkg/cache"
	"lootscout/pkg/config"
	"lootscout/pkg/logger"
	"lootscout/pkg/models"
)

// DefaultCourtesyDelay precedes every live request.
const DefaultCourtesyDelay = 500 * time.Millisecond

// ProcessFunc turns a fetched document into canonical products.
type ProcessFunc func(doc *Document) ([]models.Product, error)

// Result is the outcome of one source fetch.
type Result struct {
	Products []models.Product
	Cached   bool
	// CachedAt is the cache entry timestamp for cached results.
	CachedAt time.Time
	Attempts int
}

type Options struct {
	HTTP    Retriever
	Browser Retriever
	// Cache may be nil to disable caching.
	Cache         *cache.Cache
	Retry         config.RetryPolicy
	CourtesyDelay time.Duration
	Logger        *slog.Logger
}

// Fetcher is the only component that reads or writes the result cache.
type Fetcher struct {
	http     Retriever
	browser  Retriever
	cache    *cache.Cache
	retrier  *Retrier
	courtesy time.Duration
	log      *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

func NewFetcher(opts Options) *Fetcher {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	courtesy := opts.CourtesyDelay
	if courtesy < 0 {
		courtesy = 0
	}
	httpc := opts.HTTP
	if httpc == nil {
		httpc = NewHTTPClient("", DefaultTimeout, log)
	}
	return &Fetcher{
		http:     httpc,
		browser:  opts.Browser,
		cache:    opts.Cache,
		retrier:  NewRetrier(opts.Retry, log),
		courtesy: courtesy,
		log:      log,
		sleep:    sleepCtx,
	}
}

// Fetch serves key from the cache when fresh, truncated to maxResults.
// Otherwise it waits the courtesy delay, retrieves req with retries, runs
// process over the document and stores the products under key. Every
// failure is returned as a *SourceError naming req.Source.
func (f *Fetcher) Fetch(ctx context.Context, req Request, key cache.Key, maxResults int, process ProcessFunc) (Result, error) {
	if e, ok := f.cache.Get(key); ok {
		logger.Dedup("Cache hit for %s", req.Source)
		f.log.Debug("serving cached results",
			"source", req.Source,
			"query", key.Query,
			"age", humanize.Time(e.Timestamp),
			"products", len(e.Products),
		)
		return Result{
			Products: truncate(e.Products, maxResults),
			Cached:   true,
			CachedAt: e.Timestamp,
		}, nil
	}

	rt := f.http
	if req.Render != nil {
		if f.browser == nil {
			return Result{}, &SourceError{Source: req.Source, Err: ErrNoRenderer}
		}
		rt = f.browser
	}

	if err := f.sleep(ctx, f.courtesy); err != nil {
		return Result{}, &SourceError{Source: req.Source, Err: err}
	}

	doc, attempts, err := f.retrier.Do(ctx, req, rt)
	if err != nil {
		return Result{Attempts: attempts}, &SourceError{Source: req.Source, Attempts: attempts, Err: err}
	}

	products, err := process(doc)
	if err != nil {
		return Result{Attempts: attempts}, &SourceError{Source: req.Source, Attempts: attempts, Err: err}
	}
	if products == nil {
		products = []models.Product{}
	}

	if err := f.cache.Put(key, products); err != nil {
		f.log.Warn("cache write failed", "source", req.Source, "err", err)
	}

	return Result{Products: products, Attempts: attempts}, nil
}

func truncate(products []models.Product, n int) []models.Product {
	if n > 0 && len(products) > n {
		products = products[:n]
	}
	out := make([]models.Product, len(products))
	copy(out, products)
	return out
}
