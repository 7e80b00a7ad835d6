// Package aggregator fans a search out to every configured source and merges
// the results in configuration order.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lootscout/pkg/cache"
	"lootscout/pkg/fetch"
	"lootscout/pkg/models"
	"lootscout/pkg/scrapers"
)

const (
	DefaultConcurrency   = 4
	DefaultSourceTimeout = 60 * time.Second
)

// Fetcher is the part of fetch.Fetcher the aggregator depends on.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request, key cache.Key, maxResults int, process fetch.ProcessFunc) (fetch.Result, error)
}

type Options struct {
	// Concurrency caps how many sources run at once.
	Concurrency int
	// SourceTimeout is each source's own budget, retries included.
	SourceTimeout time.Duration
	Logger        *slog.Logger
}

// SourceReport describes how one source's pipeline went.
type SourceReport struct {
	Source   string
	Count    int
	Cached   bool
	CachedAt time.Time
	Attempts int
	Stats    scrapers.Stats
	Duration time.Duration
	Err      error
}

type Report struct {
	Query    models.Query
	Sources  []SourceReport
	Duration time.Duration
}

func (r Report) Total() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Count
	}
	return n
}

func (r Report) Failed() []SourceReport {
	var failed []SourceReport
	for _, s := range r.Sources {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

type Aggregator struct {
	adapters []scrapers.Adapter
	fetcher  Fetcher
	opts     Options
	log      *slog.Logger
}

func New(adapters []scrapers.Adapter, fetcher Fetcher, opts Options) *Aggregator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{adapters: adapters, fetcher: fetcher, opts: opts, log: log}
}

// Sources lists source names in configuration order.
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.adapters))
	for i, ad := range a.adapters {
		names[i] = ad.Source().Name
	}
	return names
}

// Select returns an aggregator over the named sources only, still in
// configuration order. Names are matched case-insensitively.
func (a *Aggregator) Select(names []string) (*Aggregator, error) {
	if len(names) == 0 {
		return a, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			want[n] = true
		}
	}

	var picked []scrapers.Adapter
	for _, ad := range a.adapters {
		name := strings.ToLower(ad.Source().Name)
		if want[name] {
			picked = append(picked, ad)
			delete(want, name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("%w: %s", scrapers.ErrUnknownSource, n)
	}

	return &Aggregator{adapters: picked, fetcher: a.fetcher, opts: a.opts, log: a.log}, nil
}

type sourceResult struct {
	products []models.Product
	report   SourceReport
}

// Search runs q against every source concurrently and waits for all of them.
// A failing source contributes nothing and is recorded in the report; the
// product slice is never nil.
func (a *Aggregator) Search(ctx context.Context, q models.Query) ([]models.Product, Report) {
	start := time.Now()
	q = q.Normalized()

	results := make([]sourceResult, len(a.adapters))

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)

	for i, ad := range a.adapters {
		g.Go(func() error {
			results[i] = a.run(ctx, ad, q)
			return nil
		})
	}
	_ = g.Wait()

	products := []models.Product{}
	report := Report{Query: q, Sources: make([]SourceReport, len(results))}
	for i, r := range results {
		products = append(products, r.products...)
		report.Sources[i] = r.report
	}
	report.Duration = time.Since(start)

	a.log.Info("search complete",
		"query", q.Text,
		"platform", q.Platform,
		"products", len(products),
		"sources", len(results),
		"failed", len(report.Failed()),
		"duration", report.Duration.Round(time.Millisecond),
	)

	return products, report
}

func (a *Aggregator) run(ctx context.Context, ad scrapers.Adapter, q models.Query) (res sourceResult) {
	src := ad.Source().Name
	start := time.Now()
	res.report.Source = src

	defer func() {
		if v := recover(); v != nil {
			a.log.Error("source pipeline panicked", "source", src, "panic", v, "stack", string(debug.Stack()))
			res = sourceResult{report: SourceReport{
				Source: src,
				Err:    &fetch.SourceError{Source: src, Err: fmt.Errorf("panic: %v", v)},
			}}
		}
		res.report.Duration = time.Since(start)
	}()

	sctx, cancel := context.WithTimeout(ctx, a.opts.SourceTimeout)
	defer cancel()

	var stats scrapers.Stats
	process := func(doc *fetch.Document) ([]models.Product, error) {
		products, st, err := scrapers.Process(ad, doc, q, a.log)
		stats = st
		return products, err
	}

	key := cache.Key{Source: src, Query: q.Text, Platform: q.Platform}
	out, err := a.fetcher.Fetch(sctx, ad.SearchRequest(q), key, q.MaxResults, process)

	res.report.Attempts = out.Attempts
	res.report.Stats = stats
	if err != nil {
		var se *fetch.SourceError
		if !errors.As(err, &se) {
			err = &fetch.SourceError{Source: src, Attempts: out.Attempts, Err: err}
		}
		res.report.Err = err
		a.log.Warn("source failed", "source", src, "err", err)
		return res
	}

	res.products = out.Products
	res.report.Count = len(out.Products)
	res.report.Cached = out.Cached
	res.report.CachedAt = out.CachedAt

	a.log.Debug("source done", "source", src, "products", len(out.Products), "cached", out.Cached)

	return res
}
