package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootscout/pkg/cache"
	"lootscout/pkg/config"
	"lootscout/pkg/fetch"
	"lootscout/pkg/logger"
	"lootscout/pkg/models"
	"lootscout/pkg/normalize"
	"lootscout/pkg/scrapers"
)

// lineAdapter reads one "title|path" listing per line of the document.
type lineAdapter struct {
	name string
	boom bool
}

func (l *lineAdapter) Source() normalize.Source {
	return normalize.Source{
		Name:        l.name,
		BaseURL:     "https://" + strings.ToLower(l.name) + ".example",
		Attribution: "From " + l.name,
	}
}

func (l *lineAdapter) SearchRequest(q models.Query) fetch.Request {
	return fetch.Request{Source: l.name, URL: "https://" + strings.ToLower(l.name) + ".example/search?q=" + q.Text}
}

func (l *lineAdapter) Extract(doc *fetch.Document, limit int) ([]scrapers.Extraction, error) {
	if l.boom {
		panic("selector blew up")
	}
	var out []scrapers.Extraction
	for _, line := range strings.Split(strings.TrimSpace(string(doc.Body)), "\n") {
		if limit > 0 && len(out) == limit {
			break
		}
		title, path, _ := strings.Cut(strings.TrimSpace(line), "|")
		if title == "" {
			out = append(out, scrapers.Skip(models.ErrMissingTitle))
			continue
		}
		out = append(out, scrapers.Found(models.RawFieldRecord{Title: title, URL: path, PriceText: "12"}))
	}
	return out, nil
}

type site struct {
	body  string
	err   error
	delay time.Duration
	block bool
}

func newFetcher(sites map[string]site, calls *atomic.Int32) *fetch.Fetcher {
	rt := fetch.RetrieverFunc(func(ctx context.Context, req fetch.Request) (*fetch.Document, error) {
		if calls != nil {
			calls.Add(1)
		}
		s := sites[req.Source]
		if s.block {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if s.err != nil {
			return nil, s.err
		}
		return &fetch.Document{Source: req.Source, URL: req.URL, Body: []byte(s.body)}, nil
	})

	return fetch.NewFetcher(fetch.Options{
		HTTP:   rt,
		Cache:  cache.New(cache.NewMemoryStore(), time.Hour, cache.WithLogger(logger.Discard())),
		Retry:  config.RetryPolicy{MaxRetries: 1, InitialDelayMs: 1, MaxDelayMs: 2, BackoffMultiplier: 2},
		Logger: logger.Discard(),
	})
}

func titles(products []models.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Title
	}
	return out
}

func adapters(names ...string) []scrapers.Adapter {
	out := make([]scrapers.Adapter, len(names))
	for i, n := range names {
		out[i] = &lineAdapter{name: n}
	}
	return out
}

func TestSearchMergesInConfigurationOrder(t *testing.T) {
	sites := map[string]site{
		"Alpha": {body: "Zelda A1|/a1\nZelda A2|/a2", delay: 30 * time.Millisecond},
		"Beta":  {body: "Zelda B1|/b1"},
		"Gamma": {body: "Zelda C1|/c1\nZelda C2|/c2", delay: 10 * time.Millisecond},
	}
	agg := New(adapters("Alpha", "Beta", "Gamma"), newFetcher(sites, nil), Options{Concurrency: 3, Logger: logger.Discard()})

	got, report := agg.Search(context.Background(), models.Query{Text: "zelda"})

	assert.Equal(t, []string{"Zelda A1", "Zelda A2", "Zelda B1", "Zelda C1", "Zelda C2"}, titles(got))
	assert.Equal(t, 5, report.Total())
	assert.Empty(t, report.Failed())
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, agg.Sources())
}

func TestSearchIsolatesFailingSource(t *testing.T) {
	sites := map[string]site{
		"Alpha": {body: "Mario A|/a"},
		"Beta":  {err: &fetch.StatusError{StatusCode: http.StatusServiceUnavailable}},
		"Gamma": {body: "Mario C|/c"},
	}
	agg := New(adapters("Alpha", "Beta", "Gamma"), newFetcher(sites, nil), Options{Logger: logger.Discard()})

	got, report := agg.Search(context.Background(), models.Query{Text: "mario"})

	assert.Equal(t, []string{"Mario A", "Mario C"}, titles(got))
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "Beta", failed[0].Source)

	var se *fetch.SourceError
	require.ErrorAs(t, failed[0].Err, &se)
	assert.Equal(t, "Beta", se.Source)
	assert.Equal(t, 2, se.Attempts)
	assert.ErrorIs(t, failed[0].Err, fetch.ErrRetriesExhausted)
}

func TestSearchAllSourcesFail(t *testing.T) {
	sites := map[string]site{
		"Alpha": {err: &fetch.StatusError{StatusCode: http.StatusForbidden}},
	}
	agg := New(adapters("Alpha"), newFetcher(sites, nil), Options{Logger: logger.Discard()})

	got, report := agg.Search(context.Background(), models.Query{Text: "x"})
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Len(t, report.Failed(), 1)
}

func TestSearchSourceTimeout(t *testing.T) {
	sites := map[string]site{
		"Alpha": {body: "Sonic A|/a"},
		"Beta":  {block: true},
	}
	agg := New(adapters("Alpha", "Beta"), newFetcher(sites, nil), Options{
		SourceTimeout: 50 * time.Millisecond,
		Logger:        logger.Discard(),
	})

	start := time.Now()
	got, report := agg.Search(context.Background(), models.Query{Text: "sonic"})

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"Sonic A"}, titles(got))
	require.Len(t, report.Failed(), 1)
	assert.ErrorIs(t, report.Failed()[0].Err, context.DeadlineExceeded)
}

func TestSearchRecoversAdapterPanic(t *testing.T) {
	sites := map[string]site{
		"Alpha": {body: "Metroid A|/a"},
		"Beta":  {body: "Metroid B|/b"},
	}
	ads := []scrapers.Adapter{&lineAdapter{name: "Alpha"}, &lineAdapter{name: "Beta", boom: true}}
	agg := New(ads, newFetcher(sites, nil), Options{Logger: logger.Discard()})

	got, report := agg.Search(context.Background(), models.Query{Text: "metroid"})
	assert.Equal(t, []string{"Metroid A"}, titles(got))
	require.Len(t, report.Failed(), 1)
	assert.Contains(t, report.Failed()[0].Err.Error(), "selector blew up")
}

func TestSearchMalformedListingDropsOne(t *testing.T) {
	sites := map[string]site{
		"Alpha": {body: "Kirby 1|/1\nKirby 2|/2\n|/missing\nKirby 4|/4\nKirby 5|/5"},
	}
	agg := New(adapters("Alpha"), newFetcher(sites, nil), Options{Logger: logger.Discard()})

	got, report := agg.Search(context.Background(), models.Query{Text: "kirby"})
	require.Len(t, got, 4)
	assert.Equal(t, 1, report.Sources[0].Stats.Skipped)
	assert.Equal(t, "https://alpha.example/4", got[2].URL)
	assert.Equal(t, "$12.00", got[2].Price)
}

func TestSearchEndToEndPlatform(t *testing.T) {
	var lines []string
	for i := 0; i < 8; i++ {
		lines = append(lines, fmt.Sprintf("Zelda Ocarina of Time N64 copy %d|/n64/%d", i, i))
	}
	lines = append(lines, "Zelda Link's Awakening Game Boy|/gb", "Zelda Twilight Princess Wii|/wii")
	sites := map[string]site{"Alpha": {body: strings.Join(lines, "\n")}}

	agg := New(adapters("Alpha"), newFetcher(sites, nil), Options{Logger: logger.Discard()})
	got, _ := agg.Search(context.Background(), models.Query{Text: "zelda", Platform: "n64", MaxResults: 5})

	require.Len(t, got, 5)
	for _, p := range got {
		require.NotNil(t, p.Platform)
		assert.Equal(t, "n64", *p.Platform)
		assert.Equal(t, "Alpha", p.Source)
	}
}

func TestSearchSecondRunIsCached(t *testing.T) {
	var calls atomic.Int32
	sites := map[string]site{"Alpha": {body: "Tetris|/t"}}
	agg := New(adapters("Alpha"), newFetcher(sites, &calls), Options{Logger: logger.Discard()})

	first, _ := agg.Search(context.Background(), models.Query{Text: "tetris"})
	second, report := agg.Search(context.Background(), models.Query{Text: "Tetris "})

	assert.Equal(t, first, second)
	assert.True(t, report.Sources[0].Cached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	fetcher := fetcherFunc(func(ctx context.Context, req fetch.Request, key cache.Key, max int, process fetch.ProcessFunc) (fetch.Result, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return fetch.Result{Products: []models.Product{}}, nil
	})

	agg := New(adapters("A", "B", "C", "D", "E", "F"), fetcher, Options{Concurrency: 2, Logger: logger.Discard()})
	_, report := agg.Search(context.Background(), models.Query{Text: "x"})

	assert.Len(t, report.Sources, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

type fetcherFunc func(ctx context.Context, req fetch.Request, key cache.Key, max int, process fetch.ProcessFunc) (fetch.Result, error)

func (f fetcherFunc) Fetch(ctx context.Context, req fetch.Request, key cache.Key, max int, process fetch.ProcessFunc) (fetch.Result, error) {
	return f(ctx, req, key, max, process)
}

func TestPlainErrorsBecomeSourceErrors(t *testing.T) {
	fetcher := fetcherFunc(func(context.Context, fetch.Request, cache.Key, int, fetch.ProcessFunc) (fetch.Result, error) {
		return fetch.Result{}, errors.New("boom")
	})
	agg := New(adapters("Alpha"), fetcher, Options{Logger: logger.Discard()})

	_, report := agg.Search(context.Background(), models.Query{Text: "x"})
	var se *fetch.SourceError
	require.ErrorAs(t, report.Sources[0].Err, &se)
	assert.Equal(t, "Alpha", se.Source)
}

func TestSelect(t *testing.T) {
	agg := New(adapters("Alpha", "Beta", "Gamma"), nil, Options{})

	sub, err := agg.Select([]string{"gamma", "ALPHA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Gamma"}, sub.Sources())

	same, err := agg.Select(nil)
	require.NoError(t, err)
	assert.Equal(t, agg.Sources(), same.Sources())

	_, err = agg.Select([]string{"delta"})
	assert.ErrorIs(t, err, scrapers.ErrUnknownSource)
	assert.EqualError(t, err, "unknown source: delta")
}
