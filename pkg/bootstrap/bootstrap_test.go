package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootscout/pkg/config"
	"lootscout/pkg/fetch"
	"lootscout/pkg/logger"
	"lootscout/pkg/models"
	"lootscout/pkg/scrapers"
)

const lukiePage = `<html><body><ul class="ProductList">
<li><div class="ProductDetails"><a href="/zelda-ocarina-n64.html">Zelda Ocarina of Time N64</a></div>
<div class="ProductPriceRating"><em class="ProductPrice">$39.99</em></div></li>
<li><div class="ProductDetails"><a href="/zelda-wind-waker.html">Zelda Wind Waker Gamecube</a></div></li>
</ul></body></html>`

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{
		{Name: "lukiegames", Enabled: true, BaseURL: baseURL},
		{Name: "vgny", Enabled: true, BaseURL: baseURL},
		{Name: "ebay", Enabled: true},
		{Name: "dkoldies", Enabled: false},
	}
	cfg.Fetch.MaxRetries = 0
	cfg.Fetch.CourtesyDelayMs = 0
	cfg.Cache.Backend = "memory"
	return cfg
}

func TestNewAndSearch(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/search.asp" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, lukiePage)
	}))
	defer ts.Close()

	app, err := New(testConfig(ts.URL), logger.Discard())
	require.NoError(t, err)
	defer app.Close()

	// ebay has no app id and is left out
	assert.Equal(t, []string{"LukieGames", "VGNY"}, app.Aggregator.Sources())

	products, report, err := app.Search(context.Background(), models.Query{Text: "zelda"}, nil)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, ts.URL+"/zelda-ocarina-n64.html", products[0].URL)
	assert.Equal(t, "$39.99", products[0].Price)
	assert.Equal(t, models.PriceNotAvailable, products[1].Price)
	assert.Equal(t, 16, report.Query.MaxResults)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "VGNY", failed[0].Source)
	var se *fetch.StatusError
	require.ErrorAs(t, failed[0].Err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	before := hits.Load()
	again, report, err := app.Search(context.Background(), models.Query{Text: "zelda"}, []string{"lukiegames"})
	require.NoError(t, err)
	assert.Equal(t, products, again)
	assert.True(t, report.Sources[0].Cached)
	assert.Equal(t, before, hits.Load())
}

func TestSearchUnknownSource(t *testing.T) {
	app, err := New(testConfig("http://127.0.0.1:1"), logger.Discard())
	require.NoError(t, err)

	products, _, err := app.Search(context.Background(), models.Query{Text: "x"}, []string{"gamestop"})
	assert.ErrorIs(t, err, scrapers.ErrUnknownSource)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestNewWithoutUsableSources(t *testing.T) {
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{{Name: "ebay", Enabled: true}}

	_, err := New(cfg, logger.Discard())
	assert.ErrorIs(t, err, config.ErrNoEnabledSources)
}

func TestRegistryNames(t *testing.T) {
	assert.Equal(t, []string{"dkoldies", "ebay", "jjgames", "lukiegames", "vgny"}, Registry(config.BrowserConfig{}).Names())
}

func TestOpenCache(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.CacheConfig
		wantNil bool
		wantErr bool
	}{
		{name: "file", cfg: config.CacheConfig{Backend: "file", Dir: filepath.Join(dir, "files"), TTLMinutes: 5}},
		{name: "sqlite", cfg: config.CacheConfig{Backend: "sqlite", Path: filepath.Join(dir, "cache.db"), TTLMinutes: 5}},
		{name: "memory", cfg: config.CacheConfig{Backend: "memory", TTLMinutes: 5}},
		{name: "none", cfg: config.CacheConfig{Backend: "none"}, wantNil: true},
		{name: "bogus", cfg: config.CacheConfig{Backend: "redis"}, wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := OpenCache(tt.cfg, logger.Discard())
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalidCacheBackend)
			} else {
				require.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			assert.Equal(t, tt.cfg.TTL(), c.TTL())
			assert.NoError(t, c.Close())
		})
	}
}
