package dkoldies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootscout/pkg/cache"
	"lootscout/pkg/config"
	"lootscout/pkg/fetch"
	"lootscout/pkg/logger"
	"lootscout/pkg/models"
	"lootscout/pkg/scrapers"
)

const renderedPage = `
<html><body>
<div class="productGrid">
  <div class="product">
    <img class="card-image" src="/product_images/ocarina.jpg">
    <h3 class="card-title"><a href="/zelda-ocarina-of-time-n64">Zelda Ocarina of Time N64 Game</a></h3>
    <span class="price price--rrp">$59.99</span>
    <span class="price">$44.99</span>
    <div class="yotpo-bottomline"><p class="text-m">128 Reviews</p></div>
  </div>
  <div class="product">
    <div class="card-img-container"><img src="https://cdn.dkoldies.com/majora.jpg"></div>
    <h3 class="card-title"><a href="/majoras-mask-n64">Majora's Mask N64 Loose</a></h3>
  </div>
  <div class="product">
    <h3 class="card-title"></h3>
  </div>
</div>
<div class="product"><h3 class="card-title"><a href="/outside">Outside the grid</a></h3></div>
</body></html>`

func TestExtractRenderedGrid(t *testing.T) {
	s := NewScraper("")
	q := models.Query{Text: "zelda"}

	products, stats, err := scrapers.Process(s, &fetch.Document{Body: []byte(renderedPage), Rendered: true}, q, logger.Discard())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, 3, stats.Listings)
	assert.Equal(t, 1, stats.Skipped)

	ocarina := products[0]
	assert.Equal(t, "DKOldies", ocarina.Source)
	assert.Equal(t, "https://www.dkoldies.com/zelda-ocarina-of-time-n64", ocarina.URL)
	assert.Equal(t, "https://www.dkoldies.com/product_images/ocarina.jpg", ocarina.Image)
	assert.Equal(t, "$44.99", ocarina.Price)
	assert.Equal(t, "From DKOldies.com • 128 Reviews", ocarina.Description)
	require.NotNil(t, ocarina.Platform)
	assert.Equal(t, "n64", *ocarina.Platform)

	majora := products[1]
	assert.Equal(t, "https://cdn.dkoldies.com/majora.jpg", majora.Image)
	assert.Equal(t, models.PriceNotAvailable, majora.Price)
	assert.Equal(t, "From DKOldies.com", majora.Description)
	assert.Equal(t, models.ConditionLoose, majora.Condition)
}

func TestExtractWithoutGrid(t *testing.T) {
	got, err := NewScraper("").Extract(&fetch.Document{Body: []byte("<html><body>maintenance</body></html>")}, 16)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchRequestUsesBrowser(t *testing.T) {
	req := NewScraper("").SearchRequest(models.Query{Text: "donkey kong"})

	assert.Equal(t, "https://www.dkoldies.com/searchresults.html?search_query=donkey+kong", req.URL)
	require.NotNil(t, req.Render)
	assert.Equal(t, ".productGrid", req.Render.WaitSelector)
	assert.Equal(t, 2*time.Second, req.Render.Settle)
	assert.Equal(t, 10*time.Second, req.Render.Timeout)
}

func TestFetchThroughRenderer(t *testing.T) {
	var rendered []string
	browser := fetch.RetrieverFunc(func(ctx context.Context, req fetch.Request) (*fetch.Document, error) {
		rendered = append(rendered, req.URL)
		return &fetch.Document{Source: req.Source, URL: req.URL, Body: []byte(renderedPage), Rendered: true}, nil
	})

	f := fetch.NewFetcher(fetch.Options{
		Browser: browser,
		Cache:   cache.New(cache.NewMemoryStore(), time.Hour),
		Retry:   config.RetryPolicy{MaxRetries: 1, InitialDelayMs: 1, BackoffMultiplier: 2},
		Logger:  logger.Discard(),
	})

	s := NewScraper("")
	q := models.Query{Text: "zelda", Platform: "n64", MaxResults: 16}
	key := cache.Key{Source: Source, Query: q.Text, Platform: q.Platform}

	res, err := f.Fetch(context.Background(), s.SearchRequest(q), key, q.MaxResults, func(doc *fetch.Document) ([]models.Product, error) {
		products, _, err := scrapers.Process(s, doc, q, logger.Discard())
		return products, err
	})
	require.NoError(t, err)
	assert.Len(t, res.Products, 2)
	assert.Len(t, rendered, 1)
}
