// Package scrapers holds the source adapter contract and the shared pipeline
// that turns extracted listings into canonical products.
package scrapers

import (
	"fmt"
	"log/slog"

	"lootscout/pkg/classify"
	"lootscout/pkg/fetch"
	"lootscout/pkg/models"
	"lootscout/pkg/normalize"
)

// Adapter knows how to query one retailer and pull raw listings out of its
// response. Implementations hold no per-search state.
type Adapter interface {
	Source() normalize.Source
	SearchRequest(q models.Query) fetch.Request
	// Extract returns at most limit listings in document order. A listing
	// that cannot be read is returned as a skip, never dropped silently.
	Extract(doc *fetch.Document, limit int) ([]Extraction, error)
}

// Extraction is the result for one listing node: a record or the reason it
// was skipped.
type Extraction struct {
	Record models.RawFieldRecord
	Err    error
}

func Found(rec models.RawFieldRecord) Extraction {
	return Extraction{Record: rec}
}

func Skip(err error) Extraction {
	return Extraction{Err: err}
}

// Stats counts what happened to the listings of one document.
type Stats struct {
	Listings   int
	Kept       int
	Skipped    int
	Filtered   int
	OutOfStock int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d listings, %d kept, %d skipped, %d filtered, %d out of stock",
		s.Listings, s.Kept, s.Skipped, s.Filtered, s.OutOfStock)
}

// Process extracts doc with a and runs every listing through the platform
// filter, the stock check, the classifier and the normalizer. Listing order
// is preserved. The returned slice is never nil.
func Process(a Adapter, doc *fetch.Document, q models.Query, log *slog.Logger) ([]models.Product, Stats, error) {
	if log == nil {
		log = slog.Default()
	}
	q = q.Normalized()
	src := a.Source()

	extractions, err := a.Extract(doc, q.MaxResults)
	if err != nil {
		return []models.Product{}, Stats{}, fmt.Errorf("extract %s: %w", src.Name, err)
	}

	stats := Stats{Listings: len(extractions)}
	products := make([]models.Product, 0, len(extractions))

	for i, ex := range extractions {
		if ex.Err != nil {
			stats.Skipped++
			log.Debug("skipping listing", "source", src.Name, "index", i, "reason", ex.Err)
			continue
		}
		rec := ex.Record

		if !q.MatchesPlatform(rec.Title) {
			stats.Filtered++
			continue
		}
		if rec.InStock != nil && !*rec.InStock {
			stats.OutOfStock++
			log.Debug("skipping listing", "source", src.Name, "index", i, "reason", models.ErrOutOfStock, "title", rec.Title)
			continue
		}

		var platform *string
		if tag, ok := classify.Platform(rec.Title); ok {
			platform = &tag
		}

		p, err := normalize.Normalize(rec, src, classify.Condition(rec.Title), platform)
		if err != nil {
			stats.Skipped++
			log.Debug("skipping listing", "source", src.Name, "index", i, "reason", err)
			continue
		}

		products = append(products, p)
		stats.Kept++
	}

	log.Debug("processed document", "source", src.Name, "stats", stats.String())

	return products, stats, nil
}
