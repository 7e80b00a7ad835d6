package vgny

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lootscout/pkg/fetch"
	"lootscout/pkg/models"
	"lootscout/pkg/normalize"
	"lootscout/pkg/scrapers"
)

const (
	Source  = "VGNY"
	BaseURL = "https://videogamesnewyork.com"

	summaryLimit = 100
)

type Scraper struct {
	BaseURL string
}

func NewScraper(baseURL string) *Scraper {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &Scraper{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *Scraper) Source() normalize.Source {
	return normalize.Source{
		Name:        Source,
		BaseURL:     s.BaseURL,
		Attribution: "From VideoGamesNewYork.com",
	}
}

func (s *Scraper) SearchRequest(q models.Query) fetch.Request {
	params := url.Values{}
	params.Set("search_query", q.Text)
	params.Set("section", "product")

	return fetch.Request{
		Source: Source,
		URL:    s.BaseURL + "/search.php?" + params.Encode(),
		Headers: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
	}
}

// Extract reads the BigCommerce card grid. Older theme variants lack the
// article wrapper and the h4 title, so each lookup has a fallback.
func (s *Scraper) Extract(doc *fetch.Document, limit int) ([]scrapers.Extraction, error) {
	page, err := scrapers.ParseHTML(doc)
	if err != nil {
		return nil, err
	}

	nodes := scrapers.Listings(page.Selection, limit, "li.product", ".productGrid li")
	out := make([]scrapers.Extraction, 0, nodes.Length())

	nodes.Each(func(_ int, node *goquery.Selection) {
		card := node.Find("article.card").First()
		if card.Length() == 0 {
			card = node
		}

		link := scrapers.First(card, "h4.card-title a", ".card-title a")
		title := strings.TrimSpace(link.Text())
		if title == "" {
			out = append(out, scrapers.Skip(models.ErrMissingTitle))
			return
		}
		href := scrapers.Attr(link, "href")
		if href == "" {
			out = append(out, scrapers.Skip(models.ErrMissingURL))
			return
		}

		summary := normalize.CleanText(scrapers.Text(card, ".card-text--summary"))

		out = append(out, scrapers.Found(models.RawFieldRecord{
			Title:       title,
			URL:         href,
			PriceText:   scrapers.Text(card, ".price.price--withoutTax.price--main", ".price--withoutTax", ".price"),
			ImageURL:    scrapers.ImageSrc(card, ".card-figure img", "img"),
			Description: normalize.Truncate(summary, summaryLimit),
		}))
	})

	return out, nil
}
