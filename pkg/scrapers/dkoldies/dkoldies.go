package dkoldies

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"lootscout/pkg/fetch"
	"lootscout/pkg/models"
	"lootscout/pkg/normalize"
	"lootscout/pkg/scrapers"
)

const (
	Source  = "DKOldies"
	BaseURL = "https://www.dkoldies.com"

	attribution = "From DKOldies.com"
	// gridSelector is present only once the storefront scripts have run.
	gridSelector = ".productGrid"
)

// Scraper renders the DKOldies search page in a browser; the product grid is
// built client-side.
type Scraper struct {
	BaseURL string
	Settle  time.Duration
	Timeout time.Duration
}

func NewScraper(baseURL string) *Scraper {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &Scraper{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Settle:  2 * time.Second,
		Timeout: 10 * time.Second,
	}
}

func (s *Scraper) Source() normalize.Source {
	return normalize.Source{
		Name:        Source,
		BaseURL:     s.BaseURL,
		Attribution: attribution,
	}
}

func (s *Scraper) SearchRequest(q models.Query) fetch.Request {
	return fetch.Request{
		Source: Source,
		URL:    s.BaseURL + "/searchresults.html?search_query=" + url.QueryEscape(q.Text),
		Render: &fetch.RenderOptions{
			WaitSelector: gridSelector,
			Settle:       s.Settle,
			Timeout:      s.Timeout,
		},
	}
}

func (s *Scraper) Extract(doc *fetch.Document, limit int) ([]scrapers.Extraction, error) {
	page, err := scrapers.ParseHTML(doc)
	if err != nil {
		return nil, err
	}

	grid := page.Find(gridSelector).First()
	nodes := scrapers.Listings(grid, limit, ".product")
	out := make([]scrapers.Extraction, 0, nodes.Length())

	nodes.Each(func(_ int, node *goquery.Selection) {
		link := node.Find(".card-title a").First()
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

		image := scrapers.Attr(node.Find(".card-image").First(), "src", "data-src")
		if image == "" {
			image = scrapers.ImageSrc(node, ".card-img-container img")
		}

		var description string
		if reviews := scrapers.Text(node, ".yotpo-bottomline p.text-m"); reviews != "" {
			description = attribution + " • " + normalize.CleanText(reviews)
		}

		out = append(out, scrapers.Found(models.RawFieldRecord{
			Title:       title,
			URL:         href,
			PriceText:   scrapers.Text(node, ".price:not(.price--rrp)"),
			ImageURL:    image,
			Description: description,
		}))
	})

	return out, nil
}
