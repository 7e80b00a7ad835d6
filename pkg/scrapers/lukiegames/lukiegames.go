package lukiegames

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
	Source  = "LukieGames"
	BaseURL = "https://www.lukiegames.com"
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
		Attribution: "From LukieGames.com",
	}
}

func (s *Scraper) SearchRequest(q models.Query) fetch.Request {
	return fetch.Request{
		Source: Source,
		URL:    s.BaseURL + "/search.asp?q=" + url.QueryEscape(q.Text),
		Headers: http.Header{
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
			"Accept-Language": {"en-US,en;q=0.5"},
		},
	}
}

func (s *Scraper) Extract(doc *fetch.Document, limit int) ([]scrapers.Extraction, error) {
	page, err := scrapers.ParseHTML(doc)
	if err != nil {
		return nil, err
	}

	nodes := scrapers.Listings(page.Selection, limit, ".ProductList li")
	out := make([]scrapers.Extraction, 0, nodes.Length())

	nodes.Each(func(_ int, node *goquery.Selection) {
		link := node.Find(".ProductDetails a").First()
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

		out = append(out, scrapers.Found(models.RawFieldRecord{
			Title:     title,
			URL:       href,
			PriceText: scrapers.Text(node, ".ProductPriceRating .ProductPrice"),
			ImageURL:  scrapers.ImageSrc(node, ".ProductImage img"),
		}))
	})

	return out, nil
}
