package jjgames

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lootscout/pkg/fetch"
	"lootscout/pkg/models"
	"lootscout/pkg/normalize"
	"lootscout/pkg/scrapers"
)

const (
	Source    = "JJGames"
	BaseURL   = "https://www.jjgames.com"
	APIURL    = "https://app.ecwid.com"
	StoreID   = "1003"
	descLimit = 200
)

// Scraper queries the Ecwid storefront API behind jjgames.com instead of
// scraping the script-rendered shop pages.
type Scraper struct {
	APIURL string
}

func NewScraper(apiURL string) *Scraper {
	if apiURL == "" {
		apiURL = APIURL
	}
	return &Scraper{APIURL: strings.TrimRight(apiURL, "/")}
}

func (s *Scraper) Source() normalize.Source {
	return normalize.Source{
		Name:        Source,
		BaseURL:     BaseURL,
		Attribution: "From JJGames.com",
	}
}

func (s *Scraper) SearchRequest(q models.Query) fetch.Request {
	q = q.Normalized()
	params := url.Values{}
	params.Set("keyword", q.Text)
	params.Set("limit", strconv.Itoa(q.MaxResults))

	return fetch.Request{
		Source: Source,
		URL:    fmt.Sprintf("%s/api/v3/%s/search?%s", s.APIURL, StoreID, params.Encode()),
		Headers: http.Header{
			"Accept":  {"application/json"},
			"Referer": {BaseURL + "/"},
		},
	}
}

type searchResponse struct {
	Items []item `json:"items"`
}

type item struct {
	ID           json.Number `json:"id"`
	Name         string      `json:"name"`
	Price        price       `json:"price"`
	ThumbnailURL string      `json:"thumbnailUrl"`
	InStock      *bool       `json:"inStock"`
	Description  string      `json:"description"`
}

// price accepts both the {"formatted": "$9.99"} object and a bare number.
type price struct {
	Text string
}

func (p *price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '{' {
		var obj struct {
			Formatted string `json:"formatted"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		p.Text = obj.Formatted
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	p.Text = n.String()
	return nil
}

func ProductURL(id string) string {
	return BaseURL + "/#!/~/product/" + id
}

func (s *Scraper) Extract(doc *fetch.Document, limit int) ([]scrapers.Extraction, error) {
	var resp searchResponse
	if err := json.Unmarshal(doc.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := resp.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	out := make([]scrapers.Extraction, 0, len(items))
	for _, it := range items {
		title := strings.TrimSpace(it.Name)
		if title == "" {
			out = append(out, scrapers.Skip(models.ErrMissingTitle))
			continue
		}
		if it.ID.String() == "" {
			out = append(out, scrapers.Skip(models.ErrMissingURL))
			continue
		}

		out = append(out, scrapers.Found(models.RawFieldRecord{
			Title:       title,
			URL:         ProductURL(it.ID.String()),
			PriceText:   it.Price.Text,
			ImageURL:    it.ThumbnailURL,
			Description: describe(it),
			InStock:     it.InStock,
		}))
	}
	return out, nil
}

func describe(it item) string {
	desc := normalize.CleanText(scrapers.StripTags(it.Description))
	if desc == "" {
		desc = "From JJGames.com"
	}
	desc = normalize.Truncate(desc, descLimit)
	if it.InStock == nil || *it.InStock {
		desc += " • In Stock"
	}
	return desc
}
