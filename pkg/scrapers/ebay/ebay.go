package ebay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"lootscout/pkg/fetch"
	"lootscout/pkg/models"
	"lootscout/pkg/normalize"
	"lootscout/pkg/scrapers"
)

const (
	Source   = "eBay"
	BaseURL  = "https://www.ebay.com"
	Endpoint = "https://svcs.ebay.com/services/search/FindingService/v1"

	// videoGamesCategory is the eBay category id for video games.
	videoGamesCategory = "139973"
)

var (
	ErrMissingAppID = errors.New("ebay requires an app id")
	ErrAPIFailure   = errors.New("ebay finding api reported failure")
)

// Scraper searches fixed-price listings through the eBay Finding API.
type Scraper struct {
	AppID    string
	Endpoint string
}

func NewScraper(appID, endpoint string) (*Scraper, error) {
	if strings.TrimSpace(appID) == "" {
		return nil, ErrMissingAppID
	}
	if endpoint == "" {
		endpoint = Endpoint
	}
	return &Scraper{AppID: appID, Endpoint: endpoint}, nil
}

func (s *Scraper) Source() normalize.Source {
	return normalize.Source{
		Name:        Source,
		BaseURL:     BaseURL,
		Attribution: "From eBay",
	}
}

func (s *Scraper) SearchRequest(q models.Query) fetch.Request {
	q = q.Normalized()

	keywords := q.Text
	if q.Platform != "" {
		keywords += " " + q.Platform
	}
	keywords += " video game"

	params := url.Values{}
	params.Set("OPERATION-NAME", "findItemsByKeywords")
	params.Set("SERVICE-VERSION", "1.0.0")
	params.Set("SECURITY-APPNAME", s.AppID)
	params.Set("RESPONSE-DATA-FORMAT", "JSON")
	params.Set("REST-PAYLOAD", "true")
	params.Set("keywords", keywords)
	params.Set("categoryId", videoGamesCategory)
	params.Set("itemFilter(0).name", "ListingType")
	params.Set("itemFilter(0).value", "FixedPrice")
	params.Set("paginationInput.entriesPerPage", strconv.Itoa(q.MaxResults))
	params.Set("sortOrder", "BestMatch")

	return fetch.Request{
		Source: Source,
		URL:    s.Endpoint + "?" + params.Encode(),
	}
}

// The Finding API wraps every scalar in a one-element array.
type findResponse struct {
	FindItemsByKeywordsResponse []struct {
		Ack          []string `json:"ack"`
		SearchResult []struct {
			Item []item `json:"item"`
		} `json:"searchResult"`
	} `json:"findItemsByKeywordsResponse"`
}

type item struct {
	Title         []string `json:"title"`
	Subtitle      []string `json:"subtitle"`
	GalleryURL    []string `json:"galleryURL"`
	ViewItemURL   []string `json:"viewItemURL"`
	SellingStatus []struct {
		CurrentPrice []struct {
			Value string `json:"__value__"`
		} `json:"currentPrice"`
		SellingState []string `json:"sellingState"`
	} `json:"sellingStatus"`
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return strings.TrimSpace(v[0])
}

func (it item) price() string {
	if len(it.SellingStatus) == 0 || len(it.SellingStatus[0].CurrentPrice) == 0 {
		return ""
	}
	return it.SellingStatus[0].CurrentPrice[0].Value
}

// inStock reads the selling state; listings without one are assumed live.
func (it item) inStock() *bool {
	if len(it.SellingStatus) == 0 {
		return nil
	}
	state := first(it.SellingStatus[0].SellingState)
	if state == "" {
		return nil
	}
	active := state == "Active"
	return &active
}

func (s *Scraper) Extract(doc *fetch.Document, limit int) ([]scrapers.Extraction, error) {
	var resp findResponse
	if err := json.Unmarshal(doc.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode finding response: %w", err)
	}
	if len(resp.FindItemsByKeywordsResponse) == 0 {
		return []scrapers.Extraction{}, nil
	}

	r := resp.FindItemsByKeywordsResponse[0]
	if first(r.Ack) == "Failure" {
		return nil, ErrAPIFailure
	}
	if len(r.SearchResult) == 0 {
		return []scrapers.Extraction{}, nil
	}

	items := r.SearchResult[0].Item
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	out := make([]scrapers.Extraction, 0, len(items))
	for _, it := range items {
		title := first(it.Title)
		if title == "" {
			out = append(out, scrapers.Skip(models.ErrMissingTitle))
			continue
		}
		link := first(it.ViewItemURL)
		if link == "" {
			out = append(out, scrapers.Skip(models.ErrMissingURL))
			continue
		}

		out = append(out, scrapers.Found(models.RawFieldRecord{
			Title:       title,
			URL:         link,
			PriceText:   it.price(),
			ImageURL:    first(it.GalleryURL),
			Description: first(it.Subtitle),
			InStock:     it.inStock(),
		}))
	}
	return out, nil
}
