package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// DefaultTimeout bounds one HTTP attempt.
const DefaultTimeout = 15 * time.Second

// HTTPClient fetches static pages and JSON APIs with colly. Each attempt runs
// on a clone of the base collector so callbacks never leak between requests.
type HTTPClient struct {
	collector *colly.Collector
	log       *slog.Logger
}

func NewHTTPClient(userAgent string, timeout time.Duration, log *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	opts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if userAgent != "" {
		opts = append(opts, colly.UserAgent(userAgent))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(timeout)

	return &HTTPClient{collector: c, log: log}
}

func (h *HTTPClient) Retrieve(ctx context.Context, req Request) (*Document, error) {
	c := h.collector.Clone()
	c.Context = ctx

	var (
		doc    *Document
		failed *colly.Response
	)
	c.OnResponse(func(r *colly.Response) {
		doc = &Document{
			Source:     req.Source,
			URL:        r.Request.URL.String(),
			Body:       r.Body,
			StatusCode: r.StatusCode,
		}
	})
	c.OnError(func(r *colly.Response, _ error) {
		failed = r
	})

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	h.log.Debug("fetching", "source", req.Source, "method", method, "url", req.URL)

	if err := c.Request(method, req.URL, nil, nil, req.Headers.Clone()); err != nil {
		if failed != nil && failed.StatusCode >= 300 {
			se := &StatusError{StatusCode: failed.StatusCode}
			if failed.Headers != nil {
				se.RetryAfter = parseRetryAfter(failed.Headers.Get("Retry-After"))
			}
			return nil, fmt.Errorf("%s %s: %w", method, req.URL, se)
		}
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}

	if doc == nil {
		return nil, errors.New("empty response from " + req.URL)
	}
	return doc, nil
}
