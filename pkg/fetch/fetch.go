// Package fetch retrieves source documents over HTTP or through a headless
// browser, retrying transient failures and serving repeat searches from the
// result cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRetriesExhausted wraps the last transient error once every attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrNoRenderer is returned for browser requests when no renderer is configured.
	ErrNoRenderer = errors.New("no browser renderer configured")
	// ErrMarkerTimeout means the content marker never became visible.
	ErrMarkerTimeout = errors.New("content marker not visible")
	// ErrNavigateTimeout means the page did not finish loading within one attempt.
	ErrNavigateTimeout = errors.New("page load timed out")
)

// RenderOptions switches a request to headless-browser navigation.
type RenderOptions struct {
	// WaitSelector is the content marker awaited after load.
	WaitSelector string
	// Settle is an extra pause after the marker shows up, for lazy content.
	Settle time.Duration
	// Timeout bounds the marker wait.
	Timeout time.Duration
}

type Request struct {
	Source  string
	URL     string
	Method  string
	Headers http.Header
	Render  *RenderOptions
}

// Document is a fetched page or API payload, fully rendered when it came
// through the browser.
type Document struct {
	Source     string
	URL        string
	Body       []byte
	StatusCode int
	Rendered   bool
}

// Retriever performs a single attempt at fetching req.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) (*Document, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, req Request) (*Document, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, req Request) (*Document, error) {
	return f(ctx, req)
}

// StatusError is a response outside the 2xx range.
type StatusError struct {
	StatusCode int
	// RetryAfter is the server's requested wait, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// SourceError is the explicit failure of one source's fetch.
type SourceError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *SourceError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("source %s failed after %d attempt(s): %v", e.Source, e.Attempts, e.Err)
	}
	return fmt.Sprintf("source %s failed: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
