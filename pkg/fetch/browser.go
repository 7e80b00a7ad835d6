package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

type BrowserOptions struct {
	UserAgent string
	Headless  bool
	// Settle and WaitTimeout apply when a request leaves them unset.
	Settle      time.Duration
	WaitTimeout time.Duration
	// NavigateTimeout bounds the page load of a single attempt.
	NavigateTimeout time.Duration
	Logger          *slog.Logger
}

// BrowserRenderer loads pages in headless Chrome for sources whose listings
// are built by scripts. Every call gets its own browser process.
type BrowserRenderer struct {
	opts BrowserOptions
	log  *slog.Logger
}

func NewBrowserRenderer(opts BrowserOptions) *BrowserRenderer {
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Second
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &BrowserRenderer{opts: opts, log: log}
}

// Retrieve navigates to req.URL, waits for the content marker, lets the page
// settle and returns the outer HTML of the document.
func (b *BrowserRenderer) Retrieve(ctx context.Context, req Request) (*Document, error) {
	ro := RenderOptions{Settle: b.opts.Settle, Timeout: b.opts.WaitTimeout}
	if req.Render != nil {
		ro.WaitSelector = req.Render.WaitSelector
		if req.Render.Settle > 0 {
			ro.Settle = req.Render.Settle
		}
		if req.Render.Timeout > 0 {
			ro.Timeout = req.Render.Timeout
		}
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.WindowSize(1920, 1080),
	)
	if b.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(b.opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	b.log.Debug("rendering", "source", req.Source, "url", req.URL, "marker", ro.WaitSelector)

	// Start the browser on the tab context so the navigate deadline below
	// cannot tear it down.
	if err := chromedp.Run(tabCtx); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, b.opts.NavigateTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(req.URL))
	cancelNav()
	if err != nil {
		return nil, navigateError(ctx, req.URL, b.opts.NavigateTimeout, err)
	}

	if ro.WaitSelector != "" {
		waitCtx, cancelWait := context.WithTimeout(tabCtx, ro.Timeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(ro.WaitSelector, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s after %s", ErrMarkerTimeout, ro.WaitSelector, ro.Timeout)
			}
			return nil, fmt.Errorf("wait for %s: %w", ro.WaitSelector, err)
		}
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(ro.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("read rendered page: %w", err)
	}

	return &Document{
		Source:     req.Source,
		URL:        req.URL,
		Body:       []byte(html),
		StatusCode: 200,
		Rendered:   true,
	}, nil
}

// navigateError reports a page load that ran out of its own deadline as
// ErrNavigateTimeout so the retrier tries again. Cancellation of the caller's
// context is passed through unchanged.
func navigateError(ctx context.Context, url string, timeout time.Duration, err error) error {
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrNavigateTimeout, url, timeout)
	}
	return fmt.Errorf("navigate %s: %w", url, err)
}
