// Package fetch - browser.go provides headless browser rendering for script-rendered job boards.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultBrowserTimeout bounds a single page render.
const DefaultBrowserTimeout = 45 * time.Second

// BrowserOptions configures a render.
type BrowserOptions struct {
	Timeout time.Duration
	// WaitSelector, when set, is waited for before the HTML is captured.
	WaitSelector string
	// Settle is an extra pause after load for late client-side rendering.
	Settle    time.Duration
	UserAgent string
	Logger    *slog.Logger
}

// Renderer renders a page and returns its HTML.
type Renderer func(ctx context.Context, url string) (string, error)

// NewBrowserRenderer returns a Renderer backed by WithBrowser.
func NewBrowserRenderer(opts BrowserOptions) Renderer {
	return func(ctx context.Context, url string) (string, error) {
		return WithBrowser(ctx, url, opts)
	}
}

// WithBrowser renders a page in a headless browser and returns the rendered HTML.
// Requires Chrome/Chromium to be installed on the system.
func WithBrowser(ctx context.Context, url string, opts BrowserOptions) (string, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBrowserTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("starting headless browser", "url", url)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(opts.UserAgent),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, opts.Timeout)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if opts.WaitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery))
	}
	if opts.Settle > 0 {
		actions = append(actions, chromedp.Sleep(opts.Settle))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	logger.Debug("rendered page", "url", url, "bytes", len(html))
	return html, nil
}
