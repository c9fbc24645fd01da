// Package linkedin implements the LinkedIn job-board adapter. The public job
// search page renders its cards client-side, so pages go through a headless browser.
package linkedin

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/job-monitor/internal/fetch"
	"github.com/jonathan/job-monitor/internal/source"
	"github.com/jonathan/job-monitor/internal/types"
	"golang.org/x/time/rate"
)

// Name is the registry name of this adapter.
const Name = "linkedin"

// DefaultBaseURL is the public LinkedIn site.
const DefaultBaseURL = "https://www.linkedin.com"

// pageSize is how far LinkedIn's start parameter advances per results page.
const pageSize = 25

// defaultPageDelay spaces page renders.
const defaultPageDelay = 3 * time.Second

// Options configures the adapter.
type Options struct {
	BaseURL       string
	RenderTimeout time.Duration
	PageDelay     time.Duration // zero uses the default, negative disables pacing
	// Render overrides the headless browser, mainly for tests.
	Render fetch.Renderer
	Logger *slog.Logger
}

// Adapter scrapes LinkedIn's guest job search.
type Adapter struct {
	baseURL string
	render  fetch.Renderer
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a LinkedIn adapter.
func New(opts Options) *Adapter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PageDelay == 0 {
		opts.PageDelay = defaultPageDelay
	}
	if opts.Render == nil {
		opts.Render = fetch.NewBrowserRenderer(fetch.BrowserOptions{
			Timeout:      opts.RenderTimeout,
			WaitSelector: "ul.jobs-search__results-list",
			Settle:       2 * time.Second,
			Logger:       opts.Logger,
		})
	}
	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}
	return &Adapter{
		baseURL: opts.BaseURL,
		render:  opts.Render,
		limiter: rate.NewLimiter(limit, 1),
		logger:  opts.Logger.With("source", Name),
	}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

// Fetch renders up to req.MaxPages result pages, stopping at the first page
// without cards. A failure on the first page is returned as an error; later
// failures end the walk and keep what was collected.
func (a *Adapter) Fetch(ctx context.Context, req source.Request) ([]types.Posting, error) {
	maxPages := max(req.MaxPages, 1)
	var postings []types.Posting

	for page := 0; page < maxPages; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			if page == 0 {
				return nil, err
			}
			return postings, nil
		}

		pageURL := a.searchURL(req, page)
		a.logger.Debug("rendering page", "page", page+1, "url", pageURL)

		html, err := a.render(ctx, pageURL)
		if err != nil {
			if page == 0 {
				return nil, fmt.Errorf("linkedin page 1: %w", err)
			}
			a.logger.Warn("stopping after page error", "page", page+1, "err", err)
			return postings, nil
		}

		doc, err := fetch.ParseHTML(html)
		if err != nil {
			if page == 0 {
				return nil, fmt.Errorf("linkedin page 1: %w", err)
			}
			return postings, nil
		}

		found := parse(doc)
		if len(found) == 0 {
			a.logger.Debug("no more results", "page", page+1)
			break
		}
		postings = append(postings, found...)
	}

	a.logger.Info("scraped postings", "query", req.SearchTerm, "count", len(postings))
	return postings, nil
}

func (a *Adapter) searchURL(req source.Request, page int) string {
	q := url.Values{}
	q.Set("keywords", req.SearchTerm)
	q.Set("location", req.Location)
	q.Set("start", strconv.Itoa(page*pageSize))
	return a.baseURL + "/jobs/search/?" + q.Encode()
}

func parse(doc *goquery.Document) []types.Posting {
	var postings []types.Posting
	doc.Find("div.base-card").Each(func(_ int, card *goquery.Selection) {
		title := card.Find("h3.base-search-card__title").First()
		link := card.Find("a.base-card__full-link").First()
		if title.Length() == 0 || link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		href = strings.TrimSpace(href)

		p := types.Posting{
			ExternalID: jobID(href),
			Title:      fetch.CleanWhitespace(title.Text()),
			Company:    fetch.Text(card, "h4.base-search-card__subtitle"),
			Location:   fetch.Text(card, "span.job-search-card__location"),
			URL:        href,
		}
		postings = append(postings, p.WithDefaults())
	})
	return postings
}

// jobID returns the last path segment of a job link, without query string.
func jobID(href string) string {
	if href == "" {
		return ""
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	return href[strings.LastIndex(href, "/")+1:]
}
