// Package indeed implements the Indeed job-board adapter over plain HTTP.
package indeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/job-monitor/internal/fetch"
	"github.com/jonathan/job-monitor/internal/source"
	"github.com/jonathan/job-monitor/internal/types"
	"golang.org/x/time/rate"
)

// Name is the registry name of this adapter.
const Name = "indeed"

// DefaultBaseURL is the public Indeed site.
const DefaultBaseURL = "https://www.indeed.com"

// pageSize is how far Indeed's start parameter advances per results page.
const pageSize = 10

// Options configures the adapter.
type Options struct {
	BaseURL   string
	PageDelay time.Duration // minimum spacing between page requests
	Fetch     *fetch.Options
	Logger    *slog.Logger
}

// Adapter scrapes Indeed search result pages.
type Adapter struct {
	baseURL string
	fetch   *fetch.Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates an Indeed adapter.
func New(opts Options) *Adapter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Fetch == nil {
		opts.Fetch = fetch.DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}
	return &Adapter{
		baseURL: opts.BaseURL,
		fetch:   opts.Fetch,
		limiter: rate.NewLimiter(limit, 1),
		logger:  opts.Logger.With("source", Name),
	}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

// Fetch walks up to req.MaxPages result pages. It stops at the first page with
// no job cards. A failure on the first page is returned as an error; later
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
		a.logger.Debug("fetching page", "page", page+1, "url", pageURL)

		doc, err := fetch.Document(ctx, pageURL, a.fetch)
		if err != nil {
			if page == 0 {
				return nil, fmt.Errorf("indeed page 1: %w", err)
			}
			var fetchErr *fetch.Error
			if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
				a.logger.Warn("skipping page", "page", page+1, "status", fetchErr.StatusCode)
				continue
			}
			a.logger.Warn("stopping after page error", "page", page+1, "err", err)
			return postings, nil
		}

		found := a.parse(doc)
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
	q.Set("q", req.SearchTerm)
	q.Set("l", req.Location)
	q.Set("start", strconv.Itoa(page*pageSize))
	return a.baseURL + "/jobs?" + q.Encode()
}

func (a *Adapter) parse(doc *goquery.Document) []types.Posting {
	var postings []types.Posting
	doc.Find("div.job_seen_beacon").Each(func(_ int, card *goquery.Selection) {
		title := card.Find("h2.jobTitle").First()
		if title.Length() == 0 {
			return
		}
		id, _ := title.Find("a").First().Attr("data-jk")

		p := types.Posting{
			ExternalID: id,
			Title:      fetch.CleanWhitespace(title.Text()),
			Company:    fetch.Text(card, `span[data-testid="company-name"]`),
			Location:   fetch.Text(card, `div[data-testid="text-location"]`),
		}
		if id != "" {
			p.URL = a.baseURL + "/viewjob?jk=" + url.QueryEscape(id)
		}
		postings = append(postings, p.WithDefaults())
	})
	return postings
}
