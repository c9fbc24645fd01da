// Package adzuna implements the Adzuna public job search API adapter.
package adzuna

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/jonathan/job-monitor/internal/fetch"
	"github.com/jonathan/job-monitor/internal/source"
	"github.com/jonathan/job-monitor/internal/types"
)

// Name is the registry name of this adapter.
const Name = "adzuna"

const (
	// DefaultBaseURL is the Adzuna jobs API root.
	DefaultBaseURL = "https://api.adzuna.com/v1/api/jobs"
	// DefaultResultsPerPage is the API maximum.
	DefaultResultsPerPage = 50
)

// ErrMissingCredentials is returned by Fetch when no app id or key is configured.
var ErrMissingCredentials = errors.New("adzuna app id and key are required")

// Options configures the adapter.
type Options struct {
	BaseURL        string
	AppID          string
	AppKey         string
	Country        string // "us", "gb", "fr", ...
	ResultsPerPage int
	Fetch          *fetch.Options
	Logger         *slog.Logger
}

// Adapter queries the Adzuna search endpoint page by page.
type Adapter struct {
	opts   Options
	logger *slog.Logger
}

// New creates an Adzuna adapter.
func New(opts Options) *Adapter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Country == "" {
		opts.Country = "us"
	}
	if opts.ResultsPerPage <= 0 {
		opts.ResultsPerPage = DefaultResultsPerPage
	}
	if opts.Fetch == nil {
		opts.Fetch = &fetch.Options{
			Timeout:   fetch.DefaultTimeout,
			UserAgent: fetch.DefaultUserAgent,
			Headers:   map[string]string{"Accept": "application/json"},
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Adapter{opts: opts, logger: opts.Logger.With("source", Name)}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

type searchResponse struct {
	Results []result `json:"results"`
	Count   int      `json:"count"`
}

type result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	RedirectURL string `json:"redirect_url"`
	Company     struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
}

// Fetch pages through results until a short page or req.MaxPages. A failure
// on the first page is returned as an error; later failures keep what was collected.
func (a *Adapter) Fetch(ctx context.Context, req source.Request) ([]types.Posting, error) {
	if a.opts.AppID == "" || a.opts.AppKey == "" {
		return nil, ErrMissingCredentials
	}

	maxPages := max(req.MaxPages, 1)
	var postings []types.Posting

	for page := 1; page <= maxPages; page++ {
		batch, err := a.fetchPage(ctx, req, page)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("adzuna page 1: %w", err)
			}
			a.logger.Warn("stopping after page error", "page", page, "err", err)
			break
		}
		postings = append(postings, batch...)
		if len(batch) < a.opts.ResultsPerPage {
			break
		}
	}

	a.logger.Info("fetched postings", "query", req.SearchTerm, "count", len(postings))
	return postings, nil
}

func (a *Adapter) fetchPage(ctx context.Context, req source.Request, page int) ([]types.Posting, error) {
	params := url.Values{}
	params.Set("app_id", a.opts.AppID)
	params.Set("app_key", a.opts.AppKey)
	params.Set("results_per_page", strconv.Itoa(a.opts.ResultsPerPage))
	params.Set("what", req.SearchTerm)
	if req.Location != "" {
		params.Set("where", req.Location)
	}
	params.Set("sort_by", "date")

	endpoint := fmt.Sprintf("%s/%s/search/%d?%s", a.opts.BaseURL, url.PathEscape(a.opts.Country), page, params.Encode())

	res, err := fetch.URL(ctx, endpoint, a.opts.Fetch)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(res.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	postings := make([]types.Posting, 0, len(resp.Results))
	for _, r := range resp.Results {
		postings = append(postings, types.Posting{
			ExternalID: r.ID,
			Title:      fetch.CleanWhitespace(r.Title),
			Company:    r.Company.DisplayName,
			Location:   r.Location.DisplayName,
			URL:        r.RedirectURL,
		}.WithDefaults())
	}
	return postings, nil
}
