package linkedin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/jonathan/job-monitor/internal/source"
	"github.com/jonathan/job-monitor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func card(href, title, company, location string) string {
	return fmt.Sprintf(`
<div class="base-card">
  <a class="base-card__full-link" href="%s"></a>
  <h3 class="base-search-card__title">
      %s
  </h3>
  <h4 class="base-search-card__subtitle">%s</h4>
  <span class="job-search-card__location">%s</span>
</div>`, href, title, company, location)
}

func page(cards ...string) string {
	return `<html><body><ul class="jobs-search__results-list">` + strings.Join(cards, "") + `</ul></body></html>`
}

type fakeRenderer struct {
	pages map[string]string // keyed by start parameter
	errs  map[string]error
	urls  []string
}

func (f *fakeRenderer) render(_ context.Context, rawURL string) (string, error) {
	f.urls = append(f.urls, rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	start := u.Query().Get("start")
	if err := f.errs[start]; err != nil {
		return "", err
	}
	if html, ok := f.pages[start]; ok {
		return html, nil
	}
	return page(), nil
}

func newTestAdapter(r *fakeRenderer) *Adapter {
	return New(Options{
		BaseURL:   "https://linkedin.test",
		PageDelay: -1,
		Render:    r.render,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestJobID(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"https://www.linkedin.com/jobs/view/go-developer-at-acme-3812345678?refId=abc&trackingId=x", "go-developer-at-acme-3812345678"},
		{"https://www.linkedin.com/jobs/view/3812345678/", "3812345678"},
		{"https://www.linkedin.com/jobs/view/3812345678#top", "3812345678"},
		{"3812345678", "3812345678"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			assert.Equal(t, tt.want, jobID(tt.href))
		})
	}
}

func TestFetch_ParsesRenderedPages(t *testing.T) {
	r := &fakeRenderer{pages: map[string]string{
		"0": page(
			card("https://www.linkedin.com/jobs/view/111?refId=a", "Go Engineer", "Acme", "Remote"),
			`<div class="base-card"><h3 class="base-search-card__title">No link</h3></div>`,
		),
		"25": page(card("https://www.linkedin.com/jobs/view/222", "SRE", "", "")),
	}}

	postings, err := newTestAdapter(r).Fetch(context.Background(),
		source.Request{SearchTerm: "go engineer", Location: "Remote", MaxPages: 3})
	require.NoError(t, err)

	require.Len(t, postings, 2)
	assert.Equal(t, types.Posting{
		ExternalID: "111",
		Title:      "Go Engineer",
		Company:    "Acme",
		Location:   "Remote",
		URL:        "https://www.linkedin.com/jobs/view/111?refId=a",
	}, postings[0])
	assert.Equal(t, "222", postings[1].ExternalID)
	assert.Equal(t, types.Unknown, postings[1].Company)

	require.Len(t, r.urls, 3, "the empty third page ends the walk")
	first, err := url.Parse(r.urls[0])
	require.NoError(t, err)
	assert.Equal(t, "/jobs/search/", first.Path)
	assert.Equal(t, "go engineer", first.Query().Get("keywords"))
	assert.Equal(t, "Remote", first.Query().Get("location"))
}

func TestFetch_FirstRenderFailure(t *testing.T) {
	r := &fakeRenderer{errs: map[string]error{"0": errors.New("chrome not found")}}

	postings, err := newTestAdapter(r).Fetch(context.Background(), source.Request{SearchTerm: "golang", MaxPages: 2})
	require.Error(t, err)
	assert.Nil(t, postings)
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestFetch_LaterRenderFailureKeepsEarlierPages(t *testing.T) {
	r := &fakeRenderer{
		pages: map[string]string{"0": page(card("https://x/jobs/view/1", "A", "Co", "Loc"))},
		errs:  map[string]error{"25": errors.New("timeout")},
	}

	postings, err := newTestAdapter(r).Fetch(context.Background(), source.Request{SearchTerm: "golang", MaxPages: 3})
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, "1", postings[0].ExternalID)
}
