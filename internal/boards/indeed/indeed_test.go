package indeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jonathan/job-monitor/internal/source"
	"github.com/jonathan/job-monitor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardTemplate = `
<div class="job_seen_beacon">
  <h2 class="jobTitle"><a data-jk="%s" href="/rc/clk?jk=%s"><span>%s</span></a></h2>
  <span data-testid="company-name">%s</span>
  <div data-testid="text-location">%s</div>
</div>`

func page(cards ...string) string {
	html := "<html><body><div id=\"mosaic\">"
	for _, c := range cards {
		html += c
	}
	return html + "</div></body></html>"
}

func card(id, title, company, location string) string {
	return fmt.Sprintf(cardTemplate, id, id, title, company, location)
}

func newTestAdapter(baseURL string) *Adapter {
	return New(Options{
		BaseURL: baseURL,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestAdapter_Name(t *testing.T) {
	assert.Equal(t, "indeed", New(Options{}).Name())
}

func TestFetch_ParsesCardsAcrossPages(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.Equal(t, "go developer", r.URL.Query().Get("q"))
		assert.Equal(t, "Berlin", r.URL.Query().Get("l"))
		start := r.URL.Query().Get("start")
		mu.Lock()
		starts = append(starts, start)
		mu.Unlock()

		switch start {
		case "0":
			_, _ = w.Write([]byte(page(
				card("abc123", "Go Developer", "Acme GmbH", "Berlin"),
				`<div class="job_seen_beacon"><h2 class="jobTitle"><a>No Id Role</a></h2></div>`,
			)))
		case "10":
			_, _ = w.Write([]byte(page(card("def456", "Backend Engineer", "Widgets", "Remote"))))
		default:
			_, _ = w.Write([]byte(page()))
		}
	}))
	defer server.Close()

	postings, err := newTestAdapter(server.URL).Fetch(context.Background(),
		source.Request{SearchTerm: "go developer", Location: "Berlin", MaxPages: 5})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0", "10", "20"}, starts, "walk stops at the first empty page")
	require.Len(t, postings, 3)

	assert.Equal(t, types.Posting{
		ExternalID: "abc123",
		Title:      "Go Developer",
		Company:    "Acme GmbH",
		Location:   "Berlin",
		URL:        server.URL + "/viewjob?jk=abc123",
	}, postings[0])

	assert.Equal(t, "", postings[1].ExternalID)
	assert.Equal(t, "No Id Role", postings[1].Title)
	assert.Equal(t, types.Unknown, postings[1].Company)
	assert.Equal(t, types.Unknown, postings[1].Location)
	assert.Equal(t, "", postings[1].URL)

	assert.Equal(t, "def456", postings[2].ExternalID)
}

func TestFetch_RespectsMaxPages(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_, _ = w.Write([]byte(page(card("id"+strconv.Itoa(int(n)), "Role", "Co", "Loc"))))
	}))
	defer server.Close()

	postings, err := newTestAdapter(server.URL).Fetch(context.Background(),
		source.Request{SearchTerm: "golang", MaxPages: 2})
	require.NoError(t, err)
	assert.Len(t, postings, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_FirstPageFailureIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	postings, err := newTestAdapter(server.URL).Fetch(context.Background(),
		source.Request{SearchTerm: "golang", MaxPages: 3})
	require.Error(t, err)
	assert.Nil(t, postings)
	assert.Contains(t, err.Error(), "403")
}

func TestFetch_LaterBadStatusPageIsSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("start") {
		case "0":
			_, _ = w.Write([]byte(page(card("a", "Role A", "Co", "Loc"))))
		case "10":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "20":
			_, _ = w.Write([]byte(page(card("c", "Role C", "Co", "Loc"))))
		default:
			_, _ = w.Write([]byte(page()))
		}
	}))
	defer server.Close()

	postings, err := newTestAdapter(server.URL).Fetch(context.Background(),
		source.Request{SearchTerm: "golang", MaxPages: 4})
	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.Equal(t, "a", postings[0].ExternalID)
	assert.Equal(t, "c", postings[1].ExternalID)
}

func TestFetch_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page(card("a", "Role", "Co", "Loc"))))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAdapter(server.URL).Fetch(ctx, source.Request{SearchTerm: "golang", MaxPages: 1})
	assert.Error(t, err)
}
