package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/job-monitor/internal/config"
	"github.com/jonathan/job-monitor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envKeys are the variables ApplyEnv reads; tests clear them so a local .env
// cannot change the outcome.
var envKeys = []string{
	"DATABASE_URL", "SEARCH_TERMS", "LOCATION", "SOURCES", "MAX_PAGES_TO_SCRAPE",
	"CHECK_INTERVAL_MINUTES", "SMTP_SERVER", "SMTP_PORT", "EMAIL_SENDER", "EMAIL_PASSWORD",
	"EMAIL_RECIPIENT", "ADZUNA_APP_ID", "ADZUNA_APP_KEY", "ADZUNA_COUNTRY", "WEBHOOK_URL",
	"REDIS_URL", "KAFKA_BROKERS", "LOG_LEVEL",
}

// resetFlags restores every flag variable, since cobra only writes the flags
// that appear on the command line.
func resetFlags() {
	flagConfig, flagDB, flagLogLevel = "", "", ""
	runSearch, runLocation, runSources = "", "", nil
	newMarkRead = false
	cleanupDays = 30
	scheduleInterval = 0
	servePort, serveSchedule = 0, true
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

const indeedCard = `<div class="job_seen_beacon">
  <h2 class="jobTitle"><a data-jk="%s" href="/rc/clk?jk=%s"><span>%s</span></a></h2>
  <span data-testid="company-name">%s</span>
  <div data-testid="text-location">Remote</div>
</div>`

// newIndeedServer serves one results page with the given cards.
func newIndeedServer(t *testing.T, cards ...[2]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var body bytes.Buffer
		body.WriteString("<html><body>")
		for _, c := range cards {
			fmt.Fprintf(&body, indeedCard, c[0], c[0], c[1], "Acme")
		}
		body.WriteString("</body></html>")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(body.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, indeedURL string) string {
	t.Helper()
	path := filepath.Join(dir, "job_monitor.toml")
	content := fmt.Sprintf(`
database_url = %q

[[queries]]
search_term = "golang"
location = "remote"
sources = ["indeed"]
max_pages = 1

[sources.indeed]
base_url = %q
page_delay = "0s"
`, filepath.Join(dir, "jobs.db"), indeedURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestOverrideQueries(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{Queries: []types.Query{
			{SearchTerm: "python", Location: "remote", Sources: []string{"indeed"}, MaxPages: 3},
			{SearchTerm: "go", Location: "berlin", Sources: []string{"linkedin"}, MaxPages: 2},
		}}
	}

	t.Run("search replaces queries", func(t *testing.T) {
		cfg := base()
		overrideQueries(cfg, " rust ", "", nil)
		require.Len(t, cfg.Queries, 1)
		assert.Equal(t, types.Query{SearchTerm: "rust", Location: "remote", Sources: []string{"indeed"}, MaxPages: 3}, cfg.Queries[0])
	})

	t.Run("location and sources apply to every query", func(t *testing.T) {
		cfg := base()
		overrideQueries(cfg, "", "Paris", []string{" Indeed", "", "adzuna"})
		require.Len(t, cfg.Queries, 2)
		for _, q := range cfg.Queries {
			assert.Equal(t, "Paris", q.Location)
			assert.Equal(t, []string{"indeed", "adzuna"}, q.Sources)
		}
		assert.Equal(t, "go", cfg.Queries[1].SearchTerm)
	})

	t.Run("no flags keeps config", func(t *testing.T) {
		cfg := base()
		overrideQueries(cfg, "", "", nil)
		assert.Equal(t, base(), cfg)
	})

	t.Run("search without configured queries", func(t *testing.T) {
		cfg := &config.Config{}
		overrideQueries(cfg, "rust", "remote", []string{"indeed"})
		require.Len(t, cfg.Queries, 1)
		assert.Equal(t, config.DefaultMaxPages, cfg.Queries[0].MaxPages)
		assert.Equal(t, []string{"indeed"}, cfg.Queries[0].Sources)
	})
}

func TestRunCommand_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	srv := newIndeedServer(t, [2]string{"a1", "Go Developer"}, [2]string{"b2", "Platform Engineer"})
	cfgPath := writeConfig(t, dir, srv.URL)

	out, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "NEW JOB LISTINGS FOUND: 2")
	assert.Contains(t, out, "Go Developer")
	assert.Contains(t, out, "INGESTION CYCLE")
	assert.Contains(t, out, "Status:   completed")
	assert.Contains(t, out, "Total postings:   2")

	out, err = execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "NEW JOB LISTINGS FOUND", "known postings are not notified again")
	assert.Contains(t, out, "New:      0")
	assert.Contains(t, out, "Total postings:   2")

	out, err = execute(t, "new", "--config", cfgPath, "--mark-read")
	require.NoError(t, err)
	assert.Contains(t, out, "NEW POSTINGS (2)")

	out, err = execute(t, "new", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No postings.")

	out, err = execute(t, "stats", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "New postings:     0")
	assert.Contains(t, out, "Runs (last 24h):  2")
}

func TestRunCommand_SourceFailureIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	cfgPath := writeConfig(t, dir, srv.URL)

	out, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "INGESTION CYCLE")
}

func TestRunCommand_UnknownSource(t *testing.T) {
	_, err := execute(t, "run", "--db", filepath.Join(t.TempDir(), "jobs.db"), "--sources", "monster")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source "monster"`)
}

func TestConfig_InvalidLogLevel(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	resetFlags()
	rootCmd.SetArgs([]string{"stats", "--db", filepath.Join(t.TempDir(), "jobs.db"), "--log-level", "loud"})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestCleanupCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "jobs.db")

	out, err := execute(t, "cleanup", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 postings not seen in the last 30 days")

	_, err = execute(t, "cleanup", "--db", db, "--days", "-1")
	assert.ErrorContains(t, err, "non-negative")
}

func TestTestNotifyCommand(t *testing.T) {
	out, err := execute(t, "test-notify", "--db", filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "Test Job Notification")
	assert.Contains(t, out, "✓ console")
}

func TestTestNotifyCommand_FailingSinkExitsZero(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(hook.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "job_monitor.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
database_url = %q

[notify.console]
enabled = false

[notify.webhook]
url = %q
`, filepath.Join(dir, "jobs.db"), hook.URL)), 0o600))

	out, err := execute(t, "test-notify", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✗ webhook")
	assert.Contains(t, out, "404")
}

func TestApp_CloseRunsClosersInReverse(t *testing.T) {
	var order []int
	a := &app{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return fmt.Errorf("boom") },
	}}

	err := a.Close()
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, a.Close(), "closing twice is a no-op")
}
