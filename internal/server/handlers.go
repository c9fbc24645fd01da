package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jonathan/job-monitor/internal/ingest"
	"github.com/jonathan/job-monitor/internal/types"
)

// maxListLimit caps GET /postings.
const maxListLimit = 1000

// HealthResponse represents the response for /health
type HealthResponse struct {
	Status string        `json:"status"`
	Cycle  ingest.Status `json:"cycle,omitempty"`
}

// PostingsResponse represents a list of stored postings
type PostingsResponse struct {
	Count    int                      `json:"count"`
	Postings []types.PersistedPosting `json:"postings"`
}

func newPostingsResponse(postings []types.PersistedPosting) PostingsResponse {
	if postings == nil {
		postings = []types.PersistedPosting{}
	}
	return PostingsResponse{Count: len(postings), Postings: postings}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.state != nil {
		resp.Cycle = s.state.State()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleStats returns aggregate counts over the store
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		s.errorFor(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

// handleListPostings returns the most recently discovered postings
func (s *Server) handleListPostings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.errorFor(w, r, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	postings, err := s.store.FetchAll(r.Context(), limit)
	if err != nil {
		s.errorFor(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newPostingsResponse(postings))
}

// handleSearchPostings returns postings whose search query contains q
func (s *Server) handleSearchPostings(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.errorFor(w, r, &ErrValidation{Field: "q", Message: "is required"})
		return
	}

	postings, err := s.store.FetchByQuery(r.Context(), q)
	if err != nil {
		s.errorFor(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newPostingsResponse(postings))
}

// handleNovelPostings returns postings still flagged new without consuming them
func (s *Server) handleNovelPostings(w http.ResponseWriter, r *http.Request) {
	s.novel(w, r, false)
}

// handleConsumeNovel returns the new postings and clears their flag in one step
func (s *Server) handleConsumeNovel(w http.ResponseWriter, r *http.Request) {
	s.novel(w, r, true)
}

func (s *Server) novel(w http.ResponseWriter, r *http.Request, consume bool) {
	postings, err := s.store.FetchNovel(r.Context(), consume)
	if err != nil {
		s.errorFor(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newPostingsResponse(postings))
}

// handleRunCycle runs one ingestion cycle and returns its report
func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	if s.cycles == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "cycles are not enabled on this server")
		return
	}

	report, err := s.cycles.RunOnce(r.Context())
	if err != nil {
		s.errorFor(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// handleLastCycle returns the report of the most recent cycle
func (s *Server) handleLastCycle(w http.ResponseWriter, _ *http.Request) {
	var report *ingest.CycleReport
	if s.state != nil {
		report = s.state.LastReport()
	}
	if report == nil {
		s.errorResponse(w, http.StatusNotFound, "no cycle has run yet")
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}
