// Package types provides type definitions for structured data used throughout the job-monitor system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"strings"
	"time"
)

// Unknown is the placeholder stored when a source does not report a company or location.
const Unknown = "N/A"

// Posting is one job advertisement as reported by a source adapter.
type Posting struct {
	ExternalID string `json:"external_id"`
	Source     string `json:"source"`
	Title      string `json:"title"`
	Company    string `json:"company"`
	Location   string `json:"location"`
	URL        string `json:"url"`
	Query      string `json:"query"` // search term that surfaced the posting
}

// Identity is the durable key of a posting: the same advertisement seen twice
// by the same source always has the same identity.
type Identity struct {
	ExternalID string `json:"external_id"`
	Source     string `json:"source"`
}

// String renders the identity as source:external_id.
func (id Identity) String() string {
	return id.Source + ":" + id.ExternalID
}

// Identity returns the posting's durable key.
func (p Posting) Identity() Identity {
	return Identity{ExternalID: p.ExternalID, Source: p.Source}
}

// WithDefaults fills missing company and location with Unknown and trims
// surrounding whitespace from the display fields. The identity is left as is.
func (p Posting) WithDefaults() Posting {
	p.Title = strings.TrimSpace(p.Title)
	p.Company = strings.TrimSpace(p.Company)
	p.Location = strings.TrimSpace(p.Location)
	p.URL = strings.TrimSpace(p.URL)
	if p.Company == "" {
		p.Company = Unknown
	}
	if p.Location == "" {
		p.Location = Unknown
	}
	return p
}

// PersistedPosting is a posting together with its bookkeeping fields.
type PersistedPosting struct {
	ID int64 `json:"id"`
	Posting
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	IsNovel   bool      `json:"is_novel"`
}

// SearchRun records one executed query.
type SearchRun struct {
	ID            int64     `json:"id"`
	Query         string    `json:"query"`
	Location      string    `json:"location"`
	Timestamp     time.Time `json:"timestamp"`
	PostingsFound int       `json:"postings_found"`
}

// Statistics is an aggregate view of the stored postings.
type Statistics struct {
	Total       int            `json:"total"`
	NovelCount  int            `json:"novel_count"`
	BySource    map[string]int `json:"by_source"`
	RunsLast24h int            `json:"runs_last_24h"`
}

// Query is one configured search: a term and location run against a list of sources.
type Query struct {
	SearchTerm string   `json:"search_term" toml:"search_term" validate:"required"`
	Location   string   `json:"location" toml:"location"`
	Sources    []string `json:"sources" toml:"sources" validate:"required,min=1,dive,required"`
	MaxPages   int      `json:"max_pages" toml:"max_pages" validate:"min=1"`
}
