// Package source defines the job-board adapter port and the registry that
// invokes adapters with per-source failure isolation.
package source

import (
	"context"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
)

// Request is one search sent to an adapter.
type Request struct {
	SearchTerm string
	Location   string
	MaxPages   int
}

// Adapter fetches postings from one job board.
//
// Implementations return the postings they could collect; a non-nil error
// means the registry discards the call's postings entirely. Adapters must
// honour ctx cancellation.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]types.Posting, error)
}

// Result is the outcome of one adapter call.
type Result struct {
	Source   string
	Postings []types.Posting
	Err      error
	Elapsed  time.Duration
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}
