package ingest

import (
	"strings"

	"github.com/jonathan/job-monitor/internal/types"
)

// Excluded reports whether any keyword appears, ignoring case, in the
// posting's title or company. Empty keywords never match.
func Excluded(p types.Posting, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	combined := strings.ToLower(p.Title + " " + p.Company)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// filterExcluded splits postings into kept and dropped counts.
func filterExcluded(postings []types.Posting, keywords []string) ([]types.Posting, int) {
	if len(keywords) == 0 {
		return postings, 0
	}
	kept := postings[:0:0]
	dropped := 0
	for _, p := range postings {
		if Excluded(p, keywords) {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	return kept, dropped
}
