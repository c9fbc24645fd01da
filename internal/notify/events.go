package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonathan/job-monitor/internal/schemas"
	"github.com/jonathan/job-monitor/internal/types"
	schemafiles "github.com/jonathan/job-monitor/schemas"
)

// Event type names carried in the "type" field.
const (
	EventPosting      = "posting"
	EventPostingBatch = "posting_batch"
)

// PostingEvent is the broker payload for one posting.
type PostingEvent struct {
	Type       string        `json:"type"`
	Identity   string        `json:"identity"`
	Posting    types.Posting `json:"posting"`
	DetectedAt time.Time     `json:"detected_at"`
}

// BatchEvent is the broker payload for a whole notification batch.
type BatchEvent struct {
	Type       string          `json:"type"`
	Count      int             `json:"count"`
	Postings   []types.Posting `json:"postings"`
	DetectedAt time.Time       `json:"detected_at"`
}

// EncodePostingEvent marshals and schema-checks one posting event.
func EncodePostingEvent(p types.Posting, at time.Time) ([]byte, error) {
	return encode(schemafiles.PostingEvent, PostingEvent{
		Type:       EventPosting,
		Identity:   p.Identity().String(),
		Posting:    p,
		DetectedAt: at.UTC(),
	})
}

// EncodeBatchEvent marshals and schema-checks a batch event.
func EncodeBatchEvent(postings []types.Posting, at time.Time) ([]byte, error) {
	return encode(schemafiles.PostingBatch, BatchEvent{
		Type:       EventPostingBatch,
		Count:      len(postings),
		Postings:   postings,
		DetectedAt: at.UTC(),
	})
}

func encode(schema string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := schemas.Validate(schema, data); err != nil {
		return nil, err
	}
	return data, nil
}
