// Package schemas holds the JSON Schemas for the events published to message brokers.
package schemas

import "embed"

// Schema file names.
const (
	PostingEvent = "posting_event.schema.json"
	PostingBatch = "posting_batch.schema.json"
)

// FS contains every *.schema.json file in this directory.
//
//go:embed *.schema.json
var FS embed.FS
