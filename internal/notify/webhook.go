package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
)

// maxEmbeds is Discord's per-message embed limit.
const maxEmbeds = 10

const embedColor = 3447003 // blue

// WebhookOptions configures the chat webhook sink.
type WebhookOptions struct {
	URL      string
	Username string
	Client   *http.Client
}

// Webhook posts Discord-compatible embeds, one per posting, in messages of at most ten embeds.
type Webhook struct {
	opts WebhookOptions
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content"`
	Embeds   []discordEmbed `json:"embeds"`
}

// NewWebhook creates a webhook sink.
func NewWebhook(opts WebhookOptions) *Webhook {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &Webhook{opts: opts}
}

// Name implements Sink.
func (w *Webhook) Name() string { return "webhook" }

// Notify implements Sink.
func (w *Webhook) Notify(ctx context.Context, postings []types.Posting) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for start := 0; start < len(postings); start += maxEmbeds {
		end := min(start+maxEmbeds, len(postings))

		payload := discordPayload{Username: w.opts.Username}
		if start == 0 {
			payload.Content = subject(len(postings))
		}
		for _, p := range postings[start:end] {
			embed := discordEmbed{
				Title:       p.Title,
				Description: fmt.Sprintf("%s\n%s", p.Company, p.Location),
				URL:         p.URL,
				Color:       embedColor,
				Timestamp:   now,
			}
			embed.Footer.Text = p.Source
			payload.Embeds = append(payload.Embeds, embed)
		}

		if err := w.post(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, payload discordPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.opts.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
