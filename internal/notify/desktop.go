package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/beeep"
	"github.com/jonathan/job-monitor/internal/types"
)

// desktopPreview is how many titles the notification body lists.
const desktopPreview = 3

// NotifyFunc shows one desktop notification.
type NotifyFunc func(title, message, icon string) error

// Desktop raises one OS notification summarising the batch.
type Desktop struct {
	notify NotifyFunc
}

// NewDesktop creates a desktop sink. A nil fn uses beeep.
func NewDesktop(fn NotifyFunc) *Desktop {
	if fn == nil {
		fn = func(title, message, icon string) error {
			return beeep.Notify(title, message, icon)
		}
	}
	return &Desktop{notify: fn}
}

// Name implements Sink.
func (d *Desktop) Name() string { return "desktop" }

// Notify implements Sink.
func (d *Desktop) Notify(_ context.Context, postings []types.Posting) error {
	lines := make([]string, 0, desktopPreview+1)
	for i, p := range postings {
		if i == desktopPreview {
			lines = append(lines, fmt.Sprintf("and %d more", len(postings)-desktopPreview))
			break
		}
		lines = append(lines, fmt.Sprintf("%s at %s", p.Title, p.Company))
	}
	if err := d.notify(subject(len(postings)), strings.Join(lines, "\n"), ""); err != nil {
		return fmt.Errorf("failed to show desktop notification: %w", err)
	}
	return nil
}
