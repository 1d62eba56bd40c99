// Package progress renders row-level reload progress on the terminal.
package progress

import (
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar sized lazily from the first callback, so it
// can be handed to the executor before the row count is known.
type Tracker struct {
	bar *progressbar.ProgressBar
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// Update reports rows written so far out of total. Usable directly as an
// executor progress callback.
func (t *Tracker) Update(done, total int64) {
	if t.bar == nil {
		t.bar = progressbar.NewOptions64(
			total,
			progressbar.OptionSetDescription("Reloading"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rows"),
		)
	}
	t.bar.Set64(done)
}

// Finish completes the bar if it was ever shown.
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
	}
}
