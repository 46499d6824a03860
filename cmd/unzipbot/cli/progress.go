package cli

import (
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/meigma/unzipbot"
)

// progressMode returns the configured progress mode: "auto", "tty", or "plain".
func progressMode() string {
	mode := viper.GetString("progress")
	switch mode {
	case "auto", "tty", "plain":
		return mode
	default:
		return "auto"
	}
}

// shouldShowProgress returns true if progress bars should be displayed.
func shouldShowProgress() bool {
	mode := progressMode()

	// Plain mode disables progress
	if mode == "plain" {
		return false
	}

	// TTY mode forces progress regardless of terminal detection
	if mode == "tty" {
		return true
	}

	// Auto mode: show progress only if connected to a TTY
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// newProgressBar creates a new progress bar for byte-based operations.
func newProgressBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)
}

// extractProgress aggregates byte progress from several concurrent
// extractions into one bar.
type extractProgress struct {
	bar *progressbar.ProgressBar
}

// newExtractProgress returns nil when progress should not be shown.
func newExtractProgress(total int64) *extractProgress {
	if !shouldShowProgress() || total <= 0 {
		return nil
	}
	return &extractProgress{bar: newProgressBar(total, "Extracting")}
}

// tracker returns a callback for one pipeline. Callbacks report cumulative
// bytes per entry, so the tracker forwards only the delta.
func (p *extractProgress) tracker() unzipbot.ProgressFunc {
	if p == nil {
		return nil
	}
	var (
		mu   sync.Mutex
		name string
		last int64
	)
	return func(entry string, written, _ int64) {
		mu.Lock()
		delta := written - last
		if entry != name || delta < 0 {
			delta = written
		}
		name, last = entry, written
		mu.Unlock()
		if delta > 0 {
			//nolint:errcheck // progress bar errors are not critical
			p.bar.Add64(delta)
		}
	}
}

// finish completes the bar.
func (p *extractProgress) finish() {
	if p == nil {
		return
	}
	//nolint:errcheck // progress bar errors are not critical
	p.bar.Finish()
}
