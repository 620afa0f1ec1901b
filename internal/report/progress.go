package report

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-isatty"

	"github.com/anstrom/portsniffer/internal/scanning"
)

const (
	progressWidth         = 40
	defaultRedrawInterval = 100 * time.Millisecond
)

// ProgressBar draws a single-line progress bar. It is safe for concurrent use.
type ProgressBar struct {
	mu       sync.Mutex
	out      io.Writer
	bar      progress.Model
	interval time.Duration
	lastDraw time.Time
	drawn    bool
	finished bool
}

var _ scanning.ProgressSink = (*ProgressBar)(nil)

// NewProgressBar creates a progress bar writing to out.
func NewProgressBar(out io.Writer) *ProgressBar {
	return &ProgressBar{
		out:      out,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressWidth), progress.WithoutPercentage()),
		interval: defaultRedrawInterval,
	}
}

// Update redraws the bar, at most once per interval except for the final snapshot.
func (p *ProgressBar) Update(pr scanning.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}

	now := time.Now()
	if p.drawn && pr.Scanned < pr.Total && now.Sub(p.lastDraw) < p.interval {
		return
	}

	_, _ = fmt.Fprintf(p.out, "\r%s %3.0f%% %d/%d scanned, %d open",
		p.bar.ViewAs(pr.Percent()), pr.Percent()*100, pr.Scanned, pr.Total, pr.Open)

	p.lastDraw = now
	p.drawn = true
}

// Finish terminates the bar line. Later updates are ignored.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}
	p.finished = true

	if p.drawn {
		_, _ = fmt.Fprintln(p.out)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ShowProgress decides whether a progress bar should be drawn on f.
func ShowProgress(enabled, debug bool, f *os.File) bool {
	return enabled && !debug && IsTerminal(f)
}
