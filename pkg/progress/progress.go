// Package progress prints single-line, carriage-return driven progress for
// the planning and copy phases.
package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/bitia-ru/wp-hostpath-backup/pkg/bytefmt"
)

// DefaultInterval bounds updates to about four per second.
const DefaultInterval = 250 * time.Millisecond

// Reporter receives progress from the planner and the executor.
type Reporter interface {
	// Planned is called after each file is queued.
	Planned(queued int)
	// PlanDone is called once planning has finished.
	PlanDone(queued int)
	// Copied is called after each entry is processed.
	Copied(done, total int, bytes int64)
	// CopyDone is called once every entry has been processed.
	CopyDone(total int, bytes int64)
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Planned(int)            {}
func (Nop) PlanDone(int)           {}
func (Nop) Copied(int, int, int64) {}
func (Nop) CopyDone(int, int64)    {}

// Console writes throttled progress lines to a writer. Intermediate updates
// are only written when the writer is a terminal; final lines always are.
type Console struct {
	w           io.Writer
	interactive bool
	plan        rate.Sometimes
	copy        rate.Sometimes
}

// NewConsole returns a Console writing to w. Intermediate updates are shown
// when w is a terminal.
func NewConsole(w io.Writer) *Console {
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return newConsole(w, interactive, DefaultInterval)
}

// newConsole builds a Console; an interval <= 0 disables throttling.
func newConsole(w io.Writer, interactive bool, interval time.Duration) *Console {
	c := &Console{w: w, interactive: interactive}
	if interval <= 0 {
		c.plan.Every, c.copy.Every = 1, 1
	} else {
		c.plan.Interval, c.copy.Interval = interval, interval
	}
	return c
}

func (c *Console) Planned(queued int) {
	if !c.interactive {
		return
	}
	c.plan.Do(func() {
		fmt.Fprintf(c.w, "\r       %s files to copy...  ", humanize.Comma(int64(queued)))
	})
}

func (c *Console) PlanDone(queued int) {
	fmt.Fprintf(c.w, "\r       %s files to copy...  \n", humanize.Comma(int64(queued)))
}

func (c *Console) Copied(done, total int, bytes int64) {
	if !c.interactive {
		return
	}
	c.copy.Do(func() {
		fmt.Fprintf(c.w, "\r       Copying files: %s%% (%s)  ", percent(done, total), bytefmt.FormatBytes(bytes))
	})
}

func (c *Console) CopyDone(total int, bytes int64) {
	fmt.Fprintf(c.w, "\r       Copying files: 100%% (%s)  \n", bytefmt.FormatBytes(bytes))
}

// percent renders done/total with at most two decimals.
func percent(done, total int) string {
	if total <= 0 {
		return "100"
	}
	p := math.Round(float64(done)/float64(total)*10000) / 100
	return fmt.Sprintf("%g", p)
}
