package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestConsole_Throttled(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(&buf, true, time.Hour)

	for i := 1; i <= 1000; i++ {
		c.Planned(i)
	}

	// Only the first update fits in the interval.
	if n := strings.Count(buf.String(), "\r"); n != 1 {
		t.Fatalf("got %d updates, want 1: %q", n, buf.String())
	}
	if !strings.Contains(buf.String(), " 1 files to copy") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestConsole_Unthrottled(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(&buf, true, 0)

	for i := 1; i <= 5; i++ {
		c.Copied(i, 5, int64(i*1024))
	}
	if n := strings.Count(buf.String(), "\r"); n != 5 {
		t.Fatalf("got %d updates, want 5", n)
	}
}

func TestConsole_NonInteractiveOnlyFinalLines(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(&buf, false, 0)

	c.Planned(1)
	c.Planned(2)
	c.PlanDone(12345)
	c.Copied(1, 2, 10)
	c.CopyDone(2, 1536)

	want := "\r       12,345 files to copy...  \n\r       Copying files: 100% (1.50 KB)  \n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestConsole_CopyLine(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(&buf, true, 0)
	c.Copied(1, 3, 2048)

	want := "\r       Copying files: 33.33% (2.00 KB)  "
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total int
		want        string
	}{
		{0, 10, "0"},
		{5, 10, "50"},
		{1, 3, "33.33"},
		{2, 3, "66.67"},
		{0, 0, "100"},
	}
	for _, tt := range tests {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %q, want %q", tt.done, tt.total, got, tt.want)
		}
	}
}
