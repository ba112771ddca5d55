package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/vidown/internal/model"
)

func TestProgressAndTerminal(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&buf)
	m.Track("job-a", "first")
	m.Track("job-b", "second")
	m.ShowProgress(model.Notice{JobID: "job-a", Title: "first", Percent: 45, Speed: "1.2MiB/s", ETA: "00:10"})

	lines := strings.Join(m.render(50), "\n")
	for _, want := range []string{"first", "45%", "1.2MiB/s", "ETA 00:10", "[pause]", "[cancel]", "Waiting... second"} {
		if !strings.Contains(lines, want) {
			t.Errorf("expected display to contain %q, got:\n%s", want, lines)
		}
	}

	m.ShowTerminal("job-a", "first", true)
	m.ShowTerminal("job-b", "second", false)
	m.ShowProgress(model.Notice{JobID: "job-a", Percent: 10})
	success, failed, total := m.Counts()
	if success != 1 || failed != 1 || total != 2 {
		t.Errorf("expected 1/1/2, got %d/%d/%d", success, failed, total)
	}
	m.ShowSummary()
	out := buf.String()
	if !strings.Contains(out, "Completed 1 of 2") || !strings.Contains(out, "second") {
		t.Errorf("unexpected summary: %s", out)
	}
}

func TestSyncReflectsRegistry(t *testing.T) {
	m := NewManager(&bytes.Buffer{})
	m.Track("p", "paused one")
	m.Track("c", "cancelled one")
	m.Track("gone", "removed one")

	m.Sync([]model.Job{
		{ID: "p", Title: "paused one", Status: model.StatusPaused},
		{ID: "c", Title: "cancelled one", Status: model.StatusCancelled},
		{ID: "new", Title: "late", Status: model.StatusPending},
	})
	lines := strings.Join(m.render(50), "\n")
	for _, want := range []string{"Paused paused one", "[resume]", "Cancelled cancelled one", "Waiting... late"} {
		if !strings.Contains(lines, want) {
			t.Errorf("expected display to contain %q, got:\n%s", want, lines)
		}
	}
	if strings.Contains(lines, "removed one") {
		t.Error("removed job still displayed")
	}

	m.Sync([]model.Job{{ID: "p", Title: "paused one", Status: model.StatusPending}})
	if lines := strings.Join(m.render(50), "\n"); !strings.Contains(lines, "Waiting... paused one") {
		t.Errorf("resumed job should wait again, got:\n%s", lines)
	}
}

func TestRenderRespectsHeight(t *testing.T) {
	m := NewManager(&bytes.Buffer{})
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		m.ShowTerminal(id, "done "+id, true)
	}
	m.ShowProgress(model.Notice{JobID: "run", Title: "running", Percent: 5})
	lines := m.render(5)
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "running") {
		t.Errorf("active job must come first, got %q", lines[0])
	}
}

func TestStopDisplayTwice(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&buf)
	m.displayTick = time.Millisecond
	m.StartDisplay()
	m.ShowTerminal("x", "clip", true)
	m.StopDisplay()
	m.StopDisplay()
	if !strings.Contains(buf.String(), "Completed 1 of 1") {
		t.Errorf("expected summary, got %q", buf.String())
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent  int
		expected string
	}{
		{0, "0%"},
		{50, "50%"},
		{150, "100%"},
		{-3, "0%"},
	}
	for _, test := range tests {
		if got := PrintProgressBar(test.percent, 10); !strings.Contains(got, test.expected) {
			t.Errorf("PrintProgressBar(%d) = %q, expected %q", test.percent, got, test.expected)
		}
	}
}

func TestJobsTable(t *testing.T) {
	out := JobsTable([]model.Job{
		{ID: "0123456789", Title: "clip", FormatID: "best", Status: model.StatusDownloading, Progress: 12.5, DownloadedBytes: 1024, TotalBytes: 4096},
	}).FormatTable(true)
	for _, want := range []string{"01234567", "clip", "12.5%", "1.00 KB / 4.00 KB"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected table to contain %q, got:\n%s", want, out)
		}
	}
}
