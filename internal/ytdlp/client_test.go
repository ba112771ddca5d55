package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestArgs(t *testing.T) {
	c := &Client{FFmpegPath: "/opt/ffmpeg"}
	args := c.Args(Request{URL: "https://youtu.be/x", Format: "audio", OutputTemplate: "/tmp/id.%(ext)s"})
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-f bestaudio[ext=m4a]/bestaudio",
		"-o /tmp/id.%(ext)s",
		"--ffmpeg-location /opt/ffmpeg",
		"--extract-audio --audio-format m4a",
		"--no-playlist",
		"--newline",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "https://youtu.be/x" || args[len(args)-2] != "--" {
		t.Errorf("expected url last after --, got %v", args[len(args)-2:])
	}

	video := (&Client{}).Args(Request{URL: "u", Format: "137+bestaudio", OutputTemplate: "o"})
	if strings.Contains(strings.Join(video, " "), "--extract-audio") {
		t.Errorf("video format must not extract audio: %v", video)
	}
}

func TestParsePercentAndETA(t *testing.T) {
	if p, ok := parsePercent("[download]  42.5% of 10.00MiB at 1.00MiB/s ETA 00:05"); !ok || p != 42.5 {
		t.Errorf("parsePercent = %v, %v", p, ok)
	}
	if _, ok := parsePercent("[Merger] Merging formats into x.mkv"); ok {
		t.Error("expected no percent")
	}
	tests := []struct {
		line     string
		expected int
	}{
		{"ETA 00:05", 5},
		{"ETA 1:02:03", 3723},
		{"ETA 12:00", 720},
		{"ETA Unknown", -1},
		{"no eta", -1},
	}
	for _, test := range tests {
		if got := parseETASeconds(test.line); got != test.expected {
			t.Errorf("parseETASeconds(%q) = %d, expected %d", test.line, got, test.expected)
		}
	}
}

func TestSplitByNewlineOrCR(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("a\r\nb\rc\n\nd"))
	scanner.Split(splitByNewlineOrCR)
	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	if strings.Join(got, ",") != "a,b,c,d" {
		t.Errorf("unexpected tokens %q", got)
	}
}

func TestDownloadStreamsEvents(t *testing.T) {
	path := fakeTool(t, `printf '[download]  10.0%% of 1.00MiB at 1.00MiB/s ETA 00:09\r'
printf '[download]  55.5%% of 1.00MiB at 1.00MiB/s ETA 00:04\n'
echo "[Merger] merging" >&2
echo "[download] 100% of 1.00MiB"
`)
	c := &Client{Path: path}
	var mu sync.Mutex
	var events []Event
	err := c.Download(context.Background(), Request{URL: "u", Format: "best", OutputTemplate: "o"}, func(ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	var first, last Event
	for _, ev := range events {
		if strings.Contains(ev.Line, "10.0%") {
			first = ev
		}
		if strings.HasPrefix(ev.Line, "[download] 100%") {
			last = ev
		}
	}
	if last.Percent != 100 {
		t.Errorf("expected final percent 100, got %+v", last)
	}
	if first.Percent != 10 || first.ETASeconds != 9 {
		t.Errorf("unexpected first progress event %+v", first)
	}
}

func TestDownloadReportsFailure(t *testing.T) {
	path := fakeTool(t, `echo "ERROR: Video unavailable" >&2
exit 1
`)
	c := &Client{Path: path}
	err := c.Download(context.Background(), Request{URL: "u", Format: "best", OutputTemplate: "o"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Video unavailable") {
		t.Errorf("expected stderr tail in error, got %v", err)
	}
}

func TestDownloadStopsOnCallbackError(t *testing.T) {
	path := fakeTool(t, `echo "[download]  10.0% of 1.00MiB"
exec sleep 30
`)
	c := &Client{Path: path, WaitDelay: 200 * time.Millisecond}
	start := time.Now()
	err := c.Download(context.Background(), Request{URL: "u", Format: "best", OutputTemplate: "o"}, func(Event) error {
		return ErrStopped
	})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("stop took too long: %v", time.Since(start))
	}
}

func TestDownloadHonoursContext(t *testing.T) {
	path := fakeTool(t, "exec sleep 30\n")
	c := &Client{Path: path, WaitDelay: 200 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := c.Download(ctx, Request{URL: "u", Format: "best", OutputTemplate: "o"}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestResolveFormat(t *testing.T) {
	if got := ResolveFormat("cheap"); got != "bestvideo[height<=720]+bestaudio/best" {
		t.Errorf("ResolveFormat(cheap) = %q", got)
	}
	if got := ResolveFormat("137+140"); got != "137+140" {
		t.Errorf("expected raw selector passthrough, got %q", got)
	}
	tests := []struct {
		format   string
		expected bool
	}{
		{"audio", true},
		{"bestaudio", true},
		{"140-m4a", true},
		{"mp3", true},
		{"best", false},
		{"bestvideo+bestaudio", false},
		{"137+bestaudio", false},
	}
	for _, test := range tests {
		if got := IsAudioFormat(test.format); got != test.expected {
			t.Errorf("IsAudioFormat(%q) = %v, expected %v", test.format, got, test.expected)
		}
	}
	for _, name := range Presets() {
		if _, ok := formatPresets[name]; !ok {
			t.Errorf("preset %q not in map", name)
		}
	}
}

func TestReleaseAsset(t *testing.T) {
	if got, err := releaseAsset("linux", "amd64"); err != nil || got != "yt-dlp_linux" {
		t.Errorf("releaseAsset(linux, amd64) = %q, %v", got, err)
	}
	if _, err := releaseAsset("plan9", "386"); err == nil {
		t.Error("expected unsupported platform error")
	}
}
