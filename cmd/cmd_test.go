package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tanq16/vidown/internal/history"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/ytdlp"
)

func TestReadBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	content := `format: audio
downloads:
  - url: https://youtu.be/a
    title: first
  - url: https://youtu.be/b
    format: 720p
    video_only: true
  - title: no url
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	reqs, err := readBatchFile(path)
	if err != nil {
		t.Fatalf("readBatchFile: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].FormatID != "audio" || reqs[0].Title != "first" {
		t.Errorf("unexpected first request %+v", reqs[0])
	}
	if reqs[1].FormatID != "720p" || !reqs[1].VideoOnly {
		t.Errorf("unexpected second request %+v", reqs[1])
	}

	if _, err := readBatchFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFilterJobs(t *testing.T) {
	jobs := []model.Job{
		{ID: "a", Status: model.StatusPending},
		{ID: "b", Status: model.StatusFailed},
		{ID: "c", Status: model.StatusPending},
	}
	if got := filterJobs(jobs, ""); len(got) != 3 {
		t.Errorf("empty filter must keep all, got %d", len(got))
	}
	if got := filterJobs(jobs, model.StatusPending); len(got) != 2 || got[1].ID != "c" {
		t.Errorf("unexpected filter result %+v", got)
	}
}

func TestLatestByPrefix(t *testing.T) {
	entries := []history.Entry{
		{JobID: "abc-1", Status: model.StatusFailed},
		{JobID: "abc-1", Status: model.StatusSuccess, Location: "/x.mp4"},
		{JobID: "abd-2", Status: model.StatusSuccess},
	}
	tests := []struct {
		ref      string
		expected string
		wantErr  bool
	}{
		{"abc-1", "/x.mp4", false},
		{"abc", "/x.mp4", false},
		{"ab", "", true},
		{"zzz", "", true},
		{"", "", true},
	}
	for _, test := range tests {
		t.Run(test.ref, func(t *testing.T) {
			e, err := latestByPrefix(entries, test.ref)
			if test.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", e)
				}
				return
			}
			if err != nil || e.Location != test.expected {
				t.Errorf("Expected %q, got %q (%v)", test.expected, e.Location, err)
			}
		})
	}
}

type fakeInfo struct {
	infos map[string]ytdlp.Info
	calls []string
}

func (f *fakeInfo) Info(_ context.Context, url string) (ytdlp.Info, error) {
	f.calls = append(f.calls, url)
	info, ok := f.infos[url]
	if !ok {
		return ytdlp.Info{}, errors.New("unsupported url")
	}
	return info, nil
}

func TestResolveRequests(t *testing.T) {
	src := &fakeInfo{infos: map[string]ytdlp.Info{}}
	src.infos["https://youtu.be/a"] = ytdlp.Info{ID: "a", Title: "Clip A", Thumbnail: "https://i/a.jpg"}
	src.infos["https://youtube.com/playlist?list=PL"] = ytdlp.Info{ID: "PL", Type: "playlist", Entries: []ytdlp.Info{
		{ID: "p1", URL: "https://www.youtube.com/watch?v=p1", Title: "Part 1"},
		{ID: "p2", Title: "Part 2"},
	}}
	src.infos["https://youtube.com/playlist?list=EMPTY"] = ytdlp.Info{ID: "EMPTY", Type: "playlist"}
	reqs := []model.Request{
		{URL: "https://youtu.be/a", FormatID: "audio"},
		{URL: "https://youtube.com/playlist?list=PL", FormatID: "720p"},
		{URL: "https://youtube.com/playlist?list=EMPTY"},
		{URL: "https://example.com/unknown"},
		{URL: "https://youtu.be/known", Title: "given", ThumbnailURL: "https://i/k.jpg"},
	}

	got := resolveRequests(context.Background(), src, reqs, false)
	expected := []model.Request{
		{URL: "https://youtu.be/a", FormatID: "audio", Title: "Clip A", ThumbnailURL: "https://i/a.jpg"},
		{URL: "https://www.youtube.com/watch?v=p1", FormatID: "720p", Title: "Part 1"},
		{URL: "https://www.youtube.com/watch?v=p2", FormatID: "720p", Title: "Part 2"},
		{URL: "https://example.com/unknown"},
		{URL: "https://youtu.be/known", Title: "given", ThumbnailURL: "https://i/k.jpg"},
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %d requests, got %+v", len(expected), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("request %d = %+v, expected %+v", i, got[i], expected[i])
		}
	}
	if len(src.calls) != 4 {
		t.Errorf("complete request must not be looked up, calls=%v", src.calls)
	}

	single := resolveRequests(context.Background(), src, reqs[1:2], true)
	if len(single) != 1 || single[0] != reqs[1] {
		t.Errorf("expected playlist kept as one request, got %+v", single)
	}
}
