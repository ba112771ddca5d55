package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/vidown/internal/model"
)

const videoJSON = `{"id":"abc","_type":"video","title":"A Clip","webpage_url":"https://www.youtube.com/watch?v=abc","thumbnail":"https://i.ytimg.com/abc.jpg","filesize":null,"filesize_approx":2048}`

const playlistJSON = `{"id":"PL1","_type":"playlist","title":"Mix","entries":[` +
	`{"id":"v1","_type":"url","url":"https://www.youtube.com/watch?v=v1","title":"One","thumbnails":[{"url":"https://i.ytimg.com/v1/small.jpg"},{"url":"https://i.ytimg.com/v1/big.jpg"}]},` +
	`{"id":"v2","_type":"url","url":"v2","title":"Two"},` +
	`{"_type":"url","title":"broken"}]}`

func TestInfoSingleVideo(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	path := fakeTool(t, `printf '%s\n' "$@" > `+argsFile+`
echo "[youtube] abc: Downloading webpage"
cat <<'EOF'
`+videoJSON+`
EOF
`)
	c := &Client{Path: path, ExtraArgs: []string{"--proxy", "socks5://127.0.0.1:1080"}}
	info, err := c.Info(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.IsPlaylist() || info.Title != "A Clip" || info.ThumbnailURL() != "https://i.ytimg.com/abc.jpg" || info.Size() != 2048 {
		t.Errorf("unexpected info %+v", info)
	}

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	args := strings.Fields(string(data))
	joined := strings.Join(args, " ")
	for _, want := range []string{"-J", "--flat-playlist", "--proxy socks5://127.0.0.1:1080"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "https://youtu.be/abc" || args[len(args)-2] != "--" {
		t.Errorf("expected url last after --, got %v", args)
	}
}

func TestInfoFailures(t *testing.T) {
	tests := []struct {
		name   string
		script string
		check  func(error) bool
	}{
		{
			name:   "tool error",
			script: "echo 'ERROR: Private video' >&2\nexit 1\n",
			check:  func(err error) bool { return err != nil && strings.Contains(err.Error(), "Private video") },
		},
		{
			name:   "no output",
			script: "exit 0\n",
			check:  func(err error) bool { return errors.Is(err, ErrNoInfo) },
		},
		{
			name:   "bad json",
			script: "echo '{not json'\n",
			check:  func(err error) bool { return err != nil && strings.Contains(err.Error(), "error parsing yt-dlp info") },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := &Client{Path: fakeTool(t, test.script)}
			if _, err := c.Info(context.Background(), "https://youtu.be/x"); !test.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestInfoTimeout(t *testing.T) {
	c := &Client{Path: fakeTool(t, "exec sleep 30\n"), InfoTimeout: 100 * time.Millisecond, WaitDelay: 200 * time.Millisecond}
	_, err := c.Info(context.Background(), "https://youtu.be/x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestInfoRequests(t *testing.T) {
	video, err := parseInfo([]byte(videoJSON))
	if err != nil {
		t.Fatal(err)
	}
	playlist, err := parseInfo([]byte(playlistJSON))
	if err != nil {
		t.Fatal(err)
	}

	got := video.Requests(model.Request{URL: "https://youtu.be/abc", FormatID: "audio"})
	expected := model.Request{URL: "https://youtu.be/abc", FormatID: "audio", Title: "A Clip", ThumbnailURL: "https://i.ytimg.com/abc.jpg", TotalBytes: 2048}
	if len(got) != 1 || got[0] != expected {
		t.Errorf("video requests = %+v", got)
	}
	kept := video.Requests(model.Request{URL: "u", Title: "mine", ThumbnailURL: "t"})
	if kept[0].Title != "mine" || kept[0].ThumbnailURL != "t" {
		t.Errorf("given title and thumbnail must win, got %+v", kept[0])
	}

	entries := playlist.Requests(model.Request{URL: "https://youtube.com/playlist?list=PL1", Title: "ignored", FormatID: "720p", VideoOnly: true})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	tests := []model.Request{
		{URL: "https://www.youtube.com/watch?v=v1", Title: "One", ThumbnailURL: "https://i.ytimg.com/v1/big.jpg", FormatID: "720p", VideoOnly: true},
		{URL: "https://www.youtube.com/watch?v=v2", Title: "Two", FormatID: "720p", VideoOnly: true},
	}
	for i, want := range tests {
		if entries[i] != want {
			t.Errorf("entry %d = %+v, expected %+v", i, entries[i], want)
		}
	}
}
