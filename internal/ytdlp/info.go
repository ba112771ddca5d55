package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidown/internal/model"
)

var ErrNoInfo = errors.New("yt-dlp returned no metadata")

const (
	defaultInfoTimeout = 60 * time.Second
	watchURLTemplate   = "https://www.youtube.com/watch?v=%s"
)

type Thumbnail struct {
	URL string `json:"url"`
}

// Info is the part of yt-dlp's JSON dump used to fill in requests. Playlist
// entries come from a flat listing and carry little more than id, url and
// title.
type Info struct {
	ID             string      `json:"id"`
	Type           string      `json:"_type"`
	Title          string      `json:"title"`
	URL            string      `json:"url"`
	WebpageURL     string      `json:"webpage_url"`
	Thumbnail      string      `json:"thumbnail"`
	Thumbnails     []Thumbnail `json:"thumbnails"`
	FileSize       float64     `json:"filesize"`
	FileSizeApprox float64     `json:"filesize_approx"`
	Entries        []Info      `json:"entries"`
}

func (i Info) IsPlaylist() bool {
	return i.Type == "playlist" || len(i.Entries) > 0
}

// ThumbnailURL prefers the single thumbnail field and falls back to the last
// (largest) entry of the list.
func (i Info) ThumbnailURL() string {
	if i.Thumbnail != "" {
		return i.Thumbnail
	}
	for k := len(i.Thumbnails) - 1; k >= 0; k-- {
		if i.Thumbnails[k].URL != "" {
			return i.Thumbnails[k].URL
		}
	}
	return ""
}

func (i Info) Size() int64 {
	if i.FileSize > 0 {
		return int64(i.FileSize)
	}
	if i.FileSizeApprox > 0 {
		return int64(i.FileSizeApprox)
	}
	return 0
}

// entryURL is the page to download for a flat playlist entry. Some extractors
// give only the video id.
func (i Info) entryURL() string {
	for _, u := range []string{i.WebpageURL, i.URL} {
		if strings.Contains(u, "://") {
			return u
		}
	}
	if i.ID != "" {
		return fmt.Sprintf(watchURLTemplate, i.ID)
	}
	return ""
}

// Requests turns base into the downloads i stands for. A playlist yields one
// request per entry sharing the format of base; anything else yields base with
// its missing title, thumbnail and size taken from i.
func (i Info) Requests(base model.Request) []model.Request {
	if !i.IsPlaylist() {
		if base.Title == "" {
			base.Title = i.Title
		}
		if base.ThumbnailURL == "" {
			base.ThumbnailURL = i.ThumbnailURL()
		}
		if base.TotalBytes == 0 {
			base.TotalBytes = i.Size()
		}
		return []model.Request{base}
	}
	reqs := make([]model.Request, 0, len(i.Entries))
	for _, entry := range i.Entries {
		url := entry.entryURL()
		if url == "" {
			continue
		}
		req := base
		req.URL = url
		req.Title = entry.Title
		req.ThumbnailURL = entry.ThumbnailURL()
		req.TotalBytes = entry.Size()
		reqs = append(reqs, req)
	}
	return reqs
}

// Info asks yt-dlp for the metadata of url without downloading anything.
// Playlists are listed flat.
func (c *Client) Info(ctx context.Context, url string) (Info, error) {
	timeout := c.InfoTimeout
	if timeout <= 0 {
		timeout = defaultInfoTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"-J", "--flat-playlist", "--no-warnings"}
	args = append(args, c.ExtraArgs...)
	args = append(args, "--", url)
	cmd := c.command(ctx, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Debug().Str("op", "ytdlp/info").Msgf("executing yt-dlp command: %s", cmd.String())

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Info{}, fmt.Errorf("error fetching info for %s: %w", url, ctxErr)
		}
		var tail []string
		for _, line := range strings.Split(stderr.String(), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				tail = appendTail(tail, line)
			}
		}
		if len(tail) == 0 {
			return Info{}, fmt.Errorf("yt-dlp info failed: %w", err)
		}
		return Info{}, fmt.Errorf("yt-dlp info failed: %w: %s", err, strings.Join(tail, "\n"))
	}
	info, err := parseInfo(stdout.Bytes())
	if err != nil {
		return Info{}, err
	}
	log.Debug().Str("op", "ytdlp/info").Str("id", info.ID).Int("entries", len(info.Entries)).Msgf("resolved %s", url)
	return info, nil
}

// parseInfo decodes the last JSON object line of out; yt-dlp may print
// other lines before it.
func parseInfo(out []byte) (Info, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for k := len(lines) - 1; k >= 0; k-- {
		line := strings.TrimSpace(lines[k])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var info Info
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			return Info{}, fmt.Errorf("error parsing yt-dlp info: %v", err)
		}
		return info, nil
	}
	return Info{}, ErrNoInfo
}
