package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request carries the immutable parameters of a download. It is the payload
// accepted from the CLI, batch files and the control socket.
type Request struct {
	URL          string `yaml:"url" json:"url"`
	Title        string `yaml:"title,omitempty" json:"title,omitempty"`
	ThumbnailURL string `yaml:"thumbnail,omitempty" json:"thumbnail_url,omitempty"`
	FormatID     string `yaml:"format,omitempty" json:"format_id,omitempty"`
	TotalBytes   int64  `yaml:"size,omitempty" json:"total_bytes,omitempty"`
	VideoOnly    bool   `yaml:"video_only,omitempty" json:"video_only,omitempty"`
}

// Job is one download record as held by the registry. Values handed out by the
// registry are copies; mutate through the registry API only.
type Job struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	FormatID     string `json:"format_id"`

	Status          Status  `json:"status"`
	Progress        float64 `json:"progress"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	Speed           string  `json:"speed,omitempty"`
	ETA             string  `json:"eta,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize fills defaults into a request. Video-only selectors get the best
// audio track merged in.
func (r Request) Normalize(defaultFormat string) Request {
	r.URL = strings.TrimSpace(r.URL)
	r.Title = strings.TrimSpace(r.Title)
	r.FormatID = strings.TrimSpace(r.FormatID)
	if r.FormatID == "" {
		r.FormatID = defaultFormat
	}
	if r.VideoOnly && !strings.Contains(r.FormatID, "+") {
		r.FormatID += "+bestaudio"
		r.VideoOnly = false
	}
	if r.Title == "" {
		r.Title = "unknown_video"
	}
	if r.TotalBytes < 0 {
		r.TotalBytes = 0
	}
	return r
}

// NewJob creates a Pending record with a fresh id.
func NewJob(req Request, now time.Time) Job {
	return Job{
		ID:           uuid.NewString(),
		URL:          req.URL,
		Title:        req.Title,
		ThumbnailURL: req.ThumbnailURL,
		FormatID:     req.FormatID,
		Status:       StatusPending,
		TotalBytes:   req.TotalBytes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Request returns the parameters the record was created from.
func (j Job) Request() Request {
	return Request{
		URL:          j.URL,
		Title:        j.Title,
		ThumbnailURL: j.ThumbnailURL,
		FormatID:     j.FormatID,
	}
}

func (j Job) ShortID() string {
	if len(j.ID) > 8 {
		return j.ID[:8]
	}
	return j.ID
}

// ClampPercent bounds a progress value to [0, 100]. NaN reads as 0.
func ClampPercent(p float64) float64 {
	if p != p || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
