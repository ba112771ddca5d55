// Package history is the append-only log of terminal job outcomes.
package history

import (
	"context"
	"time"

	"github.com/tanq16/vidown/internal/model"
)

type Entry struct {
	JobID        string       `json:"job_id"`
	URL          string       `json:"url"`
	Title        string       `json:"title"`
	FormatID     string       `json:"format_id"`
	ThumbnailURL string       `json:"thumbnail_url,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	TotalBytes   int64        `json:"total_bytes"`
	Status       model.Status `json:"status"`
	Location     string       `json:"location,omitempty"`
}

func NewEntry(job model.Job, status model.Status, location string, now time.Time) Entry {
	return Entry{
		JobID:        job.ID,
		URL:          job.URL,
		Title:        job.Title,
		FormatID:     job.FormatID,
		ThumbnailURL: job.ThumbnailURL,
		Timestamp:    now,
		TotalBytes:   job.TotalBytes,
		Status:       status,
		Location:     location,
	}
}

type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

type Reader interface {
	List(ctx context.Context) ([]Entry, error)
}

// Log is a sink that can also be read back.
type Log interface {
	Sink
	Reader
	Close() error
}

// Latest returns the newest entry for jobID.
func Latest(entries []Entry, jobID string) (Entry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].JobID == jobID {
			return entries[i], true
		}
	}
	return Entry{}, false
}
