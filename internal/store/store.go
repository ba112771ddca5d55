// Package store persists finished downloads into durable, user-visible
// storage.
package store

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrInsufficientSpace = errors.New("insufficient free space at destination")
	ErrEmptyFile         = errors.New("downloaded file is empty")
)

// Item describes one temp file ready to be persisted.
type Item struct {
	TempPath        string
	Title           string
	MimeType        string
	IsVideo         bool
	DestinationHint string
}

// Store saves a temp file and returns its durable location. A failed Save must
// leave nothing behind at the destination and must not touch the temp file.
type Store interface {
	Save(ctx context.Context, item Item) (string, error)
	Delete(ctx context.Context, location string) bool
}

// Materialize saves item and removes the temp file once the durable copy exists.
func Materialize(ctx context.Context, s Store, item Item) (string, error) {
	info, err := os.Stat(item.TempPath)
	if err != nil {
		return "", fmt.Errorf("error reading temp file: %w", err)
	}
	if info.Size() == 0 {
		return "", ErrEmptyFile
	}
	location, err := s.Save(ctx, item)
	if err != nil {
		return "", err
	}
	if err := os.Remove(item.TempPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("op", "store/materialize").Err(err).Str("path", item.TempPath).Msg("failed to remove temp file")
	}
	log.Debug().Str("op", "store/materialize").Str("location", location).Msg("file materialized")
	return location, nil
}

var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
}

var videoExts = map[string]bool{".mp4": true, ".webm": true, ".mkv": true, ".avi": true}

// DetectMedia guesses the MIME type from the file extension.
func DetectMedia(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	isVideo := videoExts[ext]
	if t, ok := mediaTypes[ext]; ok {
		return t, isVideo
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t, isVideo
	}
	return "application/octet-stream", isVideo
}
