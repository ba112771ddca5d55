package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/config"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/output"
	"github.com/tanq16/vidown/internal/ytdlp"
)

type infoSource interface {
	Info(ctx context.Context, url string) (ytdlp.Info, error)
}

type resolveFlags struct {
	skip       bool
	noPlaylist bool
}

func addResolveFlags(cmd *cobra.Command, rf *resolveFlags) {
	cmd.Flags().BoolVar(&rf.skip, "no-resolve", false, "Do not look up titles and playlists before queueing")
	cmd.Flags().BoolVar(&rf.noPlaylist, "no-playlist", false, "Queue a playlist URL as one download instead of one per entry")
}

// needsInfo is false only when nothing a lookup could add is missing.
func needsInfo(req model.Request) bool {
	return req.Title == "" || req.ThumbnailURL == "" || strings.Contains(req.URL, "list=")
}

// resolveRequests fills missing titles and thumbnails from yt-dlp metadata and
// expands playlists into one request per entry unless noPlaylist is set. A
// request whose lookup fails is kept as given.
func resolveRequests(ctx context.Context, src infoSource, reqs []model.Request, noPlaylist bool) []model.Request {
	out := make([]model.Request, 0, len(reqs))
	for _, req := range reqs {
		if !needsInfo(req) {
			out = append(out, req)
			continue
		}
		info, err := src.Info(ctx, req.URL)
		if err != nil {
			log.Warn().Str("op", "cmd/resolve").Err(err).Msgf("no metadata for %s", req.URL)
			out = append(out, req)
			continue
		}
		if info.IsPlaylist() && noPlaylist {
			out = append(out, req)
			continue
		}
		expanded := info.Requests(req)
		if info.IsPlaylist() {
			if len(expanded) == 0 {
				output.PrintError(fmt.Sprintf("Playlist %s has no entries, skipping", req.URL))
				continue
			}
			log.Info().Str("op", "cmd/resolve").Int("entries", len(expanded)).Msgf("expanded playlist %s", req.URL)
		}
		out = append(out, expanded...)
	}
	return out
}

// resolve runs resolveRequests with a yt-dlp client built from s.
func resolve(s config.Settings, reqs []model.Request, rf resolveFlags) []model.Request {
	if rf.skip {
		return reqs
	}
	ctx := context.Background()
	path, err := ytdlp.EnsureYtdlp(ctx, s.YtdlpPath, filepath.Join(filepath.Dir(s.TempDir), "bin"))
	if err != nil {
		log.Warn().Str("op", "cmd/resolve").Err(err).Msg("yt-dlp unavailable, queueing requests as given")
		return reqs
	}
	return resolveRequests(ctx, &ytdlp.Client{Path: path}, reqs, rf.noPlaylist)
}
