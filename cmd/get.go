package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/output"
	"github.com/tanq16/vidown/internal/ytdlp"
)

func newGetCmd() *cobra.Command {
	var req model.Request
	var rf resolveFlags

	cmd := &cobra.Command{
		Use:   "get [URL]... [--format FORMAT] [--title TITLE]",
		Short: "Download one or more URLs in the foreground",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := loadSettings(cmd)
			if len(args) > 1 && req.Title != "" {
				output.PrintError("--title applies to a single URL only")
				os.Exit(1)
			}
			reqs := make([]model.Request, 0, len(args))
			for _, url := range args {
				r := req
				r.URL = url
				reqs = append(reqs, r)
			}
			reqs = resolve(s, reqs, rf)
			if len(reqs) == 0 {
				output.PrintError("Nothing to download")
				os.Exit(1)
			}
			log.Debug().Str("op", "cmd/get").Msgf("starting foreground run with %d jobs", len(reqs))
			if failed := runForeground(s, reqs); failed > 0 {
				output.PrintError(fmt.Sprintf("%d of %d downloads did not complete", failed, len(reqs)))
				os.Exit(1)
			}
		},
	}

	addRequestFlags(cmd, &req)
	addResolveFlags(cmd, &rf)
	return cmd
}

func addRequestFlags(cmd *cobra.Command, req *model.Request) {
	cmd.Flags().StringVarP(&req.FormatID, "format", "f", "", "Format preset ("+strings.Join(ytdlp.Presets(), ", ")+") or yt-dlp selector")
	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "Title used for the saved file name")
	cmd.Flags().StringVar(&req.ThumbnailURL, "thumbnail", "", "Thumbnail URL kept with the history entry")
	cmd.Flags().BoolVar(&req.VideoOnly, "video-only", false, "Format selects video only; merge in the best audio track")
}
