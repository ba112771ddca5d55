package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/control"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/output"
)

func newAddCmd() *cobra.Command {
	var req model.Request
	var rf resolveFlags

	cmd := &cobra.Command{
		Use:   "add [URL]... [--format FORMAT] [--title TITLE]",
		Short: "Queue URLs on the running daemon",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := loadSettings(cmd)
			client := control.NewClient(s.Socket)
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
			failed := false
			for _, r := range resolve(s, reqs, rf) {
				job, err := client.Add(context.Background(), r)
				if err != nil {
					output.PrintError(fmt.Sprintf("Error queueing %s: %v", r.URL, err))
					failed = true
					continue
				}
				output.PrintSuccess(fmt.Sprintf("Queued %s %s", job.ShortID(), job.URL))
			}
			if failed {
				os.Exit(1)
			}
		},
	}

	addRequestFlags(cmd, &req)
	addResolveFlags(cmd, &rf)
	return cmd
}
