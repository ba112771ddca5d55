package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/control"
	"github.com/tanq16/vidown/internal/output"
	"github.com/tanq16/vidown/internal/utils"
)

func newCleanCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clean [--force]",
		Short: "Remove leftover temporary download files",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := loadSettings(cmd)
			if !force {
				if jobs, err := control.NewClient(s.Socket).List(context.Background()); err == nil && len(jobs) > 0 {
					output.PrintError("A daemon is running with queued jobs; use --force to clean anyway")
					return
				}
			}
			n, err := utils.CleanTemp(s.TempDir, logFileName)
			if err != nil {
				fatal("Error cleaning temporary files", err)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary files from %s", n, s.TempDir))
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Clean even while a daemon has jobs")
	return cmd
}
