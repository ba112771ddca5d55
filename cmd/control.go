package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/control"
	"github.com/tanq16/vidown/internal/output"
)

var controlCommands = []struct {
	action control.Action
	short  string
	done   string
}{
	{control.ActionPause, "Pause a queued or running job", "Paused"},
	{control.ActionResume, "Resume a paused job", "Resumed"},
	{control.ActionCancel, "Cancel a job and keep its record", "Cancelled"},
	{control.ActionRemove, "Stop a job and remove its record", "Removed"},
	{control.ActionRetry, "Queue a failed or cancelled job again as a new job", "Queued"},
}

func newControlCmds() []*cobra.Command {
	var cmds []*cobra.Command
	for _, c := range controlCommands {
		c := c
		cmds = append(cmds, &cobra.Command{
			Use:   string(c.action) + " [JOB_ID]",
			Short: c.short,
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				s := loadSettings(cmd)
				job, err := control.NewClient(s.Socket).Control(context.Background(), c.action, args[0])
				if err != nil {
					fatal(fmt.Sprintf("Error running %s", c.action), err)
				}
				output.PrintSuccess(fmt.Sprintf("%s %s %s", c.done, job.ShortID(), job.Title))
			},
		})
	}
	return cmds
}
