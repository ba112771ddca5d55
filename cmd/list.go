package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/control"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/output"
)

func filterJobs(jobs []model.Job, status model.Status) []model.Job {
	if status == "" {
		return jobs
	}
	var out []model.Job
	for _, job := range jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out
}

func newListCmd() *cobra.Command {
	var watch bool
	var markdown bool
	var statusFilter string

	cmd := &cobra.Command{
		Use:     "list [--watch] [--status STATUS]",
		Short:   "Show the jobs of the running daemon",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := loadSettings(cmd)
			var status model.Status
			if statusFilter != "" {
				parsed, err := model.ParseStatus(statusFilter)
				if err != nil {
					fatal("Invalid --status", err)
				}
				status = parsed
			}
			client := control.NewClient(s.Socket)
			if !watch {
				jobs, err := client.List(context.Background())
				if err != nil {
					fatal("Error listing jobs", err)
				}
				jobs = filterJobs(jobs, status)
				if len(jobs) == 0 {
					output.PrintInfo("No jobs")
					return
				}
				output.JobsTable(jobs).PrintTable(markdown)
				return
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			err := client.Watch(ctx, func(version uint64, jobs []model.Job) error {
				fmt.Print("\033[H\033[2J")
				output.PrintHeader(fmt.Sprintf("vidown jobs (snapshot %d)", version))
				output.JobsTable(filterJobs(jobs, status)).PrintTable(markdown)
				return nil
			})
			if err != nil && ctx.Err() == nil {
				fatal("Error watching jobs", err)
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Redraw the table on every change")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Print the table with markdown borders")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show jobs with this status")
	return cmd
}
