package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/history"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/output"
)

// latestByPrefix is history.Latest for a full id or a unique id prefix.
func latestByPrefix(entries []history.Entry, ref string) (history.Entry, error) {
	if e, ok := history.Latest(entries, ref); ok {
		return e, nil
	}
	ids := map[string]bool{}
	for _, e := range entries {
		if strings.HasPrefix(e.JobID, ref) {
			ids[e.JobID] = true
		}
	}
	if len(ids) != 1 || ref == "" {
		return history.Entry{}, fmt.Errorf("no unique history entry for %q", ref)
	}
	var match string
	for id := range ids {
		match = id
	}
	e, _ := history.Latest(entries, match)
	return e, nil
}

func newHistoryCmd() *cobra.Command {
	var limit int
	var markdown bool
	var deleteID string

	cmd := &cobra.Command{
		Use:   "history [--limit N] [--delete JOB_ID]",
		Short: "Show finished downloads or delete a downloaded file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := loadSettings(cmd)
			ctx := context.Background()
			hist, err := openHistory(s)
			if err != nil {
				fatal("Error opening history", err)
			}
			defer hist.Close()
			entries, err := hist.List(ctx)
			if err != nil {
				fatal("Error reading history", err)
			}

			if deleteID != "" {
				entry, err := latestByPrefix(entries, deleteID)
				if err != nil {
					fatal("Error finding download", err)
				}
				if entry.Status != model.StatusSuccess || entry.Location == "" {
					output.PrintError(fmt.Sprintf("Job %s has no downloaded file", deleteID))
					os.Exit(1)
				}
				st, err := openStore(ctx, s)
				if err != nil {
					fatal("Error opening store", err)
				}
				if !st.Delete(ctx, entry.Location) {
					output.PrintError("Could not delete " + entry.Location)
					os.Exit(1)
				}
				output.PrintSuccess("Deleted " + entry.Location)
				return
			}

			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			if len(entries) == 0 {
				output.PrintInfo("No history yet")
				return
			}
			output.HistoryTable(entries).PrintTable(markdown)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most N entries (0 for all)")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Print the table with markdown borders")
	cmd.Flags().StringVar(&deleteID, "delete", "", "Delete the downloaded file of this job")
	return cmd
}
