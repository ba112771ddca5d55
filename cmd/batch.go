package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/control"
	"github.com/tanq16/vidown/internal/model"
	"github.com/tanq16/vidown/internal/output"
	"gopkg.in/yaml.v3"
)

// BatchFile is the YAML layout read by the batch command. Format applies to
// every entry that does not name its own.
type BatchFile struct {
	Format    string          `yaml:"format,omitempty"`
	Downloads []model.Request `yaml:"downloads"`
}

func readBatchFile(path string) ([]model.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading batch file: %v", err)
	}
	var batch BatchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("error parsing batch file: %v", err)
	}
	var reqs []model.Request
	for i, req := range batch.Downloads {
		if req.URL == "" {
			fmt.Fprintf(os.Stderr, "Warning: entry %d has no url, skipping...\n", i+1)
			continue
		}
		if req.FormatID == "" {
			req.FormatID = batch.Format
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func newBatchCmd() *cobra.Command {
	var remote bool
	var rf resolveFlags

	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [--remote]",
		Short: "Download every entry of a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := loadSettings(cmd)
			reqs, err := readBatchFile(args[0])
			if err != nil {
				fatal("Error loading batch", err)
			}
			if reqs = resolve(s, reqs, rf); len(reqs) == 0 {
				output.PrintError("No valid entries found in the batch file")
				os.Exit(1)
			}
			if remote {
				client := control.NewClient(s.Socket)
				for _, req := range reqs {
					job, err := client.Add(context.Background(), req)
					if err != nil {
						fatal("Error queueing "+req.URL, err)
					}
					output.PrintSuccess(fmt.Sprintf("Queued %s %s", job.ShortID(), job.Title))
				}
				return
			}
			if failed := runForeground(s, reqs); failed > 0 {
				output.PrintError(fmt.Sprintf("%d of %d downloads did not complete", failed, len(reqs)))
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Queue the entries on a running daemon instead")
	addResolveFlags(cmd, &rf)
	return cmd
}
