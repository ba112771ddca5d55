package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidown/internal/config"
	"github.com/tanq16/vidown/internal/output"
	"github.com/tanq16/vidown/internal/utils"
)

var (
	configPath string
	debug      bool
	workers    int
	socketPath string
)

var VidownVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "vidown",
	Short:   "Vidown is a queueing video and audio downloader built on yt-dlp",
	Version: VidownVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", config.DefaultWorkers, "Number of downloads to run in parallel")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Control socket path")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newCleanCmd())
	for _, c := range newControlCmds() {
		rootCmd.AddCommand(c)
	}
}

// loadSettings reads the config file and applies persistent flag overrides.
func loadSettings(cmd *cobra.Command) config.Settings {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	s, err := config.Load(path)
	if err != nil {
		fatal("Error loading config", err)
	}
	if cmd.Flags().Changed("workers") {
		s.Workers = config.ClampWorkers(workers)
	}
	if socketPath != "" {
		s.Socket = socketPath
	}
	return s
}

func fatal(msg string, err error) {
	output.PrintError(fmt.Sprintf("%s: %v", msg, err))
	os.Exit(1)
}
