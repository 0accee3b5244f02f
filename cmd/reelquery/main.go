// Package main provides the reelquery binary: a one-shot answer CLI and
// the HTTP answer server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reelquery/reelquery/internal/config"
	"github.com/reelquery/reelquery/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reelquery",
		Short: "reelquery - constraint based query planner for movie and TV discovery",
		Long: `reelquery turns extracted entities into a constraint tree, picks the
discovery endpoint that covers it best, executes the call and relaxes
constraints tier by tier until the answer is useful.

Run 'reelquery serve' to start the HTTP server.
Run 'reelquery answer request.json' to answer a single request.
Run 'reelquery mcp' to expose the planner to an assistant host.`,
		SilenceUsage: true,
	}

	// Global flags
	root.PersistentFlags().StringP("config", "c", "", "config file path")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	root.AddCommand(
		answerCmd(),
		planCmd(),
		serveCmd(),
		catalogCmd(),
		journalCmd(),
		mcpCmd(),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reelquery %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// globalConfig reads the persistent flags and loads the config.
func globalConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	return loadConfig(path, verbose)
}
