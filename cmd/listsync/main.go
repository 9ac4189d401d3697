package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teranos/listsync/cmd/listsync/commands"
	"github.com/teranos/listsync/logger"
)

var rootCmd = &cobra.Command{
	Use:   "listsync",
	Short: "listsync - keep wiki list pages in sync with query results",
	Long: `listsync - list synchronization bot for wikis.

listsync runs SPARQL queries, renders the results as wikitext tables and
writes them into the managed region of configured wiki pages. Pages whose
rendered region already matches are left untouched.

Available commands:
  run     - Process every configured page once and exit
  daemon  - Run continuous sync cycles with the status server
  status  - Show per-page bookkeeping from the last runs
  version - Show version information

Examples:
  listsync run                 # One full cycle over the configured pages
  listsync run --page "List of towers"
  listsync daemon              # Continuous cycles until interrupted
  listsync status              # Last outcome per page`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (overrides the layered lookup)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
