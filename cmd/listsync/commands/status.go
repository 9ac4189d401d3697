package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/logger"
	"github.com/teranos/listsync/store"
)

// StatusCmd shows per-page bookkeeping from the last runs.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-page bookkeeping from the last runs",
	Long: `Show the last recorded outcome for every page the bot has processed.

Reads the bookkeeping database configured at store.path, so it reflects
runs of both "listsync run" and the daemon.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return errors.New("bookkeeping disabled; set store.path to use this command")
	}

	st, err := store.Open(cfg.Store.Path, logger.Logger)
	if err != nil {
		return err
	}
	defer st.Close()

	statuses, err := st.PageStatuses()
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}

	data := pterm.TableData{{"Page", "Status", "Last run", "Edited", "Runs", "Failures", "Message"}}
	for _, ps := range statuses {
		edited := ""
		if ps.Edited {
			edited = "yes"
		}
		data = append(data, []string{
			ps.Page,
			ps.Status,
			ps.LastRun.Format("2006-01-02 15:04:05"),
			edited,
			fmt.Sprintf("%d", ps.RunCount),
			fmt.Sprintf("%d", ps.FailCount),
			ps.Message,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
