package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/listsync/engine"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/logger"
)

// RunCmd processes every configured page once and exits.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every configured page once and exit",
	Long: `Run a single sync cycle.

Every configured page is fetched, its query executed, the table rendered
and compared against the current managed region. Pages that differ are
edited; pages that match are left untouched. The exit status is non-zero
when any page failed.`,
	RunE: runOnce,
}

func init() {
	RunCmd.Flags().StringArray("page", nil, "Sync only this page (repeatable, overrides the configured set)")
	RunCmd.Flags().Bool("dry-run", false, "Render and diff but never edit")
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if pages, _ := cmd.Flags().GetStringArray("page"); len(pages) > 0 {
		cfg.Engine.Pages = pages
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		cfg.Engine.DryRun = true
		pterm.Info.Println("Dry run: pages will be diffed but never edited")
	}

	if len(cfg.Engine.Pages) == 0 {
		return errors.New("no pages configured; set engine.pages or pass --page")
	}

	eng, err := engine.New(cfg, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to build engine")
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		pterm.Warning.Println("Interrupted, finishing in-flight pages...")
		cancel()
	}()

	summary := eng.RunOnce(ctx)
	printSummary(summary)

	if !summary.OK() {
		return errors.Newf("%d page(s) failed", summary.Failed)
	}
	return nil
}

func printSummary(s *engine.Summary) {
	pterm.Println()
	data := pterm.TableData{
		{"Processed", fmt.Sprintf("%d", s.Processed)},
		{"Edited", fmt.Sprintf("%d", s.Edited)},
		{"Unchanged", fmt.Sprintf("%d", s.Unchanged)},
		{"Skipped", fmt.Sprintf("%d", s.Skipped)},
		{"Failed", fmt.Sprintf("%d", s.Failed)},
	}
	_ = pterm.DefaultTable.WithData(data).Render()

	if len(s.Failures) > 0 {
		pages := make([]string, 0, len(s.Failures))
		for page := range s.Failures {
			pages = append(pages, page)
		}
		sort.Strings(pages)
		pterm.Println()
		for _, page := range pages {
			pterm.Error.Printf("%s: %v\n", page, s.Failures[page])
		}
	} else if s.Edited > 0 {
		pterm.Success.Printf("%d page(s) updated\n", s.Edited)
	} else {
		pterm.Success.Println("All pages up to date")
	}
}
