package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/engine"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/logger"
	"github.com/teranos/listsync/server"
)

// DaemonCmd runs continuous sync cycles until interrupted.
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run continuous sync cycles with the status server",
	Long: `Run listsync as a long-lived daemon.

Full cycles over the configured page set repeat on engine.interval_seconds.
When server.listen_addr is configured a status endpoint and a websocket
feed of job transitions are served alongside. When started with --config,
the file is watched and page-set changes take effect on the next cycle
without a restart.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Engine.Pages) == 0 {
		return errors.New("no pages configured; set engine.pages")
	}

	eng, err := engine.New(cfg, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to build engine")
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErr := make(chan error, 1)
	if cfg.Server.ListenAddr != "" {
		srv := server.New(cfg.Server, eng, logger.Logger)
		eng.SetBroadcaster(srv)
		go func() {
			serverErr <- srv.Start(ctx)
		}()
		pterm.Info.Printf("Status server listening on %s\n", cfg.Server.ListenAddr)
	}

	// Page-set changes in the config file apply without a restart
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		watcher, err := config.NewWatcher(path, logger.Logger)
		if err != nil {
			return errors.Wrapf(err, "failed to watch config file %s", path)
		}
		watcher.OnReload(func(next *config.Config) error {
			eng.SetPages(next.Engine.Pages)
			return nil
		})
		watcher.Start()
		defer watcher.Stop()
	}

	interval := time.Duration(cfg.Engine.IntervalSeconds) * time.Second
	pterm.Info.Printf("Daemon started: %d page(s), cycle every %v\n", len(cfg.Engine.Pages), interval)

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		cancel()
		<-runErr
		return errors.Wrap(err, "status server failed")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("\nShutting down, finishing in-flight pages...")
		cancel()
		<-runErr
		pterm.Success.Println("Daemon stopped cleanly")
		return nil
	}
}
