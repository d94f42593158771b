package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/config"
	"github.com/vertexads/ledger/internal/ledger/bridge"
	"github.com/vertexads/ledger/internal/ledger/daemon"
	"github.com/vertexads/ledger/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the bridge and background sync for a desktop shell",
	Long: `Run the local bridge a desktop shell talks to, plus background sync.

The bridge listens on bridge.addr (default 127.0.0.1:7420):
  POST /invoke/{command}   run a command with a JSON argument object
  GET  /ws                 WebSocket event feed
  GET  /health             store status and row counts

WebSocket messages:
  hello          sent on connect
  data_changed   a command changed transactions, templates or settings
  sync_complete  a pull, push or restore finished
  sync_failed    a sync flow failed; data.error has the message

When daemon.pull_interval is set, the remote is pulled on that interval.
Edits to the config file are picked up without a restart (api_url only).

On SIGINT or SIGTERM the full local state is pushed once, waiting at most
daemon.shutdown_grace before exiting.

Example usage:
  ledger serve
  ledger serve --addr 127.0.0.1:0 --pull-interval 5m`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Bridge.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("pull-interval") {
			cfg.Daemon.PullInterval, _ = flags.GetDuration("pull-interval")
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		engine := newEngine(database)

		server := bridge.NewServer(&bridge.Config{
			Addr:   cfg.Bridge.Addr,
			Logger: logger,
		}, database, engine)

		dcfg := daemon.DefaultConfig()
		dcfg.PullInterval = cfg.Daemon.PullInterval
		dcfg.ConfigFile = cfg.File
		dcfg.Reload = reloadAPIURL
		dcfg.OnSync = server.Events().OnSync
		dcfg.Logger = logger

		d, err := daemon.New(engine, dcfg)
		if err != nil {
			_ = database.Close()
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		if err := server.Start(); err != nil {
			_ = database.Close()
			return err
		}

		out := cmd.OutOrStdout()
		addr := server.GetAddr()
		fmt.Fprintf(out, "Bridge listening on %s\n", ui.RenderAccent("http://"+addr))
		fmt.Fprintf(out, "WebSocket endpoint: ws://%s/ws\n", addr)
		if engine.BaseURL() == "" {
			fmt.Fprintf(out, "%s No api_url configured; running local-only\n", ui.RenderWarn("!"))
		}
		fmt.Fprintln(out, "\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			logger.WithError(err).Error("Daemon error")
		}

		fmt.Fprintln(out, "\nShutting down...")
		if err := server.Stop(); err != nil {
			logger.WithError(err).Warn("Bridge shutdown error")
		}

		done := daemon.PushOnShutdown(engine, logger)
		if !daemon.WaitGrace(done, cfg.Daemon.ShutdownGrace) {
			// The push still holds the store; Close would block on it.
			logger.WithField("grace", cfg.Daemon.ShutdownGrace.String()).Warn("Push on shutdown did not finish in time")
			return nil
		}

		if err := database.Close(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Stopped")
		return nil
	},
}

// reloadAPIURL re-reads the config file the process started with.
func reloadAPIURL() (string, error) {
	fresh, err := config.Load(cfg.File)
	if err != nil {
		return "", err
	}
	return fresh.APIURL, nil
}

func init() {
	serveCmd.Flags().String("addr", "", "bridge listen address (overrides bridge.addr)")
	serveCmd.Flags().Duration("pull-interval", 0, "periodic pull interval, 0 disables (overrides daemon.pull_interval)")
	rootCmd.AddCommand(serveCmd)
}
