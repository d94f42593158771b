package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/ledger/db"
	ledgersync "github.com/vertexads/ledger/internal/ledger/sync"
	"github.com/vertexads/ledger/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Reconcile the local ledger with the remote",
	Long: `Reconcile the local ledger with the remote service at api_url.

  pull     fetch changes since the last sync and apply them locally
  push     upload the full local state
  restore  replace local transactions and templates with the remote copy

pull and push do nothing when api_url is empty.`,
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch and apply remote changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncOp(cmd, (*ledgersync.Engine).Pull)
	},
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload the full local state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSyncOp(cmd, (*ledgersync.Engine).Push)
	},
}

var syncRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace local data with the remote copy",
	Long: `Fetch the complete remote state, delete every local transaction and
recurring template, and apply the remote documents.

Local changes that were never pushed are lost. Asks for confirmation
unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.APIURL == "" {
			return ledgersync.ErrRemoteNotConfigured
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := ui.Confirm("Restore from "+cfg.APIURL+"?",
				"Local transactions and recurring templates will be replaced.")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("Aborted."))
				return nil
			}
		}
		return runSyncOp(cmd, (*ledgersync.Engine).Restore)
	},
}

func runSyncOp(cmd *cobra.Command, op func(*ledgersync.Engine, context.Context) (ledgersync.Result, error)) error {
	return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
		res, err := op(newEngine(database), ctx)
		if err != nil {
			return err
		}
		printSyncResult(cmd.OutOrStdout(), res)
		return nil
	})
}

func printSyncResult(w io.Writer, res ledgersync.Result) {
	if res.Cursor == "" {
		fmt.Fprintf(w, "%s Sync %s skipped: no remote configured\n", ui.RenderWarn("!"), res.Op)
		return
	}

	fmt.Fprintf(w, "%s Sync %s complete\n", ui.RenderPass("✓"), res.Op)
	fmt.Fprintf(w, "  Transactions: %d\n", res.Transactions.Applied)
	fmt.Fprintf(w, "  Recurring:    %d\n", res.Recurring.Applied)
	fmt.Fprintf(w, "  Config keys:  %d\n", res.ConfigKeys)
	if n := res.Skipped(); n > 0 {
		fmt.Fprintf(w, "  %s\n", ui.RenderWarn(fmt.Sprintf("Skipped:      %d (see log)", n)))
	}
	fmt.Fprintf(w, "  Cursor:       %s\n", ui.RenderMuted(res.Cursor))
}

func init() {
	syncRestoreCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	syncCmd.AddCommand(syncPullCmd, syncPushCmd, syncRestoreCmd)
	rootCmd.AddCommand(syncCmd)
}
