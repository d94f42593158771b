package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/ledger/backup"
	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export FILE",
	GroupID: "advanced",
	Short:   "Write a JSONL backup of the whole ledger",
	Long: `Write every transaction, recurring template and synced setting to a JSONL
file, one record per line, in the same document shape sync uses.

The file is written to a temporary path and renamed into place. With
--backup an existing FILE is kept as FILE.backup.<timestamp>.

Example:
  ledger export ledger-2024-03.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetBool("backup")

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			res, err := backup.Export(ctx, database, args[0], backup.ExportOptions{Backup: keep})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Exported to %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
			printBackupResult(out, res)
			if res.BackupCreated != "" {
				fmt.Fprintf(out, "  Previous file: %s\n", res.BackupCreated)
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import FILE",
	GroupID: "advanced",
	Short:   "Load a JSONL backup",
	Long: `Load a file written by 'ledger export'.

The whole file is parsed before anything is written; a malformed line
aborts the import with its line number. Records are upserted, so existing
rows with other ids are kept unless --replace is given.

The sync cursor and the auth token are never imported.

Examples:
  ledger import ledger-2024-03.jsonl --dry-run
  ledger import ledger-2024-03.jsonl --replace --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		replace, _ := cmd.Flags().GetBool("replace")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		yes, _ := cmd.Flags().GetBool("yes")

		if replace && !dryRun && !yes {
			ok, err := ui.Confirm("Replace local data with "+args[0]+"?",
				"Local transactions and recurring templates not in the file will be deleted.")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("Aborted."))
				return nil
			}
		}

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			res, err := backup.Import(ctx, database, args[0], backup.ImportOptions{
				Replace: replace,
				DryRun:  dryRun,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%s Dry run, nothing written\n", ui.RenderWarn("!"))
			} else {
				fmt.Fprintf(out, "%s Imported %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
			}
			printBackupResult(out, res)
			return nil
		})
	},
}

func printBackupResult(w io.Writer, res *backup.Result) {
	fmt.Fprintf(w, "  Transactions: %d\n", res.Transactions)
	fmt.Fprintf(w, "  Recurring:    %d\n", res.Recurring)
	fmt.Fprintf(w, "  Config keys:  %d\n", res.ConfigKeys)
	if res.Skipped > 0 {
		fmt.Fprintf(w, "  %s\n", ui.RenderWarn(fmt.Sprintf("Skipped:      %d", res.Skipped)))
	}
}

func init() {
	exportCmd.Flags().Bool("backup", false, "keep an existing file as FILE.backup.<timestamp>")

	importCmd.Flags().Bool("replace", false, "clear transactions and templates first")
	importCmd.Flags().Bool("dry-run", false, "parse and count without writing")
	importCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation with --replace")

	rootCmd.AddCommand(exportCmd, importCmd)
}
