package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
	"github.com/vertexads/ledger/internal/ui"
)

var txCmd = &cobra.Command{
	Use:     "tx",
	GroupID: "data",
	Short:   "List and edit transactions",
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions, newest first",
	Long: `List transactions ordered by date, newest first.

Trashed transactions are hidden unless --all is given.

Examples:
  ledger tx list
  ledger tx list --all --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		all, _ := cmd.Flags().GetBool("all")
		if err := validateFormat(format); err != nil {
			return err
		}

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			docs, err := database.ListTransactions(ctx)
			if err != nil {
				return err
			}
			if !all {
				docs = visibleTransactions(docs)
			}
			return printTransactions(cmd.OutOrStdout(), format, docs)
		})
	},
}

func visibleTransactions(docs []schema.Document) []schema.Document {
	out := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		if deleted, _ := doc.Flag("deleted"); deleted {
			continue
		}
		out = append(out, doc)
	}
	return out
}

func printTransactions(w io.Writer, format string, docs []schema.Document) error {
	if format != formatTable {
		return writeStructured(w, format, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("No transactions."))
		return nil
	}

	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		value, _ := doc.Number("value")
		amount := ui.RenderSigned(money(value).StringFixed(2), value < 0)
		if deleted, _ := doc.Flag("deleted"); deleted {
			amount = ui.RenderMuted(money(value).StringFixed(2) + " (trashed)")
		}
		rows = append(rows, []string{
			cell(doc, "id"),
			cell(doc, "date"),
			cell(doc, "description"),
			cell(doc, "type"),
			amount,
			cell(doc, "category"),
			cell(doc, "account"),
		})
	}
	fmt.Fprintln(w, ui.Table([]string{"ID", "Date", "Description", "Type", "Value", "Category", "Account"}, rows))
	return nil
}

// txFlags maps CLI flags to document fields for tx put.
var txFlags = []struct {
	flag, field, usage string
}{
	{"description", "description", "description"},
	{"client", "client", "client"},
	{"contexto", "contexto", "context (e.g. personal, business)"},
	{"contraparte", "contraparte", "counterparty"},
	{"category", "category", "category"},
	{"account", "account", "account"},
	{"method", "metodoPagamento", "payment method"},
	{"status", "status", "status"},
	{"recurring", "recorrenciaId", "id of the recurring template this belongs to"},
}

var txPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update a transaction",
	Long: `Create a transaction, or update one when --id names an existing row.

On update only the flags given are changed. New transactions get a
time-ordered UUID unless --id is set.

--date accepts YYYY-MM-DD or natural language ("yesterday", "last monday");
the default is today. --value is the signed amount.

Examples:
  ledger tx put --value -42.50 --description "Groceries" --category food
  ledger tx put --type entrada --value 3000 --date "last friday" --account main
  ledger tx put --id 0190c3e2-... --status paid`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		id, _ := flags.GetString("id")

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			doc := schema.Document{}
			existing := false
			if id != "" {
				current, err := database.GetTransaction(ctx, id)
				switch {
				case err == nil:
					doc, existing = current, true
				case !errors.Is(err, db.ErrNotFound):
					return err
				}
			} else {
				v7, err := uuid.NewV7()
				if err != nil {
					return fmt.Errorf("failed to generate id: %w", err)
				}
				id = v7.String()
			}
			doc["id"] = schema.String(id)

			if flags.Changed("date") || !existing {
				raw, _ := flags.GetString("date")
				date, err := parseDate(raw, time.Now())
				if err != nil {
					return err
				}
				doc["date"] = schema.String(date)
			}
			if flags.Changed("value") || !existing {
				raw, _ := flags.GetString("value")
				if raw == "" {
					return fmt.Errorf("--value is required for new transactions")
				}
				value, err := parseAmount(raw)
				if err != nil {
					return err
				}
				doc["value"] = schema.Float(value)
			}
			if flags.Changed("type") || !existing {
				typ, _ := flags.GetString("type")
				if typ != schema.TypeInflow && typ != schema.TypeOutflow {
					return fmt.Errorf("invalid type %q (want %s or %s)", typ, schema.TypeInflow, schema.TypeOutflow)
				}
				doc["type"] = schema.String(typ)
			}
			for _, f := range txFlags {
				if flags.Changed(f.flag) {
					v, _ := flags.GetString(f.flag)
					doc[f.field] = optionalString(v)
				}
			}

			if err := database.UpsertTransaction(ctx, doc); err != nil {
				return err
			}
			verb := "Created"
			if existing {
				verb = "Updated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s transaction %s\n", ui.RenderPass("✓"), verb, ui.RenderAccent(id))
			return nil
		})
	},
}

// optionalString maps an empty flag value to null.
func optionalString(s string) schema.Value {
	if s == "" {
		return schema.Null{}
	}
	return schema.String(s)
}

var txImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Upsert transactions from a JSON array",
	Long: `Upsert every document of a JSON array of transactions, in order.

Documents that cannot be stored are skipped and counted. Use - to read
from stdin.

Example:
  ledger tx import exported.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := readDocumentArray(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			res, err := database.UpsertTransactions(ctx, docs)
			if err != nil {
				return err
			}
			printBatch(cmd.OutOrStdout(), "transactions", res)
			return nil
		})
	},
}

// readDocumentArray reads a JSON array of documents from path, or from
// stdin when path is "-".
func readDocumentArray(stdin io.Reader, path string) ([]schema.Value, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304 - user-specified file
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	v, err := schema.ParseValue(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	list, ok := v.(schema.List)
	if !ok {
		return nil, fmt.Errorf("%s: expected a JSON array, got %s", path, v.Kind())
	}
	return []schema.Value(list), nil
}

func printBatch(w io.Writer, what string, res db.BatchResult) {
	fmt.Fprintf(w, "%s Stored %d %s", ui.RenderPass("✓"), res.Applied, what)
	if res.Skipped > 0 {
		fmt.Fprintf(w, ", %s", ui.RenderWarn(fmt.Sprintf("skipped %d", res.Skipped)))
	}
	fmt.Fprintln(w)
}

var txTrashCmd = &cobra.Command{
	Use:   "trash ID",
	Short: "Move a transaction to the trash",
	Long: `Mark a transaction deleted. The row is kept and still syncs, so other
devices see the deletion. Use 'ledger tx delete' to remove it for good.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			if err := database.TrashTransaction(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Trashed transaction %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
			return nil
		})
	},
}

var txDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Permanently delete a transaction",
	Long: `Remove a transaction row from the local store.

The deletion is local: the next pull brings the row back if the remote
still has it. Prefer 'ledger tx trash' for synced data.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := ui.Confirm(fmt.Sprintf("Delete transaction %s?", args[0]), "This cannot be undone.")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("Aborted."))
				return nil
			}
		}

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			if err := database.DeleteTransaction(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted transaction %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
			return nil
		})
	},
}

func init() {
	txListCmd.Flags().Bool("all", false, "include trashed transactions")
	txListCmd.Flags().String("format", formatTable, "output format: table, json or yaml")

	txPutCmd.Flags().String("id", "", "transaction id (update when it exists)")
	txPutCmd.Flags().String("date", "", "date, YYYY-MM-DD or natural language (default today)")
	txPutCmd.Flags().String("value", "", "signed amount")
	txPutCmd.Flags().String("type", schema.TypeOutflow, "entrada or saida")
	for _, f := range txFlags {
		txPutCmd.Flags().String(f.flag, "", f.usage)
	}

	txDeleteCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	txCmd.AddCommand(txListCmd, txPutCmd, txImportCmd, txTrashCmd, txDeleteCmd)
	rootCmd.AddCommand(txCmd)
}
