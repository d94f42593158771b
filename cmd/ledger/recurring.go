package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
	"github.com/vertexads/ledger/internal/ui"
)

var recurringCmd = &cobra.Command{
	Use:     "recurring",
	Aliases: []string{"rec"},
	GroupID: "data",
	Short:   "Manage recurring payment templates",
}

var recurringListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recurring templates by title",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format); err != nil {
			return err
		}

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			docs, err := database.ListRecurring(ctx)
			if err != nil {
				return err
			}
			return printRecurring(cmd.OutOrStdout(), format, docs)
		})
	},
}

func printRecurring(w io.Writer, format string, docs []schema.Document) error {
	if format != formatTable {
		return writeStructured(w, format, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("No recurring templates."))
		return nil
	}

	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		active := cell(doc, "ativo")
		if a, _ := doc.Flag("ativo"); !a {
			active = ui.RenderMuted(active)
		}
		rows = append(rows, []string{
			cell(doc, "id"),
			cell(doc, "titulo"),
			cell(doc, "valor"),
			cell(doc, "tipo"),
			cell(doc, "diaVencimento"),
			cell(doc, "categoria"),
			cell(doc, "conta"),
			active,
		})
	}
	fmt.Fprintln(w, ui.Table([]string{"ID", "Title", "Amount", "Type", "Due day", "Category", "Account", "Active"}, rows))
	return nil
}

var recurringFlags = []struct {
	flag, field, usage string
}{
	{"title", "titulo", "title"},
	{"type", "tipo", "entrada or saida"},
	{"category", "categoria", "category"},
	{"account", "conta", "account"},
	{"method", "metodoPagamento", "payment method"},
}

var recurringPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or update a recurring template",
	Long: `Create a recurring template, or update one when --id names an existing
template. On update only the flags given are changed.

Examples:
  ledger recurring put --title Rent --amount 1500 --type saida --due 5
  ledger recurring put --id 0190c3e2-... --active=false`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		id, _ := flags.GetString("id")

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			doc := schema.Document{}
			existing := false
			if id != "" {
				current, err := findRecurring(ctx, database, id)
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

			if flags.Changed("amount") {
				raw, _ := flags.GetString("amount")
				amount, err := parseAmount(raw)
				if err != nil {
					return err
				}
				doc["valor"] = schema.Float(amount)
			} else if !existing {
				return fmt.Errorf("--amount is required for new templates")
			}
			if flags.Changed("due") {
				day, _ := flags.GetInt("due")
				if day < 1 || day > 31 {
					return fmt.Errorf("invalid due day %d (want 1-31)", day)
				}
				doc["diaVencimento"] = schema.Int(day)
			}
			if flags.Changed("active") {
				active, _ := flags.GetBool("active")
				doc["ativo"] = schema.Bool(active)
			}
			for _, f := range recurringFlags {
				if flags.Changed(f.flag) {
					v, _ := flags.GetString(f.flag)
					doc[f.field] = optionalString(v)
				}
			}

			if err := database.UpsertRecurring(ctx, doc); err != nil {
				return err
			}
			verb := "Created"
			if existing {
				verb = "Updated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s recurring template %s\n", ui.RenderPass("✓"), verb, ui.RenderAccent(id))
			return nil
		})
	},
}

// findRecurring returns the template with id or db.ErrNotFound.
func findRecurring(ctx context.Context, database *db.DB, id string) (schema.Document, error) {
	docs, err := database.ListRecurring(ctx)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if got, _ := doc.Str("id"); got == id {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("recurring template %s: %w", id, db.ErrNotFound)
}

var recurringDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a recurring template",
	Long: `Delete a recurring template. Transactions that reference it keep their
recorrenciaId.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			if err := database.DeleteRecurring(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted recurring template %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
			return nil
		})
	},
}

func init() {
	recurringListCmd.Flags().String("format", formatTable, "output format: table, json or yaml")

	recurringPutCmd.Flags().String("id", "", "template id (update when it exists)")
	recurringPutCmd.Flags().String("amount", "", "amount")
	recurringPutCmd.Flags().Int("due", 0, "due day of month (1-31)")
	recurringPutCmd.Flags().Bool("active", true, "whether the template is active")
	for _, f := range recurringFlags {
		recurringPutCmd.Flags().String(f.flag, "", f.usage)
	}

	recurringCmd.AddCommand(recurringListCmd, recurringPutCmd, recurringDeleteCmd)
	rootCmd.AddCommand(recurringCmd)
}

