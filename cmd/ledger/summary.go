package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
	"github.com/vertexads/ledger/internal/ui"
)

// Summary totals transactions. Amounts are decimal strings with two places.
type Summary struct {
	Month   string `json:"month,omitempty"`
	Count   int    `json:"count"`
	Inflow  string `json:"inflow"`
	Outflow string `json:"outflow"`
	Balance string `json:"balance"`
}

// summarize totals the non-deleted transactions in docs whose date starts
// with month (all when month is empty). Inflow and outflow are split by
// type and reported as magnitudes; balance is inflow minus outflow.
func summarize(docs []schema.Document, month string) Summary {
	inflow, outflow := decimal.Zero, decimal.Zero
	count := 0
	for _, doc := range docs {
		if deleted, _ := doc.Flag("deleted"); deleted {
			continue
		}
		if month != "" {
			date, _ := doc.Str("date")
			if !strings.HasPrefix(date, month) {
				continue
			}
		}

		tx, err := schema.TransactionFromDocument(doc)
		if err != nil {
			continue
		}
		amount := money(tx.Value).Abs()
		if tx.IsInflow() {
			inflow = inflow.Add(amount)
		} else {
			outflow = outflow.Add(amount)
		}
		count++
	}

	return Summary{
		Month:   month,
		Count:   count,
		Inflow:  inflow.StringFixed(2),
		Outflow: outflow.StringFixed(2),
		Balance: inflow.Sub(outflow).StringFixed(2),
	}
}

var summaryCmd = &cobra.Command{
	Use:     "summary",
	GroupID: "data",
	Short:   "Show inflow, outflow and balance totals",
	Long: `Total the transactions that are not in the trash.

Inflow counts transactions of type entrada, outflow everything else; both
are summed as magnitudes, so the sign of the stored value does not matter.

Examples:
  ledger summary
  ledger summary --month 2024-03`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format); err != nil {
			return err
		}
		month, _ := cmd.Flags().GetString("month")
		if month != "" {
			var err error
			if month, err = parseMonth(month); err != nil {
				return err
			}
		}

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			docs, err := database.ListTransactions(ctx)
			if err != nil {
				return err
			}
			sum := summarize(docs, month)

			out := cmd.OutOrStdout()
			if format != formatTable {
				return writeStructured(out, format, sum)
			}

			title := "All time"
			if month != "" {
				title = month
			}
			balance, _ := decimal.NewFromString(sum.Balance)
			fmt.Fprintln(out, ui.Table(
				[]string{title, "Amount"},
				[][]string{
					{"Inflow", ui.RenderPass(sum.Inflow)},
					{"Outflow", ui.RenderFail(sum.Outflow)},
					{"Balance", ui.RenderSigned(sum.Balance, balance.IsNegative())},
				},
			))
			fmt.Fprintln(out, ui.RenderMuted(fmt.Sprintf("%d transactions", sum.Count)))
			return nil
		})
	},
}

func init() {
	summaryCmd.Flags().String("month", "", "restrict to a month (YYYY-MM)")
	summaryCmd.Flags().String("format", formatTable, "output format: table, json or yaml")
	rootCmd.AddCommand(summaryCmd)
}
