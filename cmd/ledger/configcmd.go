package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
	"github.com/vertexads/ledger/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "data",
	Short:   "Read and write stored settings",
	Long: `Read and write the settings stored in the ledger database.

The list settings (categorias, contas, contasInvestimento) are synced with
the remote. lastSyncedAt is maintained by sync and shown read-only.

These are ledger data, not the CLI configuration file; see 'ledger init'
for that.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get [KEY]",
	Short: "Show the settings document or a single stored value",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format); err != nil {
			return err
		}

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				if args[0] == schema.ConfigAuthToken {
					return fmt.Errorf("%s is write-only; use 'ledger token'", schema.ConfigAuthToken)
				}
				raw, err := database.ConfigValue(ctx, args[0])
				if err != nil {
					return err
				}
				if raw == nil {
					return fmt.Errorf("config %s: %w", args[0], db.ErrNotFound)
				}
				fmt.Fprintln(out, *raw)
				return nil
			}

			doc, err := database.GetConfig(ctx)
			if err != nil {
				return err
			}
			if format != formatTable {
				return writeStructured(out, format, doc)
			}

			rows := make([][]string, 0, len(schema.ConfigLists)+1)
			for _, key := range schema.ConfigLists {
				list, _ := doc.List(key)
				rows = append(rows, []string{key, strings.Join(schema.StringList(list), ", ")})
			}
			cursor := ui.RenderMuted("never")
			if s, ok := doc.Str(schema.ConfigLastSyncedAt); ok {
				cursor = s
			}
			rows = append(rows, []string{schema.ConfigLastSyncedAt, cursor})
			fmt.Fprintln(out, ui.Table([]string{"Key", "Value"}, rows))
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY [VALUE]",
	Short: "Store a setting",
	Long: `Store a setting. VALUE is stored verbatim; repeat --item to store a JSON
list instead.

Examples:
  ledger config set categorias --item food --item rent --item salary
  ledger config set theme dark`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		switch key {
		case schema.ConfigAuthToken:
			return fmt.Errorf("use 'ledger token set' for %s", key)
		case schema.ConfigLastSyncedAt:
			return fmt.Errorf("%s is maintained by sync", key)
		}

		items, _ := cmd.Flags().GetStringArray("item")
		var value string
		switch {
		case len(items) > 0 && len(args) == 2:
			return fmt.Errorf("give either VALUE or --item, not both")
		case len(items) > 0:
			encoded, err := schema.EncodeValue(schema.ListOf(items...))
			if err != nil {
				return err
			}
			value = encoded
		case len(args) == 2:
			value = args[1]
		default:
			return fmt.Errorf("missing VALUE")
		}

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			if err := database.SetConfig(ctx, key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Set %s\n", ui.RenderPass("✓"), ui.RenderAccent(key))
			return nil
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:     "token",
	GroupID: "sync",
	Short:   "Manage the remote auth token",
	Long: `Store or clear the token sent as a Bearer header on every sync request.
The token lives in the local database and is never pushed.`,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set TOKEN",
	Short: "Store the auth token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := strings.TrimSpace(args[0])
		if token == "" {
			return fmt.Errorf("token must not be empty; use 'ledger token clear'")
		}
		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			if err := database.SetAuthToken(ctx, &token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Auth token stored\n", ui.RenderPass("✓"))
			return nil
		})
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the auth token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			if err := database.SetAuthToken(ctx, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Auth token cleared\n", ui.RenderPass("✓"))
			return nil
		})
	},
}

func init() {
	configGetCmd.Flags().String("format", formatTable, "output format: table, json or yaml")
	configSetCmd.Flags().StringArray("item", nil, "list item (repeatable)")

	configCmd.AddCommand(configGetCmd, configSetCmd)
	tokenCmd.AddCommand(tokenSetCmd, tokenClearCmd)
	rootCmd.AddCommand(configCmd, tokenCmd)
}
