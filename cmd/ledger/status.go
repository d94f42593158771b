package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
	"github.com/vertexads/ledger/internal/ui"
)

// statusReport is the structured form of 'ledger status'.
type statusReport struct {
	Database     string    `json:"database"`
	ConfigFile   string    `json:"configFile,omitempty"`
	Remote       string    `json:"remote,omitempty"`
	AuthToken    bool      `json:"authToken"`
	LastSyncedAt string    `json:"lastSyncedAt,omitempty"`
	Counts       db.Counts `json:"counts"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "advanced",
	Short:   "Show store location, row counts and sync state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := validateFormat(format); err != nil {
			return err
		}

		return withStore(cmd.Context(), func(ctx context.Context, database *db.DB) error {
			report := statusReport{
				Database:   database.Path(),
				ConfigFile: cfg.File,
				Remote:     cfg.APIURL,
			}
			err := database.Do(ctx, func(s *db.Session) error {
				var err error
				if report.Counts, err = s.Counts(ctx); err != nil {
					return err
				}
				token, err := s.AuthToken(ctx)
				if err != nil {
					return err
				}
				report.AuthToken = token != ""
				cursor, err := s.ConfigValue(ctx, schema.ConfigLastSyncedAt)
				if err != nil {
					return err
				}
				if cursor != nil {
					report.LastSyncedAt = *cursor
				}
				return nil
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format != formatTable {
				return writeStructured(out, format, report)
			}

			fmt.Fprintf(out, "%s\n\n", ui.RenderAccent("Ledger status"))
			fmt.Fprintf(out, "  Database:     %s\n", report.Database)
			if report.ConfigFile != "" {
				fmt.Fprintf(out, "  Config file:  %s\n", report.ConfigFile)
			} else {
				fmt.Fprintf(out, "  Config file:  %s\n", ui.RenderMuted("none (defaults)"))
			}
			if report.Remote != "" {
				fmt.Fprintf(out, "  Remote:       %s\n", report.Remote)
			} else {
				fmt.Fprintf(out, "  Remote:       %s\n", ui.RenderWarn("not configured (local-only)"))
			}
			token := ui.RenderMuted("not set")
			if report.AuthToken {
				token = ui.RenderPass("set")
			}
			fmt.Fprintf(out, "  Auth token:   %s\n", token)
			fmt.Fprintf(out, "  Last synced:  %s\n", describeCursor(report.LastSyncedAt))
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Transactions: %d (%d trashed)\n", report.Counts.Transactions, report.Counts.Trashed)
			fmt.Fprintf(out, "  Recurring:    %d\n", report.Counts.Recurring)
			fmt.Fprintf(out, "  Config keys:  %d\n", report.Counts.ConfigKeys)
			return nil
		})
	},
}

// describeCursor renders an epoch-seconds cursor as local time.
func describeCursor(cursor string) string {
	if cursor == "" {
		return ui.RenderMuted("never")
	}
	var secs int64
	if _, err := fmt.Sscan(cursor, &secs); err != nil {
		return cursor
	}
	return fmt.Sprintf("%s (%s)", time.Unix(secs, 0).Local().Format(time.DateTime), cursor)
}

func init() {
	statusCmd.Flags().String("format", formatTable, "output format: table, json or yaml")
	rootCmd.AddCommand(statusCmd)
}
