// Command ledger manages a local-first finance ledger and syncs it with a
// remote service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/config"
	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/sync"
	"github.com/vertexads/ledger/internal/logging"
	"github.com/vertexads/ledger/internal/ui"
)

var (
	configPath string
	dbPathFlag string
	verbose    bool

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Local-first finance ledger with cloud sync",
	Long: `ledger keeps transactions, recurring payments and settings in a local
SQLite file and reconciles them with a remote service over HTTP.

Everything works offline. When api_url is configured, 'ledger sync pull'
fetches remote changes, 'ledger sync push' uploads the full local state and
'ledger serve' runs the bridge a desktop shell talks to.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPathFlag != "" {
			cfg.DBPath = dbPathFlag
		}

		logger, err = logging.Setup(cfg.Log)
		if err != nil {
			return err
		}
		// Interactive commands only surface warnings unless asked.
		if !verbose && cmd.Name() != "serve" && cfg.Log.File == "" && logger.Level > logrus.WarnLevel {
			logger.SetLevel(logrus.WarnLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Ledger data:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Setup and maintenance:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./ledger.toml or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database file (overrides db_path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of warnings only")
}

// openStore opens the configured database and creates missing tables.
func openStore() (*db.DB, error) {
	database, err := db.Open(cfg.DBPath, db.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := database.InitSchemaContext(context.Background()); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// withStore opens the store for the duration of fn.
func withStore(ctx context.Context, fn func(ctx context.Context, database *db.DB) error) error {
	database, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()
	return fn(ctx, database)
}

// newEngine builds a sync engine for database using the configured remote.
func newEngine(database *db.DB) *sync.Engine {
	return sync.New(database, sync.Options{
		BaseURL: cfg.APIURL,
		Logger:  logger,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
