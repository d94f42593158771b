package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vertexads/ledger/internal/config"
	"github.com/vertexads/ledger/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "advanced",
	Short:   "Write a default config file and create the database",
	Long: `Write ledger.toml with default values and create the ledger database.

The config goes to --config when given, to the user config directory with
--global, and to ./ledger.toml otherwise. An existing config file is left
untouched. Set api_url in it (or TAURI_APP_CLOUD_API_URL) to enable sync.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		out := cmd.OutOrStdout()

		path := configPath
		switch {
		case path != "":
		case global:
			dir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("failed to locate user config directory: %w", err)
			}
			path = filepath.Join(dir, "ledger", config.FileName)
		default:
			path = config.FileName
		}

		err := config.WriteDefault(path)
		switch {
		case err == nil:
			fmt.Fprintf(out, "%s Wrote %s\n", ui.RenderPass("✓"), ui.RenderAccent(path))
		case errors.Is(err, fs.ErrExist):
			fmt.Fprintf(out, "%s %s already exists, left unchanged\n", ui.RenderWarn("!"), path)
		default:
			return err
		}

		database, err := openStore()
		if err != nil {
			return err
		}
		if err := database.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Database ready at %s\n", ui.RenderPass("✓"), ui.RenderAccent(cfg.DBPath))
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("global", false, "write the config to the user config directory")
	rootCmd.AddCommand(initCmd)
}
