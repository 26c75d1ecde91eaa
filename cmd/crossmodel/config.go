// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/crossmodel/crossmodel/internal/config"
	"github.com/crossmodel/crossmodel/internal/issue"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `crossmodel config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage crossmodel configuration",
		Long: `Manage crossmodel configuration.

The first file found is used:
  - the file given with --config
  - crossmodel.cue in the user config directory
    (Linux: ~/.config/crossmodel, macOS: ~/Library/Application Support/crossmodel,
    Windows: %APPDATA%\crossmodel)
  - crossmodel.cue in the first local workspace folder, else the working
    directory

CROSSMODEL_* environment variables override file values, for example
CROSSMODEL_WATCH_DEBOUNCE=1s.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.Load(cmd.Context(), app.loadOptions())
			if err != nil {
				if rendered, renderErr := issue.Get(issue.ConfigLoadFailedCode).Render("dark"); renderErr == nil {
					fmt.Fprint(app.stderr, rendered)
				}
				return err
			}
			if format := app.outputFormat(); format != config.FormatText {
				return writeStructured(app.stdout, format, cfg)
			}

			source := SubtitleStyle.Render("(using defaults)")
			if path != "" {
				source = path
			}
			fmt.Fprintf(app.stdout, "%s %s\n\n", TitleStyle.Render("Config file:"), source)
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	var (
		dir   string
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefaultConfig(dir, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s Configuration at %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&dir, "dir", "", "directory to write crossmodel.cue to (default is the user config directory)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "Config directory: %s\n", cfgDir)
			fmt.Fprintf(app.stdout, "Config file: %s\n", filepath.Join(cfgDir, config.FileName()))
			return nil
		},
	})

	return cfgCmd
}
