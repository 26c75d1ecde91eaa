// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/crossmodel/crossmodel/internal/config"
	"github.com/crossmodel/crossmodel/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "crossmodel",
		Short: "Inspect and check CrossModel data model workspaces",
		Long: TitleStyle.Render("crossmodel") + SubtitleStyle.Render(" - data model workspaces from the command line") + `

A workspace folder holds data model packages: directories marked by a
datamodel.cm descriptor that declares an id, a version and the packages it
depends on. Entities and relationships may reference any symbol of their
own package or of a package reachable through dependencies.

` + SubtitleStyle.Render("Examples:") + `
  crossmodel packages               List the data models under the working directory
  crossmodel check ./models         Report unresolved references and descriptor problems
  crossmodel complete a.cm Cust     Show the names a document may reference
  crossmodel watch                  Re-check on every file change`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.loadConfig(cmd.Context()); err != nil {
				// Defaults apply when the file cannot be loaded.
				fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, app.verbose))
			}
			if app.format != "" {
				if err := config.OutputFormat(app.format).Validate(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&app.cfgPath, "config", "", "config file (default is <config dir>/crossmodel/crossmodel.cue)")
	flags.StringVarP(&app.format, "output", "o", "", "output format: text, json, yaml or toml")
	flags.StringSliceVarP(&app.folders, "workspace", "w", nil, "workspace folder (repeatable, default is the working directory)")

	root.AddCommand(
		newPackagesCommand(app),
		newCheckCommand(app),
		newResolveCommand(app),
		newCompleteCommand(app),
		newWatchCommand(app),
		newConfigCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the command's status. It is called by
// main.main.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay renders an ActionableError with its suggestions;
// verbose mode adds the full error chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
