// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/crossmodel/crossmodel/internal/logging"
	"github.com/crossmodel/crossmodel/internal/watch"

	"github.com/spf13/cobra"
)

func newWatchCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [folder]",
		Short: "Re-check the workspace whenever a document changes",
		Long: `Check the workspace once, then watch the folder for changes and rebuild
only the documents affected by each batch of edits. Editing a data model
descriptor rebuilds every document of the packages that can see it.

Press Ctrl+C to stop.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			srv, err := app.openWorkspace(cmd.Context(), []string{root})
			if err != nil {
				return err
			}
			defer srv.Dispose()

			if err := printReport(app, srv.Check(), false); err != nil {
				return err
			}

			cfg := app.settings()
			w, err := watch.New(watch.Config{
				Root:     root,
				Match:    srv.Accepts,
				Ignore:   cfg.Scan.Ignore,
				Debounce: cfg.Watch.Debounce,
				Logger:   logging.With(app.logger(), "watch"),
				OnChange: func(ctx context.Context, batch watch.Batch) error {
					res, err := srv.Update(ctx, batch.Changed, batch.Deleted)
					if err != nil {
						fmt.Fprintf(app.stderr, "%s Rebuild failed: %v\n", WarningStyle.Render("!"), err)
						return nil
					}
					fmt.Fprintf(app.stdout, "\n%s Rebuilt %d document(s) after %d change(s)\n",
						IDStyle.Render("→"), len(res.Rebuilt), len(batch.Changed)+len(batch.Deleted))
					return printReport(app, srv.Check(), false)
				},
			})
			if err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			fmt.Fprintf(app.stdout, "\n%s Watching %s for changes (Ctrl+C to stop)...\n", IDStyle.Render("→"), w.Root())
			return w.Run(cmd.Context())
		},
	}
}
