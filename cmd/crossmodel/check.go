// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/crossmodel/crossmodel/internal/config"
	"github.com/crossmodel/crossmodel/internal/issue"
	"github.com/crossmodel/crossmodel/internal/modelserver"
	"github.com/crossmodel/crossmodel/internal/workspace"

	"github.com/spf13/cobra"
)

func newCheckCommand(app *App) *cobra.Command {
	var explain bool
	cmd := &cobra.Command{
		Use:   "check [folder...]",
		Short: "Report problems in the workspace",
		Long: `Build every document of the workspace and report parse errors, unresolved
references, duplicate symbols, invalid descriptors, data model ids declared
more than once and dependency cycles.

The command exits with status 1 when any error is reported. Warnings and
informational diagnostics do not affect the exit status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := app.openWorkspace(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer srv.Dispose()

			report := srv.Check()
			if err := printReport(app, report, explain); err != nil {
				return err
			}
			if n := report.Errors(); n > 0 {
				return problemsFound(n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "describe each reported problem and how to fix it")
	return cmd
}

func printReport(app *App, report *modelserver.Report, explain bool) error {
	if format := app.outputFormat(); format != config.FormatText {
		return writeStructured(app.stdout, format, report)
	}

	if len(report.Diagnostics) == 0 {
		fmt.Fprintln(app.stdout, SuccessStyle.Render("✓")+" No problems found.")
		return nil
	}
	for _, d := range report.Diagnostics {
		printDiagnostic(app.stdout, d)
	}
	fmt.Fprintln(app.stdout)
	fmt.Fprintln(app.stdout, summarize(report.Diagnostics))

	if explain {
		for _, code := range report.Codes() {
			entry := issue.Get(issue.Code(code))
			if entry == nil {
				continue
			}
			rendered, err := entry.Render("dark")
			if err != nil {
				// Fall back to the raw Markdown.
				rendered = entry.Markdown()
			}
			fmt.Fprint(app.stdout, rendered)
		}
	}
	return nil
}

func printDiagnostic(w io.Writer, d workspace.Diagnostic) {
	loc := d.URI
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", d.URI, d.Line, d.Column)
	}
	fmt.Fprintf(w, "%s %s %s %s\n",
		severityStyle(string(d.Severity)).Render(string(d.Severity)+":"),
		d.Message,
		SubtitleStyle.Render("["+d.Code+"]"),
		VerboseStyle.Render(loc),
	)
}

func summarize(diags []workspace.Diagnostic) string {
	counts := make(map[workspace.Severity]int)
	for _, d := range diags {
		counts[d.Severity]++
	}
	return fmt.Sprintf("%s, %s, %s",
		ErrorStyle.Render(fmt.Sprintf("%d error(s)", counts[workspace.SeverityError])),
		WarningStyle.Render(fmt.Sprintf("%d warning(s)", counts[workspace.SeverityWarning])),
		VerboseStyle.Render(fmt.Sprintf("%d info", counts[workspace.SeverityInfo])),
	)
}
