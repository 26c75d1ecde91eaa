// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/crossmodel/crossmodel/internal/config"
	"github.com/crossmodel/crossmodel/internal/scope"
	"github.com/crossmodel/crossmodel/pkg/ast"

	"github.com/spf13/cobra"
)

type completeOutput struct {
	URI        string            `json:"uri" yaml:"uri" toml:"uri"`
	Candidates []scope.Candidate `json:"candidates" yaml:"candidates" toml:"candidates"`
}

func newCompleteCommand(app *App) *cobra.Command {
	var (
		kind      string
		container string
	)
	cmd := &cobra.Command{
		Use:   "complete <file> [prefix]",
		Short: "List the names a document may reference",
		Long: `List every spelling under which a document may reference a symbol: the
simple name for symbols of its own package and, for every visible package,
the name qualified with that package's reference name.

Use --kind attribute together with --container to list the attributes of
the entity a relationship names.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := toURI(args[0])
			if err != nil {
				return err
			}
			filter := scope.Filter{Kind: ast.RefKind(kind), Container: container}
			if len(args) == 2 {
				filter.Prefix = args[1]
			}
			switch filter.Kind {
			case "", ast.RefEntity, ast.RefAttribute:
			default:
				return fmt.Errorf("invalid --kind %q: must be %q or %q", kind, ast.RefEntity, ast.RefAttribute)
			}

			srv, err := app.openWorkspace(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer srv.Dispose()

			if _, ok := srv.Document(target); !ok {
				return fmt.Errorf("%s is not a document of the workspace", target)
			}
			out := completeOutput{URI: target, Candidates: srv.Complete(cmd.Context(), target, filter)}

			if format := app.outputFormat(); format != config.FormatText {
				return writeStructured(app.stdout, format, out)
			}
			for _, c := range out.Candidates {
				origin := c.Symbol.PackageID
				if c.Local {
					origin += " (local)"
				}
				fmt.Fprintf(app.stdout, "%s %s %s\n",
					IDStyle.Render(c.Name),
					SubtitleStyle.Render(string(c.Symbol.Kind)),
					VerboseStyle.Render(origin),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "restrict candidates to entity or attribute symbols")
	cmd.Flags().StringVar(&container, "container", "", "entity reference scoping attribute candidates")
	return cmd
}
