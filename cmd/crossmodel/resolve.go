// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/crossmodel/crossmodel/internal/config"
	"github.com/crossmodel/crossmodel/internal/workspace"
	"github.com/crossmodel/crossmodel/pkg/datamodel"

	"github.com/spf13/cobra"
)

type (
	linkEntry struct {
		Property string `json:"property" yaml:"property" toml:"property"`
		Text     string `json:"text" yaml:"text" toml:"text"`
		Kind     string `json:"kind" yaml:"kind" toml:"kind"`
		Line     int    `json:"line,omitempty" yaml:"line,omitempty" toml:"line,omitempty"`
		Name     string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
		Target   string `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
	}

	resolveOutput struct {
		URI         string                 `json:"uri" yaml:"uri" toml:"uri"`
		Package     string                 `json:"package" yaml:"package" toml:"package"`
		Descriptor  string                 `json:"descriptor,omitempty" yaml:"descriptor,omitempty" toml:"descriptor,omitempty"`
		Visible     []string               `json:"visible" yaml:"visible" toml:"visible"`
		Links       []linkEntry            `json:"links,omitempty" yaml:"links,omitempty" toml:"links,omitempty"`
		Diagnostics []workspace.Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty" toml:"diagnostics,omitempty"`
	}
)

func newResolveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <file>",
		Short: "Show the data model owning a document and how its references resolve",
		Long: `Show which data model a document belongs to, which packages its
references may reach, and the target of every reference it contains.

The workspace is taken from --workspace, or the working directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := toURI(args[0])
			if err != nil {
				return err
			}
			srv, err := app.openWorkspace(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer srv.Dispose()

			out := resolveOutput{URI: target, Package: srv.DataModelIDByURI(target)}
			if info, ok := srv.DataModelInfo(target); ok {
				out.Descriptor = info.URI
				out.Visible = srv.VisibleDataModels(info.ID)
			}
			if doc, ok := srv.Document(target); ok {
				out.Diagnostics = doc.Diagnostics
				for _, l := range doc.Links {
					out.Links = append(out.Links, linkEntry{
						Property: l.Site.Property,
						Text:     l.Site.Reference.Text,
						Kind:     string(l.Site.Kind),
						Line:     l.Site.Reference.Line,
						Name:     l.Name,
						Target:   l.Target,
					})
				}
			}

			if format := app.outputFormat(); format != config.FormatText {
				return writeStructured(app.stdout, format, out)
			}
			printResolve(app, out)
			return nil
		},
	}
}

func printResolve(app *App, out resolveOutput) {
	fmt.Fprintln(app.stdout, TitleStyle.Render(out.URI))
	if out.Package == datamodel.UnknownID {
		fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("package:"), WarningStyle.Render("none (no descriptor above this document)"))
	} else {
		fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("package:"), IDStyle.Render(out.Package))
		fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("descriptor:"), VerboseStyle.Render(out.Descriptor))
		fmt.Fprintf(app.stdout, "  %s %v\n", SubtitleStyle.Render("visible:"), out.Visible)
	}

	if len(out.Links) > 0 {
		fmt.Fprintln(app.stdout)
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("References:"))
		for _, l := range out.Links {
			if l.Target == "" {
				fmt.Fprintf(app.stdout, "  %s %q %s\n", l.Property, l.Text, ErrorStyle.Render("unresolved"))
				continue
			}
			fmt.Fprintf(app.stdout, "  %s %q -> %s %s\n", l.Property, l.Text, IDStyle.Render(l.Name), VerboseStyle.Render(l.Target))
		}
	}
	if len(out.Diagnostics) > 0 {
		fmt.Fprintln(app.stdout)
		for _, d := range out.Diagnostics {
			printDiagnostic(app.stdout, d)
		}
	}
}
