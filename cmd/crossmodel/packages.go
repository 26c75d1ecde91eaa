// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/crossmodel/crossmodel/internal/config"
	"github.com/crossmodel/crossmodel/internal/modelserver"
	"github.com/crossmodel/crossmodel/pkg/datamodel"

	"github.com/spf13/cobra"
)

type (
	packageEntry struct {
		ID           string   `json:"id" yaml:"id" toml:"id"`
		Name         string   `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
		Type         string   `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
		URI          string   `json:"uri" yaml:"uri" toml:"uri"`
		Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
		Visible      []string `json:"visible" yaml:"visible" toml:"visible"`
	}

	packagesOutput struct {
		Packages []packageEntry `json:"packages" yaml:"packages" toml:"packages"`
	}
)

func newPackagesCommand(app *App) *cobra.Command {
	var sorted bool
	cmd := &cobra.Command{
		Use:   "packages [folder...]",
		Short: "List the data models of the workspace",
		Long: `List every data model registered from the workspace folders, with the
packages each one declares as dependencies and the packages it can see.

With --sorted, packages are listed after their dependencies; the command
fails if packages depend on each other in a cycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := app.openWorkspace(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer srv.Dispose()

			infos, err := orderedInfos(srv, sorted)
			if err != nil {
				return err
			}
			return printPackages(app, srv, infos)
		},
	}
	cmd.Flags().BoolVar(&sorted, "sorted", false, "list packages in dependency order")
	return cmd
}

func orderedInfos(srv *modelserver.Server, sorted bool) ([]*datamodel.Info, error) {
	infos := srv.DataModelInfos()
	if !sorted {
		return infos, nil
	}
	order, err := srv.DependencyOrder()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*datamodel.Info, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}
	out := make([]*datamodel.Info, 0, len(order))
	for _, id := range order {
		if info, ok := byID[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func printPackages(app *App, srv *modelserver.Server, infos []*datamodel.Info) error {
	out := packagesOutput{Packages: make([]packageEntry, 0, len(infos))}
	for _, info := range infos {
		entry := packageEntry{
			ID:      info.ID,
			Name:    info.Name,
			Type:    info.Type.String(),
			URI:     info.URI,
			Visible: srv.VisibleDataModels(info.ID),
		}
		for _, dep := range info.Dependencies {
			entry.Dependencies = append(entry.Dependencies, formatDependency(dep))
		}
		out.Packages = append(out.Packages, entry)
	}

	if format := app.outputFormat(); format != config.FormatText {
		return writeStructured(app.stdout, format, out)
	}

	if len(out.Packages) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("No data models found."))
		return nil
	}
	fmt.Fprintln(app.stdout, TitleStyle.Render(fmt.Sprintf("Data models (%d)", len(out.Packages))))
	for _, p := range out.Packages {
		fmt.Fprintln(app.stdout)
		line := IDStyle.Render(p.ID)
		if p.Type != "" {
			line += " " + SubtitleStyle.Render("("+p.Type+")")
		}
		fmt.Fprintln(app.stdout, line)
		fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("descriptor:"), VerboseStyle.Render(p.URI))
		if len(p.Dependencies) > 0 {
			fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("depends on:"), strings.Join(p.Dependencies, ", "))
		}
		// The first visible id is the package itself.
		if len(p.Visible) > 1 {
			fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("sees:"), strings.Join(p.Visible[1:], ", "))
		}
	}
	return nil
}

func formatDependency(dep datamodel.Dependency) string {
	if dep.Version == "" {
		return dep.DataModel
	}
	return dep.DataModel + "@" + dep.Version
}
