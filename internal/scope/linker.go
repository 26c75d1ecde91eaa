// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"context"
	"fmt"
	"strings"

	"github.com/crossmodel/crossmodel/internal/workspace"
	"github.com/crossmodel/crossmodel/pkg/ast"
)

type (
	// Linker resolves document references through a Provider. It implements
	// workspace.Linker.
	Linker struct {
		provider *Provider
	}

	// Validator reports symbols declared more than once within a package.
	// It implements workspace.Validator.
	Validator struct {
		provider *Provider
	}
)

// NewLinker creates a Linker over p.
func NewLinker(p *Provider) *Linker {
	if p == nil {
		panic("scope: nil provider")
	}
	return &Linker{provider: p}
}

// Link resolves every reference site of doc. Unresolved and ambiguous
// references produce an unresolved_reference error.
func (l *Linker) Link(ctx context.Context, doc *workspace.Document) ([]workspace.Link, []workspace.Diagnostic) {
	sites := doc.Root().References()
	if len(sites) == 0 {
		return nil, nil
	}

	links := make([]workspace.Link, 0, len(sites))
	var diags []workspace.Diagnostic
	for _, site := range sites {
		link := workspace.Link{Site: site}
		matches := l.provider.Lookup(ctx, doc, site)
		switch len(matches) {
		case 1:
			link.Name = site.Reference.Text
			link.Target = matches[0].DocumentURI
		case 0:
			diags = append(diags, unresolved(doc, site,
				fmt.Sprintf("cannot resolve %s reference %q", site.Kind, site.Reference.Text)))
		default:
			names := make([]string, 0, len(matches))
			for _, m := range matches {
				names = append(names, displayName(m))
			}
			diags = append(diags, unresolved(doc, site,
				fmt.Sprintf("ambiguous %s reference %q: matches %s", site.Kind, site.Reference.Text, strings.Join(names, ", "))))
		}
		links = append(links, link)
	}
	return links, diags
}

// NewValidator creates a Validator over p.
func NewValidator(p *Provider) *Validator {
	if p == nil {
		panic("scope: nil provider")
	}
	return &Validator{provider: p}
}

// Validate warns when an entity of doc is also declared by another document
// of the same package.
func (v *Validator) Validate(ctx context.Context, doc *workspace.Document) []workspace.Diagnostic {
	root := doc.Root()
	if root == nil || root.Kind != ast.KindEntity {
		return nil
	}

	ownID := v.provider.packageID(doc.URI)
	var diags []workspace.Diagnostic
	for _, s := range v.provider.inScope(ctx, doc, ownID, Filter{Kind: ast.RefEntity}) {
		if s.DocumentURI == doc.URI || s.PackageID != ownID || s.LocalID != root.Entity.ID {
			continue
		}
		diags = append(diags, workspace.Diagnostic{
			Severity: workspace.SeverityWarning,
			Code:     workspace.CodeDuplicateSymbol,
			Message:  fmt.Sprintf("entity %q is also declared in %s", s.LocalID, s.DocumentURI),
			URI:      doc.URI,
		})
	}
	return diags
}

func unresolved(doc *workspace.Document, site ast.ReferenceSite, msg string) workspace.Diagnostic {
	return workspace.Diagnostic{
		Severity: workspace.SeverityError,
		Code:     workspace.CodeUnresolvedReference,
		Message:  msg,
		URI:      doc.URI,
		Line:     site.Reference.Line,
		Column:   site.Reference.Column,
	}
}

func displayName(s Symbol) string {
	if q := s.QualifiedName(); q != "" {
		return q
	}
	return s.LocalID
}
