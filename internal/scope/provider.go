// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/crossmodel/crossmodel/internal/workspace"
	"github.com/crossmodel/crossmodel/pkg/ast"
	"github.com/crossmodel/crossmodel/pkg/datamodel"
)

type (
	// Documents lists the tracked documents. workspace.Store implements it.
	Documents interface {
		All() []*workspace.Document
	}

	// Packages maps a document to its owning package. resolver.Resolver
	// implements it.
	Packages interface {
		PackageForURI(uri string) (*datamodel.Info, bool)
	}

	// Visibility answers whether one package may name another.
	// registry.Registry implements it.
	Visibility interface {
		IsVisible(source, target string) bool
	}

	// Filter narrows a candidate query.
	Filter struct {
		// Kind restricts candidates to one symbol kind; empty means any.
		Kind ast.RefKind
		// Container restricts attribute candidates to those of the entity
		// named by this reference text (a relationship's parent or child).
		Container string
		// Prefix restricts candidates to names starting with it.
		Prefix string
	}

	// Candidate is one spelling under which a symbol may be referenced.
	Candidate struct {
		Name      string `json:"name" yaml:"name" toml:"name"`
		Qualified bool   `json:"qualified" yaml:"qualified" toml:"qualified"`
		// Local is true when the symbol belongs to the requesting document's
		// own package.
		Local  bool   `json:"local" yaml:"local" toml:"local"`
		Symbol Symbol `json:"symbol" yaml:"symbol" toml:"symbol"`
	}

	// Provider computes the symbols in scope for a document.
	Provider struct {
		docs       Documents
		packages   Packages
		visibility Visibility
		index      *Index
	}
)

// NewProvider creates a Provider. It panics if any collaborator is nil.
func NewProvider(docs Documents, packages Packages, visibility Visibility) *Provider {
	if docs == nil || packages == nil || visibility == nil {
		panic("scope: nil collaborator")
	}
	return &Provider{
		docs:       docs,
		packages:   packages,
		visibility: visibility,
		index:      NewIndex(),
	}
}

// Index returns the provider's symbol cache.
func (p *Provider) Index() *Index { return p.index }

// Candidates returns the spellings doc may use for a reference matching f.
// Symbols of the document's own package come first, unqualified spellings
// before qualified ones, then by name. A local id
// is offered unqualified only when exactly one symbol in scope carries it,
// or exactly one in the own package does; the qualified form is always
// offered when the owning package has a reference name.
func (p *Provider) Candidates(ctx context.Context, doc *workspace.Document, f Filter) []Candidate {
	ownID := p.packageID(doc.URI)
	syms := p.inScope(ctx, doc, ownID, f)

	total := make(map[string]int)
	own := make(map[string]int)
	for _, s := range syms {
		total[s.LocalID]++
		if s.PackageID == ownID {
			own[s.LocalID]++
		}
	}

	var out []Candidate
	for _, s := range syms {
		local := s.PackageID == ownID
		if total[s.LocalID] == 1 || (local && own[s.LocalID] == 1) {
			out = append(out, Candidate{Name: s.LocalID, Local: local, Symbol: s})
		}
		if q := s.QualifiedName(); q != "" {
			out = append(out, Candidate{Name: q, Qualified: true, Local: local, Symbol: s})
		}
	}
	if f.Prefix != "" {
		out = slices.DeleteFunc(out, func(c Candidate) bool { return !strings.HasPrefix(c.Name, f.Prefix) })
	}

	slices.SortStableFunc(out, func(a, b Candidate) int {
		if a.Local != b.Local {
			if a.Local {
				return -1
			}
			return 1
		}
		if a.Qualified != b.Qualified {
			if b.Qualified {
				return -1
			}
			return 1
		}
		return cmp.Or(
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.Symbol.DocumentURI, b.Symbol.DocumentURI),
		)
	})
	return out
}

// Lookup returns the symbols a reference site resolves to. One result means
// the reference is resolved, none that it is unresolved and several that it
// is ambiguous. An exact qualified match wins over local ids; among local id
// matches the own package is preferred.
func (p *Provider) Lookup(ctx context.Context, doc *workspace.Document, site ast.ReferenceSite) []Symbol {
	ownID := p.packageID(doc.URI)
	syms := p.inScope(ctx, doc, ownID, Filter{Kind: site.Kind, Container: site.Container})
	spellings := spellingsFor(site)

	var qualified, local []Symbol
	for _, s := range syms {
		switch {
		case slices.Contains(spellings, s.QualifiedName()):
			qualified = append(qualified, s)
		case slices.Contains(spellings, s.LocalID):
			local = append(local, s)
		}
	}
	if len(qualified) > 0 {
		return qualified
	}
	if len(local) <= 1 {
		return local
	}
	if mine := ownSymbols(local, ownID); len(mine) == 1 {
		return mine
	}
	return local
}

// Resolve returns the single symbol site refers to.
func (p *Provider) Resolve(ctx context.Context, doc *workspace.Document, site ast.ReferenceSite) (Symbol, bool) {
	matches := p.Lookup(ctx, doc, site)
	if len(matches) != 1 {
		return Symbol{}, false
	}
	return matches[0], true
}

// inScope collects the symbols visible from doc, in document order.
func (p *Provider) inScope(ctx context.Context, doc *workspace.Document, ownID string, f Filter) []Symbol {
	docs := p.docs.All()
	tracked := make(map[string]bool, len(docs))
	var out []Symbol

	for _, other := range docs {
		tracked[other.URI] = true
		if ctx.Err() != nil {
			break
		}

		var id, refName string
		if info, ok := p.packages.PackageForURI(other.URI); ok {
			id, refName = info.ID, info.ReferenceName
		} else {
			id = datamodel.UnknownID
		}

		switch {
		case ownID == datamodel.UnknownID:
			// Outside any package only the document's own symbols exist.
			if other.URI != doc.URI {
				continue
			}
		case id == ownID:
		case !p.visibility.IsVisible(ownID, id):
			continue
		}

		for _, s := range p.index.Symbols(other) {
			s.PackageID, s.ReferenceName = id, refName
			if f.matches(s) {
				out = append(out, s)
			}
		}
	}
	p.index.Retain(tracked)
	return out
}

func (p *Provider) packageID(u string) string {
	if info, ok := p.packages.PackageForURI(u); ok {
		return info.ID
	}
	return datamodel.UnknownID
}

func (f Filter) matches(s Symbol) bool {
	if f.Kind != "" && s.Kind != f.Kind {
		return false
	}
	if f.Container == "" || s.Kind != ast.RefAttribute {
		return true
	}
	prefix := f.Container + Separator
	if strings.HasPrefix(s.LocalID, prefix) {
		return true
	}
	q := s.QualifiedName()
	return q != "" && strings.HasPrefix(q, prefix)
}

// spellingsFor returns the texts a site may match: the reference as written
// and, for attribute references relative to their container, the container
// joined with it.
func spellingsFor(site ast.ReferenceSite) []string {
	text := site.Reference.Text
	out := []string{text}
	if site.Container != "" && !strings.HasPrefix(text, site.Container+Separator) {
		out = append(out, site.Container+Separator+text)
	}
	return out
}

func ownSymbols(syms []Symbol, ownID string) []Symbol {
	var out []Symbol
	for _, s := range syms {
		if s.PackageID == ownID {
			out = append(out, s)
		}
	}
	return out
}
