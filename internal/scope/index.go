// SPDX-License-Identifier: MPL-2.0

// Package scope computes which symbols a document can name and resolves its
// cross-references against them.
//
// Symbols are entities and their attributes. Each symbol is nameable by its
// local id and, when its package has a reference name, by the qualified form
// referenceName.localID. Candidates come from the document's own package and
// every package it can see through the registry's visibility rules.
package scope

import (
	"strings"
	"sync"

	"github.com/crossmodel/crossmodel/internal/workspace"
	"github.com/crossmodel/crossmodel/pkg/ast"
	"github.com/crossmodel/crossmodel/pkg/datamodel"
)

// Separator joins a package reference name, entity id and attribute id.
const Separator = "."

type (
	// Symbol is a nameable declaration.
	Symbol struct {
		// LocalID is the entity id, or "entity.attribute" for attributes.
		LocalID     string      `json:"local_id" yaml:"local_id" toml:"local_id"`
		Kind        ast.RefKind `json:"kind" yaml:"kind" toml:"kind"`
		DocumentURI string      `json:"document" yaml:"document" toml:"document"`
		// PackageID and ReferenceName describe the owning package. They are
		// set when the symbol is looked up through a Provider.
		PackageID     string `json:"package" yaml:"package" toml:"package"`
		ReferenceName string `json:"reference_name,omitempty" yaml:"reference_name,omitempty" toml:"reference_name,omitempty"`
	}

	// Index caches the symbols each document declares. Entries are reused
	// while the document's version and parse result stay the same.
	Index struct {
		mu      sync.Mutex
		entries map[string]indexEntry
	}

	indexEntry struct {
		version int
		result  *ast.ParseResult
		symbols []Symbol
	}
)

// QualifiedName returns the package-qualified spelling of s, or "" when the
// owning package has no usable reference name.
func (s Symbol) QualifiedName() string {
	if s.ReferenceName == "" || s.ReferenceName == datamodel.UnknownID {
		return ""
	}
	return QualifiedName(s.ReferenceName, s.LocalID)
}

// QualifiedName joins a package reference name and a local id.
func QualifiedName(referenceName, localID string) string {
	return referenceName + Separator + localID
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]indexEntry)}
}

// Symbols returns the symbols declared by doc, recomputing them only when the
// document changed since the last call.
func (x *Index) Symbols(doc *workspace.Document) []Symbol {
	x.mu.Lock()
	defer x.mu.Unlock()

	if e, ok := x.entries[doc.URI]; ok && e.version == doc.Version && e.result == doc.Result {
		return e.symbols
	}
	syms := declared(doc)
	x.entries[doc.URI] = indexEntry{version: doc.Version, result: doc.Result, symbols: syms}
	return syms
}

// Retain drops cached entries for documents not in uris.
func (x *Index) Retain(uris map[string]bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for u := range x.entries {
		if !uris[u] {
			delete(x.entries, u)
		}
	}
}

// Len returns the number of cached documents.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

func declared(doc *workspace.Document) []Symbol {
	root := doc.Root()
	if root == nil || root.Kind != ast.KindEntity || root.Entity == nil {
		return nil
	}
	e := root.Entity
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return nil
	}

	syms := []Symbol{{LocalID: id, Kind: ast.RefEntity, DocumentURI: doc.URI}}
	for _, a := range e.Attributes {
		attr := strings.TrimSpace(a.ID)
		if attr == "" {
			continue
		}
		syms = append(syms, Symbol{
			LocalID:     id + Separator + attr,
			Kind:        ast.RefAttribute,
			DocumentURI: doc.URI,
		})
	}
	return syms
}
