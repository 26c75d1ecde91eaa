// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"fmt"
	"slices"

	"github.com/crossmodel/crossmodel/pkg/ast"
)

// Build states, in the order a document moves through them.
const (
	StateChanged State = iota
	StateParsed
	StateLinked
	StateValidated
)

// Diagnostic severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic codes.
const (
	CodeParseError           = "parse_error"
	CodeUnresolvedReference  = "unresolved_reference"
	CodeDuplicateSymbol      = "duplicate_symbol"
	CodeDuplicateDataModelID = "duplicate_datamodel_id"
	CodeDependencyCycle      = "dependency_cycle"
	CodeInvalidDescriptor    = "invalid_descriptor"
)

type (
	// State is the build progress of a document.
	State int

	// Severity classifies a diagnostic.
	Severity string

	// Diagnostic is a problem reported against a document.
	Diagnostic struct {
		Severity Severity `json:"severity" yaml:"severity" toml:"severity"`
		Code     string   `json:"code" yaml:"code" toml:"code"`
		Message  string   `json:"message" yaml:"message" toml:"message"`
		URI      string   `json:"uri" yaml:"uri" toml:"uri"`
		Line     int      `json:"line,omitempty" yaml:"line,omitempty" toml:"line,omitempty"`
		Column   int      `json:"column,omitempty" yaml:"column,omitempty" toml:"column,omitempty"`
	}

	// Link is the outcome of resolving one reference site.
	Link struct {
		Site ast.ReferenceSite
		// Name is the spelling that matched, Target the document declaring
		// the symbol. Both are empty when the reference is unresolved.
		Name   string
		Target string
	}

	// Document is an immutable snapshot of one workspace document. The
	// builder replaces snapshots instead of mutating them.
	Document struct {
		URI         string
		Version     int
		Text        []byte
		Open        bool
		Result      *ast.ParseResult
		State       State
		Diagnostics []Diagnostic
		Links       []Link
	}
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateChanged:
		return "changed"
	case StateParsed:
		return "parsed"
	case StateLinked:
		return "linked"
	case StateValidated:
		return "validated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// String formats the diagnostic as "uri:line:col: severity: message [code]".
func (d Diagnostic) String() string {
	loc := d.URI
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", d.URI, d.Line, d.Column)
	}
	return fmt.Sprintf("%s: %s: %s [%s]", loc, d.Severity, d.Message, d.Code)
}

// Resolved reports whether the link found a target.
func (l Link) Resolved() bool { return l.Target != "" }

// Root returns the parsed root node, or nil.
func (d *Document) Root() *ast.Root {
	if d == nil || d.Result == nil {
		return nil
	}
	return d.Result.Value
}

// Source returns the document as a parser source handle.
func (d *Document) Source() *ast.Source {
	return &ast.Source{URI: d.URI, Content: d.Text, Result: d.Result}
}

// HasErrors reports whether any error-severity diagnostic is attached.
func (d *Document) HasErrors() bool {
	return slices.ContainsFunc(d.Diagnostics, func(diag Diagnostic) bool {
		return diag.Severity == SeverityError
	})
}

// Unresolved returns the links that found no target.
func (d *Document) Unresolved() []Link {
	var out []Link
	for _, l := range d.Links {
		if !l.Resolved() {
			out = append(out, l)
		}
	}
	return out
}

// Invalidated returns a copy of d reset to StateChanged with its link and
// validation results dropped. Text and parse result are kept.
func (d *Document) Invalidated() *Document {
	c := d.clone()
	c.State = StateChanged
	c.Diagnostics = nil
	c.Links = nil
	return c
}

func (d *Document) clone() *Document {
	c := *d
	c.Diagnostics = slices.Clone(d.Diagnostics)
	c.Links = slices.Clone(d.Links)
	return &c
}

func (d *Document) referencesAny(uris map[string]bool) bool {
	for _, l := range d.Links {
		if uris[l.Target] {
			return true
		}
	}
	return false
}
