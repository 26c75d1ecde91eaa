// SPDX-License-Identifier: MPL-2.0

package modelserver

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/crossmodel/crossmodel/internal/workspace"
)

// Report is the outcome of Check.
type Report struct {
	Diagnostics []workspace.Diagnostic `json:"diagnostics" yaml:"diagnostics" toml:"diagnostics"`
	// Cycles lists the package ids of every dependency cycle.
	Cycles [][]string `json:"cycles,omitempty" yaml:"cycles,omitempty" toml:"cycles,omitempty"`
}

// Errors counts the error-severity diagnostics.
func (r *Report) Errors() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == workspace.SeverityError {
			n++
		}
	}
	return n
}

// Codes returns the distinct diagnostic codes, sorted.
func (r *Report) Codes() []string {
	var codes []string
	for _, d := range r.Diagnostics {
		if !slices.Contains(codes, d.Code) {
			codes = append(codes, d.Code)
		}
	}
	slices.Sort(codes)
	return codes
}

// Check collects every problem in the workspace: document diagnostics, scan
// failures, descriptors that do not parse, ids declared by several
// descriptors and dependency cycles. Diagnostics are ordered by URI, then
// position.
func (s *Server) Check() *Report {
	r := &Report{}
	for _, doc := range s.Documents() {
		r.Diagnostics = append(r.Diagnostics, doc.Diagnostics...)
	}

	s.mu.Lock()
	for _, d := range s.scanned {
		r.Diagnostics = append(r.Diagnostics, workspace.Diagnostic{
			Severity: workspace.Severity(d.Severity),
			Code:     d.Code,
			Message:  d.Message,
			URI:      d.URI,
		})
	}
	s.mu.Unlock()

	for _, u := range s.adapter.Descriptors() {
		if _, ok := s.registry.Get(u); !ok {
			r.Diagnostics = append(r.Diagnostics, workspace.Diagnostic{
				Severity: workspace.SeverityError,
				Code:     workspace.CodeInvalidDescriptor,
				Message:  "data model descriptor is invalid or declares no id",
				URI:      u,
			})
		}
	}

	for id, uris := range s.registry.Conflicts() {
		for _, u := range uris {
			r.Diagnostics = append(r.Diagnostics, workspace.Diagnostic{
				Severity: workspace.SeverityWarning,
				Code:     workspace.CodeDuplicateDataModelID,
				Message:  fmt.Sprintf("data model id %q is declared by %d descriptors", id, len(uris)),
				URI:      u,
			})
		}
	}

	r.Cycles = s.adapter.Graph().Cycles()
	for _, cycle := range r.Cycles {
		msg := "dependency cycle: " + strings.Join(append(slices.Clone(cycle), cycle[0]), " -> ")
		for _, id := range cycle {
			info, ok := s.registry.InfoForID(id)
			if !ok {
				continue
			}
			r.Diagnostics = append(r.Diagnostics, workspace.Diagnostic{
				Severity: workspace.SeverityInfo,
				Code:     workspace.CodeDependencyCycle,
				Message:  msg,
				URI:      info.URI,
			})
		}
	}

	slices.SortStableFunc(r.Diagnostics, func(a, b workspace.Diagnostic) int {
		return cmp.Or(
			strings.Compare(a.URI, b.URI),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Column, b.Column),
			strings.Compare(a.Code, b.Code),
		)
	})
	return r
}
