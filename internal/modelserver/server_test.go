// SPDX-License-Identifier: MPL-2.0

package modelserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/crossmodel/crossmodel/internal/dag"
	"github.com/crossmodel/crossmodel/internal/registry"
	"github.com/crossmodel/crossmodel/internal/scope"
	"github.com/crossmodel/crossmodel/internal/testutil"
	"github.com/crossmodel/crossmodel/internal/vfs"
	"github.com/crossmodel/crossmodel/internal/workspace"
	"github.com/crossmodel/crossmodel/pkg/ast"
	"github.com/crossmodel/crossmodel/pkg/datamodel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptor(id string, deps ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "datamodel:\n  id: %s\n  name: %s\n  version: 1.0.0\n  type: logical\n", id, id)
	if len(deps) > 0 {
		b.WriteString("  dependencies:\n")
		for _, d := range deps {
			fmt.Fprintf(&b, "    - datamodel: %s\n      version: 1.0.0\n", d)
		}
	}
	return b.String()
}

func entity(id string) string {
	return fmt.Sprintf("entity:\n  id: %s\n  attributes:\n    - id: key\n", id)
}

func relationship(id, parent, child string) string {
	return fmt.Sprintf("relationship:\n  id: %s\n  parent: %s\n  child: %s\n", id, parent, child)
}

func newServer(t *testing.T) (*Server, *testutil.MemWorkspace) {
	t.Helper()
	ws := testutil.NewMemWorkspace(t)
	s := New(vfs.New(ws.Service), WithDefaultScheme("mem"))
	t.Cleanup(s.Dispose)
	return s, ws
}

func names(cands []scope.Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Name)
	}
	return out
}

func codes(diags []workspace.Diagnostic) []string {
	var out []string
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

// Package B depends on A; B's relationship names A's entity foo unqualified.
func seedAB(ws *testutil.MemWorkspace) (rel string) {
	ws.Write("a/datamodel.cm", descriptor("A"))
	ws.Write("a/foo.entity.cm", entity("foo"))
	ws.Write("b/datamodel.cm", descriptor("B", "A"))
	ws.Write("b/bar.entity.cm", entity("Bar"))
	return ws.Write("b/link.relationship.cm", relationship("Link", "Bar", "foo"))
}

func TestEndToEndVisibilityFollowsDescriptors(t *testing.T) {
	t.Parallel()
	s, ws := newServer(t)
	rel := seedAB(ws)

	_, err := s.Initialize(t.Context(), []string{ws.Root})
	require.NoError(t, err)

	assert.Equal(t, "B@1.0.0", s.DataModelIDByURI(rel))
	assert.True(t, s.IsVisible("B@1.0.0", "A@1.0.0"))
	assert.False(t, s.IsVisible("A@1.0.0", "B@1.0.0"))
	assert.Empty(t, s.Diagnostics(rel))

	got := names(s.Complete(t.Context(), rel, scope.Filter{Kind: ast.RefEntity}))
	assert.Contains(t, got, "foo")
	assert.Contains(t, got, "A.foo")

	// Removing A's descriptor leaves B with a dead dependency.
	desc := ws.Remove("a/datamodel.cm")
	_, err = s.Update(t.Context(), nil, []string{desc})
	require.NoError(t, err)

	assert.False(t, s.IsVisible("B@1.0.0", "A@1.0.0"))
	assert.Equal(t, datamodel.UnknownID, s.DataModelIDByURI(ws.URI("a/foo.entity.cm")))
	diags := s.Diagnostics(rel)
	require.Len(t, diags, 1)
	assert.Equal(t, workspace.CodeUnresolvedReference, diags[0].Code)
	assert.Contains(t, diags[0].Message, `"foo"`)
	assert.NotContains(t, names(s.Complete(t.Context(), rel, scope.Filter{Kind: ast.RefEntity})), "foo")

	// Restoring it resolves the reference again.
	desc = ws.Write("a/datamodel.cm", descriptor("A"))
	_, err = s.Update(t.Context(), []string{desc}, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Diagnostics(rel))
}

func TestDescriptorEditInvalidatesOnlyDependents(t *testing.T) {
	t.Parallel()
	s, ws := newServer(t)
	seedAB(ws)
	ws.Write("c/datamodel.cm", descriptor("C"))
	unrelated := ws.Write("c/baz.entity.cm", entity("Baz"))

	_, err := s.Initialize(t.Context(), []string{ws.Root})
	require.NoError(t, err)

	desc := ws.Write("a/datamodel.cm", descriptor("A")+"  description: edited\n")
	res, err := s.Update(t.Context(), []string{desc}, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		ws.URI("a/foo.entity.cm"),
		ws.URI("b/bar.entity.cm"),
		ws.URI("b/link.relationship.cm"),
	}, res.Rebuilt)
	assert.NotContains(t, res.Rebuilt, unrelated)
}

func TestDeletedDirectoryRemovesItsDocumentsAndPackages(t *testing.T) {
	t.Parallel()
	s, ws := newServer(t)
	rel := seedAB(ws)

	_, err := s.Initialize(t.Context(), []string{ws.Root})
	require.NoError(t, err)
	require.Len(t, s.DataModelInfos(), 2)

	ws.Remove("a")
	_, err = s.Update(t.Context(), nil, []string{ws.URI("a")})
	require.NoError(t, err)

	_, tracked := s.Document(ws.URI("a/foo.entity.cm"))
	assert.False(t, tracked)
	require.Len(t, s.DataModelInfos(), 1)
	assert.Equal(t, "B@1.0.0", s.DataModelInfos()[0].ID)
	assert.Contains(t, codes(s.Diagnostics(rel)), workspace.CodeUnresolvedReference)
}

func TestOpenBufferShadowsFile(t *testing.T) {
	t.Parallel()
	s, ws := newServer(t)
	rel := seedAB(ws)

	_, err := s.Initialize(t.Context(), []string{ws.Root})
	require.NoError(t, err)

	_, err = s.Open(t.Context(), rel, []byte(relationship("Link", "Bar", "Missing")))
	require.NoError(t, err)
	assert.Contains(t, codes(s.Diagnostics(rel)), workspace.CodeUnresolvedReference)

	_, err = s.Close(t.Context(), rel)
	require.NoError(t, err)
	assert.Empty(t, s.Diagnostics(rel))
}

func TestOpenDescriptorBufferChangesDependencies(t *testing.T) {
	t.Parallel()
	s, ws := newServer(t)
	rel := seedAB(ws)

	_, err := s.Initialize(t.Context(), []string{ws.Root})
	require.NoError(t, err)

	// An unsaved descriptor edit that drops the dependency.
	desc := ws.URI("b/datamodel.cm")
	res, err := s.Open(t.Context(), desc, []byte(descriptor("B")))
	require.NoError(t, err)
	assert.False(t, s.IsVisible("B@1.0.0", "A@1.0.0"))
	assert.Contains(t, codes(s.Diagnostics(rel)), workspace.CodeUnresolvedReference)
	assert.Contains(t, res.Rebuilt, rel)
	assert.NotContains(t, res.Rebuilt, desc, "descriptor buffers are registered, not built")

	res, err = s.Update(t.Context(), []string{ws.URI("a/foo.entity.cm")}, nil)
	require.NoError(t, err)
	assert.NotContains(t, res.Rebuilt, desc)
}

func TestOnUpdateFanOut(t *testing.T) {
	t.Parallel()
	s, ws := newServer(t)
	seedAB(ws)

	var (
		mu     sync.Mutex
		events []string
	)
	s.OnUpdate(func(context.Context, registry.Event) error {
		return errors.New("listener failure must not stop others")
	})
	sub := s.OnUpdate(func(_ context.Context, e registry.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, string(e.Kind)+" "+e.Info.ID)
		return nil
	})
	defer sub.Dispose()

	_, err := s.Initialize(t.Context(), []string{ws.Root})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"added A@1.0.0", "added B@1.0.0"}, events)
}

func TestIsPackageDescriptorURI(t *testing.T) {
	t.Parallel()
	s, ws := newServer(t)
	custom := New(vfs.New(ws.Service), WithDescriptorFile("model.cm"))
	t.Cleanup(custom.Dispose)

	tests := []struct {
		server *Server
		uri    string
		want   bool
	}{
		{s, ws.URI("a/datamodel.cm"), true},
		{s, ws.URI("a/foo.entity.cm"), false},
		{s, "", false},
		{custom, ws.URI("a/model.cm"), true},
		{custom, ws.URI("a/datamodel.cm"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.server.IsPackageDescriptorURI(tt.uri), tt.uri)
	}
}

func TestCheckReportsWorkspaceProblems(t *testing.T) {
	t.Parallel()
	s, ws := newServer(t)
	ws.Write("p/datamodel.cm", descriptor("P", "Q"))
	ws.Write("q/datamodel.cm", descriptor("Q", "P"))
	ws.Write("dup1/datamodel.cm", descriptor("D"))
	ws.Write("dup2/datamodel.cm", descriptor("D"))
	ws.Write("broken/datamodel.cm", "datamodel: [")
	ws.Write("p/x.entity.cm", "entity: {")

	_, err := s.Initialize(t.Context(), []string{ws.Root})
	require.NoError(t, err)

	report := s.Check()
	assert.Equal(t, []string{
		workspace.CodeDependencyCycle,
		workspace.CodeDuplicateDataModelID,
		workspace.CodeInvalidDescriptor,
		workspace.CodeParseError,
	}, report.Codes())
	assert.Equal(t, [][]string{{"P@1.0.0", "Q@1.0.0"}}, report.Cycles)
	assert.GreaterOrEqual(t, report.Errors(), 2, "invalid descriptor and parse error")

	_, err = s.DependencyOrder()
	var cycleErr *dag.CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestDependencyOrder(t *testing.T) {
	t.Parallel()
	s, ws := newServer(t)
	ws.Write("c/datamodel.cm", descriptor("C", "B", "Gone"))
	ws.Write("b/datamodel.cm", descriptor("B", "A"))
	ws.Write("a/datamodel.cm", descriptor("A"))

	_, err := s.Initialize(t.Context(), []string{ws.Root})
	require.NoError(t, err)

	order, err := s.DependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"A@1.0.0", "B@1.0.0", "C@1.0.0"}, order)
	assert.Equal(t, []string{"C@1.0.0", "B@1.0.0", "A@1.0.0"}, s.VisibleDataModels("C@1.0.0"))
}
