// SPDX-License-Identifier: MPL-2.0

package buildupdate

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/crossmodel/crossmodel/internal/discovery"
	"github.com/crossmodel/crossmodel/internal/registry"
	"github.com/crossmodel/crossmodel/internal/resolver"
	"github.com/crossmodel/crossmodel/internal/testutil"
	"github.com/crossmodel/crossmodel/internal/vfs"
	"github.com/crossmodel/crossmodel/internal/workspace"
	"github.com/crossmodel/crossmodel/pkg/datamodel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	ws       *testutil.MemWorkspace
	registry *registry.Registry
	resolver *resolver.Resolver
	builder  *workspace.Builder
	adapter  *Adapter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ws := testutil.NewMemWorkspace(t)
	fs := vfs.New(ws.Service)
	builder := workspace.NewBuilder(workspace.NewStore(), fs, workspace.WithBufferOnly(datamodel.IsDescriptorURI))
	reg := registry.New(&datamodel.DescriptorParser{Documents: builder})
	res := resolver.New(reg)
	adapter := New(reg, res, builder, discovery.NewScanner(fs))
	t.Cleanup(adapter.Close)

	return &harness{ws: ws, registry: reg, resolver: res, builder: builder, adapter: adapter}
}

func descriptor(id string, deps ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "datamodel:\n  id: %s\n  name: %s\n  version: 1.0.0\n", id, id)
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

// load scans the workspace and builds every entity document in it.
func (h *harness) load(t *testing.T, docs ...string) {
	t.Helper()
	_, err := h.adapter.Initialize(t.Context(), []string{h.ws.Root})
	require.NoError(t, err)

	uris := make([]string, 0, len(docs))
	for _, d := range docs {
		uris = append(uris, h.ws.URI(d))
	}
	_, err = h.builder.Update(t.Context(), uris, nil)
	require.NoError(t, err)
}

func TestInitializeRegistersDescriptors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ws.Write("a/datamodel.cm", descriptor("A"))
	h.ws.Write("b/datamodel.cm", descriptor("B", "A"))
	h.ws.Write("broken/datamodel.cm", "datamodel: [")

	res, err := h.adapter.Initialize(t.Context(), []string{h.ws.Root})
	require.NoError(t, err)
	assert.Len(t, res.Files, 3)
	assert.Equal(t, 2, h.registry.Len())
	assert.Len(t, h.adapter.Descriptors(), 3, "invalid descriptors are still tracked")

	info, ok := h.registry.InfoForID("B@1.0.0")
	require.True(t, ok)
	assert.Equal(t, h.ws.URI("b/datamodel.cm"), info.URI)
}

func TestDescriptorEditRebuildsOnlyAffectedPackages(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ws.Write("a/datamodel.cm", descriptor("A"))
	h.ws.Write("b/datamodel.cm", descriptor("B", "A"))
	h.ws.Write("c/datamodel.cm", descriptor("C"))
	x := h.ws.Write("a/x.entity.cm", entity("X"))
	y := h.ws.Write("b/y.entity.cm", entity("Y"))
	z := h.ws.Write("c/z.entity.cm", entity("Z"))
	h.load(t, "a/x.entity.cm", "b/y.entity.cm", "c/z.entity.cm")

	// Same id, new content: an in-place update of A.
	desc := h.ws.Write("a/datamodel.cm", descriptor("A")+"  description: edited\n")
	res, err := h.builder.Update(t.Context(), []string{desc}, nil)
	require.NoError(t, err)

	assert.NotContains(t, res.Changed, desc, "descriptors never reach the document build")
	assert.ElementsMatch(t, []string{x, y}, res.Rebuilt)
	assert.NotContains(t, res.Rebuilt, z)
}

func TestUnchangedDescriptorRebuildsNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	desc := h.ws.Write("a/datamodel.cm", descriptor("A"))
	h.ws.Write("a/x.entity.cm", entity("X"))
	h.load(t, "a/x.entity.cm")

	res, err := h.builder.Update(t.Context(), []string{desc}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Changed)
	assert.Empty(t, res.Rebuilt)
}

func TestOpenDescriptorBufferIsNotRebuilt(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ws.Write("a/datamodel.cm", descriptor("A"))
	desc := h.ws.Write("b/datamodel.cm", descriptor("B", "A"))
	x := h.ws.Write("a/x.entity.cm", entity("X"))
	y := h.ws.Write("b/y.entity.cm", entity("Y"))
	h.load(t, "a/x.entity.cm", "b/y.entity.cm")

	res, err := h.builder.Open(t.Context(), desc, []byte(descriptor("B")))
	require.NoError(t, err)
	assert.Equal(t, []string{y}, res.Rebuilt)
	assert.False(t, h.registry.IsVisible("B@1.0.0", "A@1.0.0"), "the buffer replaced the file")

	res, err = h.builder.Update(t.Context(), []string{x}, nil)
	require.NoError(t, err)
	assert.NotContains(t, res.Rebuilt, desc)
}

func TestClosureFollowsTransitiveDependents(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ws.Write("a/datamodel.cm", descriptor("A"))
	h.ws.Write("b/datamodel.cm", descriptor("B", "A"))
	h.ws.Write("c/datamodel.cm", descriptor("C", "B"))
	h.ws.Write("d/datamodel.cm", descriptor("D"))
	_, err := h.adapter.Initialize(t.Context(), []string{h.ws.Root})
	require.NoError(t, err)

	got := h.adapter.AffectedClosure([]string{"A@1.0.0"})
	assert.Equal(t, []string{"A@1.0.0", "B@1.0.0", "C@1.0.0"}, got)

	// Agrees with the naive fixed point over the registry.
	want := naiveClosure(h.registry, []string{"A@1.0.0"})
	assert.ElementsMatch(t, want, got)
}

func TestClosureTracksRegistryChanges(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ws.Write("a/datamodel.cm", descriptor("A"))
	b := h.ws.Write("b/datamodel.cm", descriptor("B"))
	_, err := h.adapter.Initialize(t.Context(), []string{h.ws.Root})
	require.NoError(t, err)
	assert.Equal(t, []string{"A@1.0.0"}, h.adapter.AffectedClosure([]string{"A@1.0.0"}))

	h.ws.Write("b/datamodel.cm", descriptor("B", "A"))
	_, err = h.builder.Update(t.Context(), []string{b}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A@1.0.0", "B@1.0.0"}, h.adapter.AffectedClosure([]string{"A@1.0.0"}))
}

func TestDeletedDescriptorRequeuesFormerMembers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ws.Write("a/datamodel.cm", descriptor("A"))
	h.ws.Write("b/datamodel.cm", descriptor("B", "A"))
	x := h.ws.Write("a/x.entity.cm", entity("X"))
	y := h.ws.Write("b/y.entity.cm", entity("Y"))
	h.load(t, "a/x.entity.cm", "b/y.entity.cm")
	require.Equal(t, "A@1.0.0", h.resolver.IDForURI(x))

	desc := h.ws.Remove("a/datamodel.cm")
	res, err := h.builder.Update(t.Context(), nil, []string{desc})
	require.NoError(t, err)

	assert.Contains(t, res.Deleted, desc)
	assert.ElementsMatch(t, []string{x, y}, res.Rebuilt)
	assert.Equal(t, datamodel.UnknownID, h.resolver.IDForURI(x))
	assert.NotContains(t, h.adapter.Descriptors(), desc)

	assert.Equal(t, 1, h.registry.Len())
}

func TestNestedDescriptorMovesOwnership(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ws.Write("datamodel.cm", descriptor("Outer"))
	deep := h.ws.Write("sub/deep.entity.cm", entity("Deep"))
	top := h.ws.Write("top.entity.cm", entity("Top"))
	h.load(t, "sub/deep.entity.cm", "top.entity.cm")
	require.Equal(t, "Outer@1.0.0", h.resolver.IDForURI(deep))

	inner := h.ws.Write("sub/datamodel.cm", descriptor("Inner"))
	res, err := h.builder.Update(t.Context(), []string{inner}, nil)
	require.NoError(t, err)

	// Only the new package is affected; deep moved into it.
	assert.Equal(t, []string{deep}, res.Rebuilt)
	assert.NotContains(t, res.Rebuilt, top)
	assert.Equal(t, "Inner@1.0.0", h.resolver.IDForURI(deep))
}

func TestParsedDocumentsAreRemembered(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	desc := h.ws.Write("a/datamodel.cm", descriptor("A"))
	x := h.ws.Write("a/x.entity.cm", entity("X"))
	loose := h.ws.Write("loose.entity.cm", entity("Loose"))
	h.load(t, "a/x.entity.cm", "loose.entity.cm")

	pkg, ok := h.resolver.Cached(x)
	require.True(t, ok)
	assert.Equal(t, desc, pkg)

	pkg, ok = h.resolver.Cached(loose)
	require.True(t, ok)
	assert.Empty(t, pkg, "misses are remembered too")
}

func TestNonDescriptorBatchesPassThrough(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ws.Write("a/datamodel.cm", descriptor("A"))
	x := h.ws.Write("a/x.entity.cm", entity("X"))
	h.load(t, "a/x.entity.cm")

	batch := &workspace.Batch{Changed: []string{x}}
	require.NoError(t, h.adapter.handleUpdate(context.Background(), batch))
	assert.Equal(t, []string{x}, batch.Changed)
}

func naiveClosure(reg *registry.Registry, ids []string) []string {
	out := slices.Clone(ids)
	for {
		next := reg.Dependents(out...)
		grew := false
		for _, id := range next {
			if !slices.Contains(out, id) {
				out = append(out, id)
				grew = true
			}
		}
		if !grew {
			return out
		}
	}
}
