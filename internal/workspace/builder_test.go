// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/crossmodel/crossmodel/internal/uri"
	"github.com/crossmodel/crossmodel/internal/vfs"
	"github.com/crossmodel/crossmodel/pkg/ast"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFS struct {
	mu    sync.Mutex
	files map[string]string
}

func newMemFS(files map[string]string) *memFS {
	return &memFS{files: files}
}

func (m *memFS) set(u, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[u] = content
}

func (m *memFS) remove(u string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, u)
}

func (m *memFS) ReadFile(_ context.Context, u string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[u]
	if !ok {
		return nil, fmt.Errorf("%s: %w", u, vfs.ErrNotFound)
	}
	return []byte(content), nil
}

func (m *memFS) ReadDirectory(_ context.Context, dir string) ([]vfs.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []vfs.Entry
	for u := range m.files {
		if uri.Dir(u) == dir {
			out = append(out, vfs.Entry{URI: u, IsFile: true})
		}
	}
	return out, nil
}

// entityLinker resolves references to entity ids anywhere in the store.
type entityLinker struct {
	store *Store
}

func (l entityLinker) Link(_ context.Context, doc *Document) ([]Link, []Diagnostic) {
	var (
		links []Link
		diags []Diagnostic
	)
	for _, site := range doc.Root().References() {
		link := Link{Site: site}
		for _, other := range l.store.All() {
			if r := other.Root(); r != nil && r.Kind == ast.KindEntity && r.Entity.ID == site.Reference.Text {
				link.Name, link.Target = site.Reference.Text, other.URI
				break
			}
		}
		if !link.Resolved() {
			diags = append(diags, Diagnostic{Severity: SeverityError, Code: CodeUnresolvedReference, URI: doc.URI})
		}
		links = append(links, link)
	}
	return links, diags
}

const (
	customerURI = "file:///ws/customer.entity.cm"
	orderURI    = "file:///ws/order.entity.cm"
	relURI      = "file:///ws/rel.relationship.cm"
	otherURI    = "file:///ws/other.entity.cm"
)

func newTestBuilder(t *testing.T) (*Builder, *memFS) {
	t.Helper()
	fs := newMemFS(map[string]string{
		customerURI: "entity:\n  id: Customer\n",
		orderURI:    "entity:\n  id: Order\n",
		relURI:      "relationship:\n  id: R\n  parent: Customer\n  child: Order\n",
		otherURI:    "entity:\n  id: Other\n",
	})
	store := NewStore()
	b := NewBuilder(store, fs, WithLinker(entityLinker{store: store}))
	return b, fs
}

func TestUpdateBuildsDocuments(t *testing.T) {
	t.Parallel()

	b, _ := newTestBuilder(t)
	res, err := b.Update(t.Context(), []string{customerURI, orderURI, relURI}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{customerURI, orderURI, relURI}, res.Rebuilt)

	rel, ok := b.Store().Get(relURI)
	require.True(t, ok)
	assert.Equal(t, StateValidated, rel.State)
	require.Len(t, rel.Links, 2)
	assert.Equal(t, customerURI, rel.Links[0].Target)
	assert.Equal(t, orderURI, rel.Links[1].Target)
	assert.Empty(t, rel.Diagnostics)
}

func TestUpdateRelinksReferencingDocuments(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b, fs := newTestBuilder(t)
	_, err := b.Update(ctx, []string{customerURI, orderURI, relURI, otherURI}, nil)
	require.NoError(t, err)

	fs.remove(customerURI)
	res, err := b.Update(ctx, nil, []string{customerURI})
	require.NoError(t, err)

	assert.Equal(t, []string{relURI}, res.Rebuilt, "only the document linked to the deleted one is rebuilt")
	rel, _ := b.Store().Get(relURI)
	require.Len(t, rel.Unresolved(), 1)
	assert.Equal(t, "Customer", rel.Unresolved()[0].Site.Reference.Text)
	assert.True(t, rel.HasErrors())

	// Restoring the entity resolves the dangling reference again.
	fs.set(customerURI, "entity:\n  id: Customer\n")
	res, err = b.Update(ctx, []string{customerURI}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{customerURI, relURI}, res.Rebuilt)
	rel, _ = b.Store().Get(relURI)
	assert.Empty(t, rel.Unresolved())
}

func TestUpdateListenersRewriteBatch(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b, _ := newTestBuilder(t)
	_, err := b.Update(ctx, []string{customerURI, otherURI}, nil)
	require.NoError(t, err)

	var seen []string
	b.OnUpdate(func(_ context.Context, batch *Batch) error {
		seen = append(seen, batch.Changed...)
		batch.Changed = append(batch.Changed, otherURI)
		return nil
	})

	res, err := b.Update(ctx, []string{orderURI}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{orderURI}, seen)
	assert.ElementsMatch(t, []string{orderURI, otherURI}, res.Rebuilt)
}

func TestBuildPhaseListeners(t *testing.T) {
	t.Parallel()

	b, _ := newTestBuilder(t)
	var phases []State
	for _, s := range []State{StateParsed, StateLinked, StateValidated} {
		b.OnBuildPhase(s, func(_ context.Context, docs []*Document) error {
			require.Len(t, docs, 1)
			assert.Equal(t, s, docs[0].State)
			phases = append(phases, s)
			return nil
		})
	}

	_, err := b.Update(t.Context(), []string{customerURI}, nil)
	require.NoError(t, err)
	assert.Equal(t, []State{StateParsed, StateLinked, StateValidated}, phases)
}

func TestParseErrorsBecomeDiagnostics(t *testing.T) {
	t.Parallel()

	b, fs := newTestBuilder(t)
	fs.set("file:///ws/broken.entity.cm", "entity:\n  id: [\n")

	_, err := b.Update(t.Context(), []string{"file:///ws/broken.entity.cm"}, nil)
	require.NoError(t, err)

	doc, ok := b.Store().Get("file:///ws/broken.entity.cm")
	require.True(t, ok)
	require.NotEmpty(t, doc.Diagnostics)
	assert.Equal(t, CodeParseError, doc.Diagnostics[0].Code)
}

func TestOpenBufferShadowsFile(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	b, _ := newTestBuilder(t)
	_, err := b.Update(ctx, []string{customerURI}, nil)
	require.NoError(t, err)

	_, err = b.Open(ctx, customerURI, []byte("entity:\n  id: Client\n"))
	require.NoError(t, err)
	doc, _ := b.Store().Get(customerURI)
	assert.True(t, doc.Open)
	assert.Equal(t, "Client", doc.Root().ID())

	src, err := b.Source(ctx, customerURI)
	require.NoError(t, err)
	assert.Equal(t, "Client", src.Root().ID())

	// A file change notification does not overwrite the open buffer.
	_, err = b.Update(ctx, []string{customerURI}, nil)
	require.NoError(t, err)
	doc, _ = b.Store().Get(customerURI)
	assert.Equal(t, "Client", doc.Root().ID())

	_, err = b.Close(ctx, customerURI)
	require.NoError(t, err)
	doc, _ = b.Store().Get(customerURI)
	assert.False(t, doc.Open)
	assert.Equal(t, "Customer", doc.Root().ID())
}

func TestBufferOnlyDocumentsAreNeverBuilt(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	const descURI = "file:///ws/datamodel.cm"
	fs := newMemFS(map[string]string{customerURI: "entity:\n  id: Customer\n"})
	b := NewBuilder(NewStore(), fs, WithBufferOnly(func(u string) bool {
		return uri.Base(u) == "datamodel.cm"
	}))

	res, err := b.Open(ctx, descURI, []byte("datamodel:\n  id: A\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Rebuilt)

	doc, ok := b.Store().Get(descURI)
	require.True(t, ok, "the buffer is tracked")
	assert.True(t, doc.Open)
	src, err := b.Source(ctx, descURI)
	require.NoError(t, err)
	assert.Equal(t, "datamodel:\n  id: A\n", string(src.Content))

	// Later batches do not sweep the unbuilt buffer in either.
	res, err = b.Update(ctx, []string{customerURI}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{customerURI}, res.Rebuilt)
}

func TestUpdateSkipsForeignExtensions(t *testing.T) {
	t.Parallel()

	b, fs := newTestBuilder(t)
	fs.set("file:///ws/readme.md", "# hi")

	res, err := b.Update(t.Context(), []string{"file:///ws/readme.md"}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rebuilt)
	assert.False(t, b.Store().Has("file:///ws/readme.md"))
}

func TestUpdateCancelled(t *testing.T) {
	t.Parallel()

	b, _ := newTestBuilder(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := b.Update(ctx, []string{customerURI}, nil)
	require.ErrorIs(t, err, context.Canceled)

	// The next batch picks up the document left behind.
	res, err := b.Update(t.Context(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{customerURI}, res.Rebuilt)
}
