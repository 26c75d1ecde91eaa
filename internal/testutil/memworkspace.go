// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/crossmodel/crossmodel/internal/uri"

	"github.com/viant/afs"
	_ "github.com/viant/afs/mem" // registers the mem:// scheme
)

// MemWorkspace is an in-memory workspace folder rooted at a mem:// URL that
// is unique to the test that created it.
type MemWorkspace struct {
	t       testing.TB
	Root    string
	Service afs.Service
}

// NewMemWorkspace creates an empty in-memory workspace for t and removes it
// when the test finishes.
func NewMemWorkspace(t testing.TB) *MemWorkspace {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	w := &MemWorkspace{
		t:       t,
		Root:    "mem://localhost/" + name,
		Service: afs.New(),
	}
	t.Cleanup(func() {
		_ = w.Service.Delete(context.Background(), w.Root)
	})
	return w
}

// URI returns the URI of rel inside the workspace.
func (w *MemWorkspace) URI(rel string) string {
	return uri.Normalize(w.Root + "/" + strings.TrimPrefix(rel, "/"))
}

// Write stores content at rel and returns its URI.
func (w *MemWorkspace) Write(rel, content string) string {
	w.t.Helper()
	u := w.URI(rel)
	if err := w.Service.Upload(context.Background(), u, os.FileMode(0o644), strings.NewReader(content)); err != nil {
		w.t.Fatalf("failed to write %s: %v", u, err)
	}
	return u
}

// Remove deletes rel and returns its URI.
func (w *MemWorkspace) Remove(rel string) string {
	w.t.Helper()
	u := w.URI(rel)
	if err := w.Service.Delete(context.Background(), u); err != nil {
		w.t.Fatalf("failed to delete %s: %v", u, err)
	}
	return u
}
