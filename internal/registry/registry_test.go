// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/crossmodel/crossmodel/pkg/datamodel"
)

// fakeParser serves descriptor content from memory.
type fakeParser struct {
	mu    sync.Mutex
	files map[string]string
}

func newFakeParser() *fakeParser {
	return &fakeParser{files: make(map[string]string)}
}

func (p *fakeParser) set(u, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[u] = content
}

func (p *fakeParser) delete(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, u)
}

func (p *fakeParser) Parse(_ context.Context, u string) (*datamodel.Info, bool) {
	p.mu.Lock()
	content, ok := p.files[u]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	info, err := datamodel.Parse(u, []byte(content))
	if err != nil {
		return nil, false
	}
	return info, true
}

// eventLog records events in emission order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) listen(_ context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, string(e.Kind)+":"+e.Info.ID)
	return nil
}

func (l *eventLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	return out
}

func descriptor(id, version string, deps ...string) string {
	s := "datamodel:\n  id: " + id + "\n"
	if version != "" {
		s += "  version: " + version + "\n"
	}
	if len(deps) > 0 {
		s += "  dependencies:\n"
		for _, d := range deps {
			s += "    - datamodel: " + d + "\n      version: 1.0.0\n"
		}
	}
	return s
}

func newTestRegistry(t *testing.T) (*Registry, *fakeParser, *eventLog) {
	t.Helper()
	p := newFakeParser()
	r := New(p)
	events := &eventLog{}
	r.OnUpdate(events.listen)
	return r, p, events
}

func TestNewPanicsWithoutParser(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("New(nil) did not panic")
		}
	}()
	New(nil)
}

func TestAddOrReplaceLifecycle(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	r, p, events := newTestRegistry(t)
	const u = "file:///ws/a/datamodel.cm"

	p.set(u, descriptor("A", "1.0.0"))
	if got := r.AddOrReplace(ctx, u); !slices.Equal(got, []string{"A@1.0.0"}) {
		t.Fatalf("add: affected = %v", got)
	}
	if got := events.take(); !slices.Equal(got, []string{"added:A@1.0.0"}) {
		t.Errorf("add: events = %v", got)
	}

	// Identical content: no-op, no events.
	if got := r.AddOrReplace(ctx, u); got != nil {
		t.Errorf("re-add: affected = %v, want nil", got)
	}
	if got := events.take(); len(got) != 0 {
		t.Errorf("re-add: events = %v, want none", got)
	}

	// Same id, different content: in-place refresh.
	p.set(u, descriptor("A", "1.0.0", "Core"))
	if got := r.AddOrReplace(ctx, u); !slices.Equal(got, []string{"A@1.0.0"}) {
		t.Errorf("refresh: affected = %v", got)
	}
	if got := events.take(); !slices.Equal(got, []string{"updated:A@1.0.0"}) {
		t.Errorf("refresh: events = %v", got)
	}

	// Id change: removal before addition.
	p.set(u, descriptor("A", "2.0.0"))
	if got := r.AddOrReplace(ctx, u); !slices.Equal(got, []string{"A@1.0.0", "A@2.0.0"}) {
		t.Errorf("replace: affected = %v", got)
	}
	if got := events.take(); !slices.Equal(got, []string{"removed:A@1.0.0", "added:A@2.0.0"}) {
		t.Errorf("replace: events = %v", got)
	}
	if _, ok := r.InfoForID("A@1.0.0"); ok {
		t.Error("old id still registered")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	// Parse failure on update degrades to deletion.
	p.set(u, "datamodel: [")
	if got := r.AddOrReplace(ctx, u); !slices.Equal(got, []string{"A@2.0.0"}) {
		t.Errorf("broken: affected = %v", got)
	}
	if got := events.take(); !slices.Equal(got, []string{"removed:A@2.0.0"}) {
		t.Errorf("broken: events = %v", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}

	// Still broken: silence.
	if got := r.AddOrReplace(ctx, u); got != nil {
		t.Errorf("still broken: affected = %v", got)
	}
}

func TestAddOrReplaceIgnoresUnknown(t *testing.T) {
	t.Parallel()

	r, p, events := newTestRegistry(t)
	const u = "file:///ws/loose/datamodel.cm"
	p.set(u, "datamodel:\n  name: Loose\n")

	if got := r.AddOrReplace(t.Context(), u); got != nil {
		t.Errorf("affected = %v, want nil", got)
	}
	if got := r.AddOrReplace(t.Context(), "file:///ws/missing/datamodel.cm"); got != nil {
		t.Errorf("missing: affected = %v, want nil", got)
	}
	if r.Len() != 0 || len(events.take()) != 0 {
		t.Error("unknown descriptor must not register")
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	r, p, events := newTestRegistry(t)
	const u = "file:///ws/a/datamodel.cm"
	p.set(u, descriptor("A", "1.0.0"))
	r.AddOrReplace(ctx, u)
	events.take()

	p.delete(u)
	if got := r.Remove(ctx, u); !slices.Equal(got, []string{"A@1.0.0"}) {
		t.Errorf("Remove() = %v", got)
	}
	if got := events.take(); !slices.Equal(got, []string{"removed:A@1.0.0"}) {
		t.Errorf("events = %v", got)
	}
	if got := r.Remove(ctx, u); got != nil {
		t.Errorf("second Remove() = %v, want nil", got)
	}
}

func TestEditorDescriptorShadowsDiskPackage(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	r, p, events := newTestRegistry(t)
	const disk = "file:///ws/b/datamodel.cm"
	const buffer = "inmemory:///ws/b/datamodel.cm"
	p.set(disk, descriptor("B", "1.0.0"))
	r.AddOrReplace(ctx, disk)
	events.take()

	p.set(buffer, descriptor("B", "1.0.0", "A"))
	if got := r.AddOrReplace(ctx, buffer); !slices.Equal(got, []string{"B@1.0.0"}) {
		t.Errorf("buffer add: affected = %v", got)
	}
	if got := events.take(); !slices.Equal(got, []string{"updated:B@1.0.0"}) {
		t.Errorf("buffer add: events = %v", got)
	}
	if r.Len() != 1 || len(r.Conflicts()) != 0 {
		t.Fatalf("Len() = %d, Conflicts() = %v; the buffer must not register a second package", r.Len(), r.Conflicts())
	}
	info, _ := r.Get(disk)
	if info == nil || len(info.DependencyIDs()) != 1 {
		t.Errorf("disk package = %v, want the buffer's dependencies", info)
	}

	// Closing the buffer falls back to the disk content.
	p.delete(buffer)
	if got := r.Remove(ctx, buffer); !slices.Equal(got, []string{"B@1.0.0"}) {
		t.Errorf("buffer remove: affected = %v", got)
	}
	info, _ = r.Get(disk)
	if info == nil || len(info.DependencyIDs()) != 0 {
		t.Errorf("disk package = %v, want the disk dependencies", info)
	}
}

func TestDuplicateIDLastRegisteredWins(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	r, p, _ := newTestRegistry(t)
	first, second := "file:///ws/one/datamodel.cm", "file:///ws/two/datamodel.cm"
	p.set(first, descriptor("Dup", "1.0.0"))
	p.set(second, descriptor("Dup", "1.0.0"))
	r.AddOrReplace(ctx, first)
	r.AddOrReplace(ctx, second)

	info, ok := r.InfoForID("Dup@1.0.0")
	if !ok || info.URI != second {
		t.Errorf("InfoForID() = %v, want %s", info, second)
	}
	if got := r.Conflicts()["Dup@1.0.0"]; !slices.Equal(got, []string{first, second}) {
		t.Errorf("Conflicts() = %v", got)
	}
	if _, ok := r.Get(first); !ok {
		t.Error("first registration must stay queryable by uri")
	}

	r.Remove(ctx, second)
	info, ok = r.InfoForID("Dup@1.0.0")
	if !ok || info.URI != first {
		t.Errorf("after removal InfoForID() = %v, want %s", info, first)
	}
	if len(r.Conflicts()) != 0 {
		t.Errorf("Conflicts() = %v, want none", r.Conflicts())
	}
}

func TestInfoForURIDeepestAncestor(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	r, p, _ := newTestRegistry(t)
	p.set("file:///ws/datamodel.cm", descriptor("outer", "1.0.0"))
	p.set("file:///ws/sub/datamodel.cm", descriptor("inner", "1.0.0"))
	r.AddOrReplace(ctx, "file:///ws/datamodel.cm")
	r.AddOrReplace(ctx, "file:///ws/sub/datamodel.cm")

	tests := []struct {
		uri  string
		want string
	}{
		{"file:///ws/sub/file.x", "inner@1.0.0"},
		{"file:///ws/sub/deeper/file.x", "inner@1.0.0"},
		{"file:///ws/file.x", "outer@1.0.0"},
		{"file:///ws/subway/file.x", "outer@1.0.0"},
		{"file:///ws/sub/datamodel.cm", "inner@1.0.0"},
		{"file:///elsewhere/file.x", datamodel.UnknownID},
		{"inmemory:///ws/sub/file.x", "inner@1.0.0"},
		{"inmemory://editor/ws/file.x", "outer@1.0.0"},
		{"", datamodel.UnknownID},
	}

	for _, tt := range tests {
		if got := r.IDForURI(tt.uri); got != tt.want {
			t.Errorf("IDForURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestAllKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	r, p, _ := newTestRegistry(t)
	for _, id := range []string{"C", "A", "B"} {
		u := "file:///ws/" + id + "/datamodel.cm"
		p.set(u, descriptor(id, "1.0.0"))
		r.AddOrReplace(ctx, u)
	}
	// An in-place refresh keeps the position.
	p.set("file:///ws/C/datamodel.cm", descriptor("C", "1.0.0", "A"))
	r.AddOrReplace(ctx, "file:///ws/C/datamodel.cm")

	var ids []string
	for _, info := range r.All() {
		ids = append(ids, info.ID)
	}
	if !slices.Equal(ids, []string{"C@1.0.0", "A@1.0.0", "B@1.0.0"}) {
		t.Errorf("All() = %v", ids)
	}
}
