// SPDX-License-Identifier: MPL-2.0

// Package workspace tracks workspace documents and rebuilds them in batches.
//
// A build batch is a list of changed and deleted document URIs. Update
// listeners see the batch first and may rewrite its changed list; the
// builder then reloads changed documents, picks every other document whose
// links may be stale, and moves the whole set through the parse, link and
// validate phases. Batches are serialized: a batch runs to completion before
// the next one starts.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/crossmodel/crossmodel/internal/logging"
	"github.com/crossmodel/crossmodel/internal/notify"
	"github.com/crossmodel/crossmodel/internal/uri"
	"github.com/crossmodel/crossmodel/internal/vfs"
	"github.com/crossmodel/crossmodel/pkg/ast"
	"github.com/crossmodel/crossmodel/pkg/parser"

	"github.com/charmbracelet/log"
)

type (
	// Batch is the set of URIs a build processes. Update listeners may
	// rewrite Changed in place.
	Batch struct {
		Changed []string
		Deleted []string
	}

	// UpdateListener runs before a batch is built.
	UpdateListener func(ctx context.Context, batch *Batch) error

	// PhaseListener runs after the batch's documents reached a build state.
	PhaseListener func(ctx context.Context, docs []*Document) error

	// Linker resolves the references of a parsed document.
	Linker interface {
		Link(ctx context.Context, doc *Document) ([]Link, []Diagnostic)
	}

	// Validator checks a linked document.
	Validator interface {
		Validate(ctx context.Context, doc *Document) []Diagnostic
	}

	// Result summarizes one finished batch.
	Result struct {
		Changed []string
		Deleted []string
		// Rebuilt lists every document that went through the build phases,
		// including documents re-queued only for relinking.
		Rebuilt []string
	}

	// BuilderOption configures a Builder during construction.
	BuilderOption func(*Builder)

	// Builder runs build batches over a Store.
	Builder struct {
		store      *Store
		fs         vfs.FileSystem
		logger     *log.Logger
		extensions []string
		bufferOnly func(string) bool
		linker     Linker
		validator  Validator

		mu sync.Mutex // serializes batches

		listenMu       sync.Mutex
		updateHandlers []UpdateListener
		phaseHandlers  map[State][]PhaseListener

		built *notify.Emitter[*Result]
	}
)

// WithBuilderLogger sets the builder's logger.
func WithBuilderLogger(l *log.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithExtensions restricts the documents the builder tracks to the given
// file extensions (default ".cm").
func WithExtensions(exts ...string) BuilderOption {
	return func(b *Builder) {
		if len(exts) > 0 {
			b.extensions = slices.Clone(exts)
		}
	}
}

// WithBufferOnly marks documents whose open buffers are tracked but which
// never go through the build phases, such as package descriptors.
func WithBufferOnly(match func(uri string) bool) BuilderOption {
	return func(b *Builder) {
		b.bufferOnly = match
	}
}

// WithLinker sets the linker used in the link phase.
func WithLinker(l Linker) BuilderOption {
	return func(b *Builder) {
		b.linker = l
	}
}

// WithValidator sets the validator used in the validate phase.
func WithValidator(v Validator) BuilderOption {
	return func(b *Builder) {
		b.validator = v
	}
}

// NewBuilder creates a Builder. It panics if store or fs is nil.
func NewBuilder(store *Store, fs vfs.FileSystem, opts ...BuilderOption) *Builder {
	if store == nil {
		panic("workspace: nil document store")
	}
	if fs == nil {
		panic("workspace: nil file system")
	}
	b := &Builder{
		store:         store,
		fs:            fs,
		extensions:    []string{".cm"},
		phaseHandlers: make(map[State][]PhaseListener),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrDiscard(b.logger)
	b.built = notify.NewEmitter[*Result]("build", b.logger)
	return b
}

// SetLinker replaces the linker. It must not be called during a build.
func (b *Builder) SetLinker(l Linker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linker = l
}

// SetValidator replaces the validator. It must not be called during a build.
func (b *Builder) SetValidator(v Validator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validator = v
}

// Store returns the document store the builder writes to.
func (b *Builder) Store() *Store { return b.store }

// OnUpdate registers a listener that sees every batch before it is built.
// Listeners run sequentially in registration order.
func (b *Builder) OnUpdate(l UpdateListener) {
	b.listenMu.Lock()
	defer b.listenMu.Unlock()
	b.updateHandlers = append(b.updateHandlers, l)
}

// OnBuildPhase registers a listener for documents reaching state.
func (b *Builder) OnBuildPhase(state State, l PhaseListener) {
	b.listenMu.Lock()
	defer b.listenMu.Unlock()
	b.phaseHandlers[state] = append(b.phaseHandlers[state], l)
}

// OnBuilt subscribes to finished batches.
func (b *Builder) OnBuilt(l notify.Listener[*Result]) *notify.Subscription {
	return b.built.Subscribe(l)
}

// Accepts reports whether u has one of the tracked document extensions.
func (b *Builder) Accepts(u string) bool {
	base := uri.Base(u)
	for _, ext := range b.extensions {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}

// Source returns the parsed content at u without tracking it: the open
// editor buffer when there is one, the file content otherwise.
func (b *Builder) Source(ctx context.Context, u string) (*ast.Source, error) {
	u = uri.Normalize(u)
	if doc, ok := b.store.Get(u); ok && doc.Open {
		return &ast.Source{URI: u, Content: doc.Text, Result: parser.Parse(u, doc.Text)}, nil
	}
	data, err := b.fs.ReadFile(ctx, u)
	if err != nil {
		return nil, err
	}
	return &ast.Source{URI: u, Content: data, Result: parser.Parse(u, data)}, nil
}

// Open tracks an editor buffer for u and builds it.
func (b *Builder) Open(ctx context.Context, u string, text []byte) (*Result, error) {
	u = uri.Normalize(u)
	doc := &Document{URI: u, Text: slices.Clone(text), Open: true, Version: 1}
	if prev, ok := b.store.Get(u); ok {
		doc.Version = prev.Version + 1
	}
	b.store.Put(doc)
	return b.Update(ctx, []string{u}, nil)
}

// Close drops the editor buffer for u and rebuilds from the file system.
func (b *Builder) Close(ctx context.Context, u string) (*Result, error) {
	u = uri.Normalize(u)
	doc, ok := b.store.Get(u)
	if !ok || !doc.Open {
		return &Result{}, nil
	}
	c := doc.Invalidated()
	c.Open = false
	b.store.Put(c)
	return b.Update(ctx, []string{u}, nil)
}

// Update builds one batch. Cancellation is checked between phases, so a
// cancelled batch leaves documents in an intermediate state that the next
// batch touching them repairs.
func (b *Builder) Update(ctx context.Context, changed, deleted []string) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := &Batch{Changed: normalizeAll(changed), Deleted: normalizeAll(deleted)}
	for _, l := range b.updateListeners() {
		if err := l(ctx, batch); err != nil {
			b.logger.Error("update listener failed", "error", err)
		}
	}
	batch.Changed = dedupe(normalizeAll(batch.Changed))

	res := &Result{Changed: batch.Changed, Deleted: batch.Deleted}
	touched := make(map[string]bool, len(batch.Changed)+len(batch.Deleted))

	for _, u := range batch.Deleted {
		if b.store.Delete(u) {
			touched[u] = true
		}
	}

	var rebuild []*Document
	queued := make(map[string]bool)
	for _, u := range batch.Changed {
		if !b.Accepts(u) || b.isBufferOnly(u) {
			continue
		}
		doc, err := b.load(ctx, u)
		if err != nil {
			if errors.Is(err, vfs.ErrNotFound) && b.store.Delete(u) {
				touched[u] = true
				b.logger.Debug("changed document vanished", "uri", u)
				continue
			}
			b.logger.Warn("cannot load document", "uri", u, "error", err)
			continue
		}
		touched[u] = true
		queued[u] = true
		b.store.Put(doc)
		rebuild = append(rebuild, doc)
	}

	// Documents linked against anything touched, or with unresolved links,
	// may resolve differently now.
	for _, doc := range b.store.All() {
		if queued[doc.URI] || b.isBufferOnly(doc.URI) {
			continue
		}
		if doc.State == StateChanged || doc.referencesAny(touched) || len(doc.Unresolved()) > 0 {
			queued[doc.URI] = true
			inv := doc.Invalidated()
			b.store.Put(inv)
			rebuild = append(rebuild, inv)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.build(ctx, rebuild); err != nil {
		return nil, err
	}

	for _, d := range rebuild {
		res.Rebuilt = append(res.Rebuilt, d.URI)
	}
	b.built.Emit(ctx, res)
	return res, nil
}

func (b *Builder) isBufferOnly(u string) bool {
	return b.bufferOnly != nil && b.bufferOnly(u)
}

// load returns a fresh StateChanged snapshot of u with current text.
func (b *Builder) load(ctx context.Context, u string) (*Document, error) {
	prev, tracked := b.store.Get(u)
	if tracked && prev.Open {
		doc := prev.Invalidated()
		doc.Result = nil
		return doc, nil
	}

	data, err := b.fs.ReadFile(ctx, u)
	if err != nil {
		return nil, err
	}
	doc := &Document{URI: u, Text: data, Version: 1}
	if tracked {
		doc.Version = prev.Version
		if string(prev.Text) != string(data) {
			doc.Version++
		} else {
			doc.Result = prev.Result
		}
	}
	return doc, nil
}

func (b *Builder) build(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	for i, doc := range docs {
		next := doc.clone()
		if next.Result == nil {
			next.Result = parser.Parse(next.URI, next.Text)
		}
		next.State = StateParsed
		docs[i] = next
		b.store.Put(next)
	}
	if err := b.phase(ctx, StateParsed, docs); err != nil {
		return err
	}

	for i, doc := range docs {
		next := doc.clone()
		if b.linker != nil && next.Root() != nil {
			links, diags := b.linker.Link(ctx, next)
			next.Links = links
			next.Diagnostics = append(next.Diagnostics, diags...)
		}
		next.State = StateLinked
		docs[i] = next
		b.store.Put(next)
	}
	if err := b.phase(ctx, StateLinked, docs); err != nil {
		return err
	}

	for i, doc := range docs {
		next := doc.clone()
		next.Diagnostics = append(parseDiagnostics(next), next.Diagnostics...)
		if b.validator != nil && next.Root() != nil {
			next.Diagnostics = append(next.Diagnostics, b.validator.Validate(ctx, next)...)
		}
		next.State = StateValidated
		docs[i] = next
		b.store.Put(next)
	}
	return b.phase(ctx, StateValidated, docs)
}

func (b *Builder) phase(ctx context.Context, state State, docs []*Document) error {
	b.listenMu.Lock()
	handlers := slices.Clone(b.phaseHandlers[state])
	b.listenMu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, docs); err != nil {
			b.logger.Error("build phase listener failed", "phase", state, "error", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("build interrupted after %s phase: %w", state, err)
	}
	return nil
}

func (b *Builder) updateListeners() []UpdateListener {
	b.listenMu.Lock()
	defer b.listenMu.Unlock()
	return slices.Clone(b.updateHandlers)
}

func parseDiagnostics(doc *Document) []Diagnostic {
	if doc.Result == nil {
		return nil
	}
	var out []Diagnostic
	for _, e := range doc.Result.Errors() {
		out = append(out, Diagnostic{
			Severity: SeverityError,
			Code:     CodeParseError,
			Message:  e.Message,
			URI:      doc.URI,
			Line:     e.Line,
			Column:   e.Column,
		})
	}
	return out
}

func normalizeAll(uris []string) []string {
	out := make([]string, 0, len(uris))
	for _, u := range uris {
		if n := uri.Normalize(u); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func dedupe(uris []string) []string {
	seen := make(map[string]bool, len(uris))
	out := uris[:0]
	for _, u := range uris {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
