// SPDX-License-Identifier: MPL-2.0

// Package buildupdate connects the workspace build pipeline to the package
// registry.
//
// Descriptor edits change the meaning of every document in the edited package
// and in every package that depends on it, although none of those documents'
// text changed. The Adapter intercepts each build batch, applies descriptor
// changes to the registry, computes the affected package closure and
// re-queues exactly the documents owned by affected packages.
package buildupdate

import (
	"context"
	"slices"
	"sync"

	"github.com/crossmodel/crossmodel/internal/dag"
	"github.com/crossmodel/crossmodel/internal/discovery"
	"github.com/crossmodel/crossmodel/internal/logging"
	"github.com/crossmodel/crossmodel/internal/notify"
	"github.com/crossmodel/crossmodel/internal/registry"
	"github.com/crossmodel/crossmodel/internal/resolver"
	"github.com/crossmodel/crossmodel/internal/uri"
	"github.com/crossmodel/crossmodel/internal/workspace"
	"github.com/crossmodel/crossmodel/pkg/datamodel"

	"github.com/charmbracelet/log"
)

type (
	// Option configures an Adapter during construction.
	Option func(*Adapter)

	// Adapter keeps the registry and the document store consistent across
	// build batches.
	Adapter struct {
		registry     *registry.Registry
		resolver     *resolver.Resolver
		builder      *workspace.Builder
		scanner      *discovery.Scanner
		isDescriptor func(string) bool
		logger       *log.Logger

		mu          sync.Mutex
		graph       *dag.Graph
		dirty       bool
		descriptors []string

		sub *notify.Subscription
	}
)

// WithLogger sets the adapter's logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// WithDescriptorMatcher overrides how descriptor URIs are recognized
// (default datamodel.IsDescriptorURI).
func WithDescriptorMatcher(fn func(string) bool) Option {
	return func(a *Adapter) {
		if fn != nil {
			a.isDescriptor = fn
		}
	}
}

// New creates an Adapter and subscribes it to the builder and the registry.
// It panics if any collaborator is nil.
func New(reg *registry.Registry, res *resolver.Resolver, builder *workspace.Builder, scanner *discovery.Scanner, opts ...Option) *Adapter {
	switch {
	case reg == nil:
		panic("buildupdate: nil registry")
	case res == nil:
		panic("buildupdate: nil resolver")
	case builder == nil:
		panic("buildupdate: nil builder")
	case scanner == nil:
		panic("buildupdate: nil scanner")
	}

	a := &Adapter{
		registry:     reg,
		resolver:     res,
		builder:      builder,
		scanner:      scanner,
		isDescriptor: datamodel.IsDescriptorURI,
		dirty:        true,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDiscard(a.logger)

	a.sub = reg.OnUpdate(func(context.Context, registry.Event) error {
		a.mu.Lock()
		a.dirty = true
		a.mu.Unlock()
		return nil
	})
	builder.OnUpdate(a.handleUpdate)
	builder.OnBuildPhase(workspace.StateParsed, a.handleParsed)
	return a
}

// Close unsubscribes the adapter from registry events.
func (a *Adapter) Close() {
	a.sub.Dispose()
}

// Initialize scans folders for descriptors and registers every one found,
// in folder order then walk order. It returns once all folders are done.
func (a *Adapter) Initialize(ctx context.Context, folders []string) (*discovery.Result, error) {
	res, err := a.scanner.Scan(ctx, folders, a.isDescriptor)
	if err != nil {
		return nil, err
	}
	for _, u := range res.Files {
		a.track(u)
		a.registry.AddOrReplace(ctx, u)
	}
	a.logger.Info("workspace packages loaded", "folders", len(folders), "packages", a.registry.Len())
	return res, nil
}

// Descriptors returns every descriptor URI seen so far, valid or not, in the
// order first seen.
func (a *Adapter) Descriptors() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.descriptors)
}

// Graph returns the reverse-dependency graph of the registered packages. An
// edge from A to B means B declares a dependency on A.
func (a *Adapter) Graph() *dag.Graph {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dirty || a.graph == nil {
		a.graph = buildGraph(a.registry.All())
		a.dirty = false
	}
	return a.graph
}

// AffectedClosure returns ids followed by every registered package that
// depends on one of them, directly or transitively.
func (a *Adapter) AffectedClosure(ids []string) []string {
	return a.Graph().Descendants(ids...)
}

func (a *Adapter) handleUpdate(ctx context.Context, batch *workspace.Batch) error {
	var changedDescriptors, deletedDescriptors []string
	batch.Changed = slices.DeleteFunc(batch.Changed, func(u string) bool {
		if a.isDescriptor(u) {
			changedDescriptors = append(changedDescriptors, u)
			return true
		}
		return false
	})
	for _, u := range batch.Deleted {
		if a.isDescriptor(u) {
			deletedDescriptors = append(deletedDescriptors, u)
		}
	}
	if len(changedDescriptors) == 0 && len(deletedDescriptors) == 0 {
		return nil
	}

	// Ownership before the registry moves, so documents that change owner
	// are caught through their old package as well as their new one.
	docs := a.builder.Store().All()
	before := make(map[string]string, len(docs))
	for _, doc := range docs {
		before[doc.URI] = a.resolver.IDForURI(doc.URI)
	}

	var affected []string
	for _, u := range changedDescriptors {
		a.track(u)
		affected = append(affected, a.registry.AddOrReplace(ctx, u)...)
	}
	for _, u := range deletedDescriptors {
		a.untrack(u)
		affected = append(affected, a.registry.Remove(ctx, u)...)
	}
	if len(affected) == 0 {
		return nil
	}

	closure := a.AffectedClosure(affected)
	inClosure := make(map[string]bool, len(closure))
	for _, id := range closure {
		inClosure[id] = true
	}

	a.resolver.InvalidateAll()

	deleted := make(map[string]bool, len(batch.Deleted))
	for _, u := range batch.Deleted {
		deleted[u] = true
	}
	queued := make(map[string]bool, len(batch.Changed))
	for _, u := range batch.Changed {
		queued[u] = true
	}

	var requeued []string
	for _, doc := range docs {
		// Open descriptor buffers are applied to the registry above, not built.
		if deleted[doc.URI] || a.isDescriptor(doc.URI) {
			continue
		}
		after := a.resolver.IDForURI(doc.URI)
		if !inClosure[before[doc.URI]] && !inClosure[after] {
			continue
		}
		a.builder.Store().Invalidate(doc.URI)
		if !queued[doc.URI] {
			queued[doc.URI] = true
			batch.Changed = append(batch.Changed, doc.URI)
			requeued = append(requeued, doc.URI)
		}
	}

	a.logger.Info("data model packages changed", "affected", closure, "requeued", len(requeued))
	return nil
}

func (a *Adapter) handleParsed(_ context.Context, docs []*workspace.Document) error {
	for _, doc := range docs {
		a.resolver.Remember(doc.URI)
	}
	return nil
}

func (a *Adapter) track(u string) {
	u = uri.Normalize(u)
	a.mu.Lock()
	defer a.mu.Unlock()
	if !slices.Contains(a.descriptors, u) {
		a.descriptors = append(a.descriptors, u)
	}
}

func (a *Adapter) untrack(u string) {
	u = uri.Normalize(u)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.descriptors = slices.DeleteFunc(a.descriptors, func(d string) bool { return d == u })
}

func buildGraph(infos []*datamodel.Info) *dag.Graph {
	g := dag.New()
	for _, info := range infos {
		g.AddNode(info.ID)
		for _, dep := range info.DependencyIDs() {
			g.AddEdge(dep, info.ID)
		}
	}
	return g
}
