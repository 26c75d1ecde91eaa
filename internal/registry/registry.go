// SPDX-License-Identifier: MPL-2.0

// Package registry tracks the data model packages of a workspace.
//
// The Registry owns two indices over the same records: by descriptor URI
// (exact, insertion-ordered) and by package id (multi-valued,
// insertion-ordered). Every mutation updates both indices under a single
// write lock so readers never observe a half-updated pair. Mutations are
// serialized with each other, and the events they cause are emitted before
// the next mutation starts.
package registry

import (
	"context"
	"slices"
	"sync"

	"github.com/crossmodel/crossmodel/internal/logging"
	"github.com/crossmodel/crossmodel/internal/notify"
	"github.com/crossmodel/crossmodel/internal/uri"
	"github.com/crossmodel/crossmodel/pkg/datamodel"

	"github.com/charmbracelet/log"
)

// Event kinds.
const (
	EventAdded   EventKind = "added"
	EventRemoved EventKind = "removed"
	EventUpdated EventKind = "updated"
)

type (
	// EventKind describes how a package changed.
	EventKind string

	// Event is delivered to OnUpdate subscribers once per logical change.
	Event struct {
		Kind EventKind
		Info *datamodel.Info
	}

	// Parser reads the descriptor at a URI. It reports false when the
	// descriptor is missing or invalid.
	Parser interface {
		Parse(ctx context.Context, uri string) (*datamodel.Info, bool)
	}

	// Option configures a Registry during construction.
	Option func(*Registry)

	// Registry is the package index of a workspace.
	Registry struct {
		parser        Parser
		logger        *log.Logger
		defaultScheme string

		// writeMu serializes mutations together with the emission of their
		// events; mu guards the index pair.
		writeMu  sync.Mutex
		mu       sync.RWMutex
		byURI    map[string]*datamodel.Info
		uriOrder []string
		byID     map[string][]string

		updates *notify.Emitter[Event]
	}
)

// WithLogger sets the logger used for conflicts and subscriber failures.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithDefaultScheme overrides the scheme retried for documents whose own
// scheme matches no package (default "file").
func WithDefaultScheme(scheme string) Option {
	return func(r *Registry) {
		if scheme != "" {
			r.defaultScheme = scheme
		}
	}
}

// New creates an empty Registry. It panics if parser is nil.
func New(parser Parser, opts ...Option) *Registry {
	if parser == nil {
		panic("registry: nil descriptor parser")
	}
	r := &Registry{
		parser:        parser,
		defaultScheme: uri.DefaultScheme,
		byURI:         make(map[string]*datamodel.Info),
		byID:          make(map[string][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	r.updates = notify.NewEmitter[Event]("registry", r.logger)
	return r
}

// OnUpdate subscribes fn to package events. Subscribers must not mutate the
// registry from inside the callback.
func (r *Registry) OnUpdate(fn notify.Listener[Event]) *notify.Subscription {
	return r.updates.Subscribe(fn)
}

// AddOrReplace parses the descriptor at u and registers the result. It
// returns the ids whose meaning changed: nil for a no-op, the id for an
// addition or in-place refresh, the old and the new id when the derived id
// changed, and the old id when a registered descriptor no longer parses.
//
// A descriptor opened under another scheme replaces the package registered
// at the same path under the default scheme instead of adding a second one.
func (r *Registry) AddOrReplace(ctx context.Context, u string) []string {
	u = uri.Normalize(u)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	return r.addOrReplace(ctx, u, r.twin(u))
}

// twin returns the default-scheme URI already registered for u, or u itself.
func (r *Registry) twin(u string) string {
	if uri.Scheme(u) == r.defaultScheme {
		return u
	}
	if key := uri.WithScheme(u, r.defaultScheme); r.has(key) {
		return key
	}
	return u
}

func (r *Registry) has(u string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byURI[u]
	return ok
}

// addOrReplace parses source and registers the result under key.
func (r *Registry) addOrReplace(ctx context.Context, source, key string) []string {
	u := key
	info, ok := r.parser.Parse(ctx, source)
	existing, _ := r.Get(u)

	if !ok || info.IsUnknown() {
		if existing == nil {
			return nil
		}
		r.logger.Warn("data model descriptor no longer valid, removing package", "uri", u, "id", existing.ID)
		r.remove(existing)
		r.updates.Emit(ctx, Event{Kind: EventRemoved, Info: existing})
		return []string{existing.ID}
	}
	info.URI = u
	info.Directory = uri.Dir(u)

	if existing != nil && existing.ID == info.ID {
		if existing.Digest == info.Digest {
			return nil
		}
		r.mu.Lock()
		r.byURI[u] = info
		r.mu.Unlock()
		r.updates.Emit(ctx, Event{Kind: EventUpdated, Info: info})
		return []string{info.ID}
	}

	var affected []string
	if existing != nil {
		r.remove(existing)
		r.updates.Emit(ctx, Event{Kind: EventRemoved, Info: existing})
		affected = append(affected, existing.ID)
	}

	r.mu.Lock()
	others := slices.Clone(r.byID[info.ID])
	r.byURI[u] = info
	r.uriOrder = append(r.uriOrder, u)
	r.byID[info.ID] = append(r.byID[info.ID], u)
	r.mu.Unlock()

	if len(others) > 0 {
		r.logger.Warn("duplicate data model id", "id", info.ID, "uri", u, "existing", others)
	}
	r.updates.Emit(ctx, Event{Kind: EventAdded, Info: info})
	return append(affected, info.ID)
}

// Remove unregisters the package whose descriptor is u and returns its id.
// Removing a descriptor that shadowed a default-scheme package reloads the
// package from its default-scheme descriptor.
func (r *Registry) Remove(ctx context.Context, u string) []string {
	u = uri.Normalize(u)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	existing, ok := r.Get(u)
	if !ok {
		if key := r.twin(u); key != u {
			return r.addOrReplace(ctx, key, key)
		}
		return nil
	}
	r.remove(existing)
	r.updates.Emit(ctx, Event{Kind: EventRemoved, Info: existing})
	return []string{existing.ID}
}

func (r *Registry) remove(info *datamodel.Info) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byURI, info.URI)
	r.uriOrder = slices.DeleteFunc(r.uriOrder, func(u string) bool { return u == info.URI })
	uris := slices.DeleteFunc(r.byID[info.ID], func(u string) bool { return u == info.URI })
	if len(uris) == 0 {
		delete(r.byID, info.ID)
	} else {
		r.byID[info.ID] = uris
	}
}

// Get returns the package registered exactly at descriptor URI u.
func (r *Registry) Get(u string) (*datamodel.Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byURI[uri.Normalize(u)]
	return info, ok
}

// InfoForURI returns the package owning u: the package registered at u, else
// the package with the deepest directory enclosing u. When nothing matches
// and u uses another scheme, the lookup is retried once with the default
// scheme so in-memory documents resolve against on-disk packages.
func (r *Registry) InfoForURI(u string) (*datamodel.Info, bool) {
	if u == "" {
		return nil, false
	}
	u = uri.Normalize(u)
	if info, ok := r.lookup(u); ok {
		return info, true
	}
	if uri.Scheme(u) != r.defaultScheme {
		return r.lookup(uri.WithScheme(u, r.defaultScheme))
	}
	return nil, false
}

func (r *Registry) lookup(u string) (*datamodel.Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.byURI[u]; ok {
		return info, true
	}
	var (
		best     *datamodel.Info
		bestPath int
	)
	for _, key := range r.uriOrder {
		info := r.byURI[key]
		if !uri.IsAncestorOrSelf(info.Directory, u) {
			continue
		}
		if n := len(uri.Path(info.Directory)); best == nil || n > bestPath {
			best, bestPath = info, n
		}
	}
	return best, best != nil
}

// IDForURI returns the id of the package owning u, or datamodel.UnknownID.
func (r *Registry) IDForURI(u string) string {
	if info, ok := r.InfoForURI(u); ok {
		return info.ID
	}
	return datamodel.UnknownID
}

// InfoForID returns the authoritative package for id. When several
// descriptors declare the same id, the most recently registered one wins.
func (r *Registry) InfoForID(id string) (*datamodel.Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.infoForID(id)
}

func (r *Registry) infoForID(id string) (*datamodel.Info, bool) {
	uris := r.byID[id]
	if len(uris) == 0 {
		return nil, false
	}
	return r.byURI[uris[len(uris)-1]], true
}

// URIsForID returns every descriptor URI registered under id, oldest first.
func (r *Registry) URIsForID(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byID[id])
}

// Conflicts returns the ids registered by more than one descriptor.
func (r *Registry) Conflicts() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string)
	for id, uris := range r.byID {
		if len(uris) > 1 {
			out[id] = slices.Clone(uris)
		}
	}
	return out
}

// All returns a snapshot of every registered package in registration order.
func (r *Registry) All() []*datamodel.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*datamodel.Info, 0, len(r.uriOrder))
	for _, u := range r.uriOrder {
		out = append(out, r.byURI[u])
	}
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.uriOrder)
}
