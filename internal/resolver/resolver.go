// SPDX-License-Identifier: MPL-2.0

// Package resolver maps documents to the data model package that owns them.
//
// Lookups go through the registry's nearest-enclosing-directory search and
// are memoized per document URI in a side table. The memo is advisory: the
// build-update adapter invalidates it whenever a package may have moved, and
// entries pointing at packages that are no longer registered count as misses.
package resolver

import (
	"sync"

	"github.com/crossmodel/crossmodel/internal/uri"
	"github.com/crossmodel/crossmodel/pkg/datamodel"
)

type (
	// Index is the part of the registry the resolver reads.
	Index interface {
		InfoForURI(uri string) (*datamodel.Info, bool)
		Get(uri string) (*datamodel.Info, bool)
	}

	// Resolver memoizes document-to-package lookups.
	Resolver struct {
		index Index

		mu   sync.Mutex
		memo map[string]string // document URI -> descriptor URI
	}
)

// New creates a Resolver over index. It panics if index is nil.
func New(index Index) *Resolver {
	if index == nil {
		panic("resolver: nil package index")
	}
	return &Resolver{
		index: index,
		memo:  make(map[string]string),
	}
}

// PackageForURI returns the package owning the document at u.
func (r *Resolver) PackageForURI(u string) (*datamodel.Info, bool) {
	u = uri.Normalize(u)
	if u == "" {
		return nil, false
	}

	r.mu.Lock()
	pkgURI, ok := r.memo[u]
	r.mu.Unlock()
	if ok {
		if pkgURI == "" {
			return nil, false
		}
		if info, found := r.index.Get(pkgURI); found {
			return info, true
		}
	}

	info, found := r.index.InfoForURI(u)
	r.store(u, info)
	return info, found
}

// IDForURI returns the id of the package owning u, or datamodel.UnknownID.
func (r *Resolver) IDForURI(u string) string {
	if info, ok := r.PackageForURI(u); ok {
		return info.ID
	}
	return datamodel.UnknownID
}

// Remember resolves u and records the result without returning it.
func (r *Resolver) Remember(u string) {
	u = uri.Normalize(u)
	if u == "" {
		return
	}
	info, _ := r.index.InfoForURI(u)
	r.store(u, info)
}

// Invalidate drops the memo entries of the given documents.
func (r *Resolver) Invalidate(uris ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range uris {
		delete(r.memo, uri.Normalize(u))
	}
}

// InvalidateAll drops every memo entry.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.memo)
}

// Cached reports the memoized descriptor URI for u, if any. An empty string
// with true means u was resolved to no package.
func (r *Resolver) Cached(u string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pkgURI, ok := r.memo[uri.Normalize(u)]
	return pkgURI, ok
}

func (r *Resolver) store(u string, info *datamodel.Info) {
	pkgURI := ""
	if info != nil {
		pkgURI = info.URI
	}
	r.mu.Lock()
	r.memo[u] = pkgURI
	r.mu.Unlock()
}
