// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"slices"
	"sync"

	"github.com/crossmodel/crossmodel/internal/uri"
)

// Store holds the tracked documents in insertion order. It is safe for
// concurrent use; documents are snapshots and are never mutated in place.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]*Document
	order []string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// Get returns the document tracked at u.
func (s *Store) Get(u string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[uri.Normalize(u)]
	return d, ok
}

// Has reports whether u is tracked.
func (s *Store) Has(u string) bool {
	_, ok := s.Get(u)
	return ok
}

// Put stores d, replacing any document at the same URI in place.
func (s *Store) Put(d *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[d.URI]; !ok {
		s.order = append(s.order, d.URI)
	}
	s.docs[d.URI] = d
}

// Delete stops tracking u. Deleting an untracked URI is a no-op.
func (s *Store) Delete(u string) bool {
	u = uri.Normalize(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[u]; !ok {
		return false
	}
	delete(s.docs, u)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == u })
	return true
}

// Invalidate resets the document at u to StateChanged. It reports whether u
// is tracked.
func (s *Store) Invalidate(u string) bool {
	u = uri.Normalize(u)
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[u]
	if !ok {
		return false
	}
	s.docs[u] = d.Invalidated()
	return true
}

// All returns every tracked document in insertion order.
func (s *Store) All() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Document, 0, len(s.order))
	for _, u := range s.order {
		out = append(out, s.docs[u])
	}
	return out
}

// URIs returns every tracked URI in insertion order.
func (s *Store) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Len returns the number of tracked documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
