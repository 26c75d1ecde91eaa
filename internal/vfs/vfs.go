// SPDX-License-Identifier: MPL-2.0

// Package vfs is the file system abstraction the workspace reads through.
//
// The default implementation is backed by github.com/viant/afs, which serves
// file:// and mem:// URLs (and any other registered scheme) behind one API.
// Entry URIs are always built from the listed directory URI so they share its
// scheme and authority.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/crossmodel/crossmodel/internal/uri"

	"github.com/viant/afs"
	_ "github.com/viant/afs/mem" // registers the mem:// scheme
)

// ErrNotFound is returned when a URI does not exist.
var ErrNotFound = errors.New("not found")

type (
	// Entry is one child of a listed directory.
	Entry struct {
		URI         string
		IsFile      bool
		IsDirectory bool
	}

	// FileSystem lists directories and reads files by URI.
	FileSystem interface {
		ReadDirectory(ctx context.Context, uri string) ([]Entry, error)
		ReadFile(ctx context.Context, uri string) ([]byte, error)
	}

	// AFS adapts an afs.Service to FileSystem.
	AFS struct {
		service afs.Service
	}
)

// New returns a FileSystem backed by service, or by afs.New() when nil.
func New(service afs.Service) *AFS {
	if service == nil {
		service = afs.New()
	}
	return &AFS{service: service}
}

// Service returns the underlying afs service.
func (a *AFS) Service() afs.Service {
	return a.service
}

// ReadDirectory returns the children of the directory at u sorted by URI, so
// walks are deterministic whatever order the backing store lists them in.
func (a *AFS) ReadDirectory(ctx context.Context, u string) ([]Entry, error) {
	u = uri.Normalize(u)
	objects, err := a.service.List(ctx, Location(u))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", u, err)
	}

	self := uri.Path(u)
	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		if uri.Path(obj.URL()) == self {
			continue
		}
		name := strings.TrimSuffix(obj.Name(), "/")
		if name == "" {
			continue
		}
		entries = append(entries, Entry{
			URI:         uri.Child(u, name),
			IsFile:      !obj.IsDir(),
			IsDirectory: obj.IsDir(),
		})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.URI, b.URI) })
	return entries, nil
}

// ReadFile returns the content of the file at u.
func (a *AFS) ReadFile(ctx context.Context, u string) ([]byte, error) {
	u = uri.Normalize(u)
	ok, err := a.service.Exists(ctx, Location(u))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", u, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", u, ErrNotFound)
	}
	data, err := a.service.DownloadWithURL(ctx, Location(u))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return data, nil
}

// Exists reports whether u exists.
func (a *AFS) Exists(ctx context.Context, u string) bool {
	ok, err := a.service.Exists(ctx, Location(uri.Normalize(u)))
	return err == nil && ok
}

// Location converts a workspace URI to the URL afs expects. File URIs become
// plain absolute paths; other schemes pass through.
func Location(u string) string {
	scheme, _, p := uri.Split(u)
	if scheme == uri.DefaultScheme {
		return p
	}
	return u
}
