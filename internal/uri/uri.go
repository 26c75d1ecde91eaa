// SPDX-License-Identifier: MPL-2.0

// Package uri provides scheme-aware helpers for workspace document URIs.
//
// Workspace URIs take the form "scheme://authority/path". Bare paths are
// treated as file URIs. Editor buffers often use a different scheme than the
// file system (e.g. "inmemory:///ws/a.cm" vs "file:///ws/a.cm"), so ancestry
// checks compare scheme and authority explicitly and callers may substitute
// the default scheme to match on-disk package boundaries.
package uri

import (
	"path"
	"strings"

	"github.com/viant/afs/url"
)

// DefaultScheme is the scheme assumed for bare paths and used as the fallback
// when resolving in-memory documents against on-disk package boundaries.
const DefaultScheme = "file"

const schemeSeparator = "://"

// Split breaks u into its scheme, authority and cleaned absolute path.
// Bare paths yield the default scheme and an empty authority, as does the
// "localhost" authority of file URIs.
func Split(u string) (scheme, authority, p string) {
	if !strings.Contains(u, schemeSeparator) {
		return DefaultScheme, "", cleanPath(u)
	}
	scheme = strings.ToLower(url.Scheme(u, DefaultScheme))
	authority = url.Host(u)
	if scheme == DefaultScheme && authority == "localhost" {
		authority = ""
	}
	return scheme, authority, cleanPath(url.Path(u))
}

// Join assembles a URI from its components.
func Join(scheme, authority, p string) string {
	if scheme == "" {
		scheme = DefaultScheme
	}
	return scheme + schemeSeparator + authority + cleanPath(p)
}

// Normalize returns the canonical form of u: lower-case scheme, cleaned path,
// no trailing slash. Bare paths become file URIs.
func Normalize(u string) string {
	if u == "" {
		return ""
	}
	return Join(Split(u))
}

// Scheme returns the scheme of u.
func Scheme(u string) string {
	return strings.ToLower(url.Scheme(u, DefaultScheme))
}

// Path returns the path component of u.
func Path(u string) string {
	_, _, p := Split(u)
	return p
}

// Base returns the last path element of u.
func Base(u string) string {
	_, name := url.Split(Normalize(u), DefaultScheme)
	return name
}

// Dir returns the URI of the directory containing u.
func Dir(u string) string {
	u = Normalize(u)
	if Path(u) == "/" {
		return u
	}
	parent, _ := url.Split(u, DefaultScheme)
	return Normalize(parent)
}

// Child returns the URI of name inside directory dir.
func Child(dir, name string) string {
	return Normalize(url.Join(Normalize(dir), name))
}

// WithScheme returns u with its scheme replaced. Switching to the file scheme
// drops the authority since file URIs address the local file system.
func WithScheme(u, scheme string) string {
	_, a, p := Split(u)
	if scheme == DefaultScheme {
		a = ""
	}
	return Join(scheme, a, p)
}

// IsAncestorOrSelf reports whether dir equals u or is one of its ancestor
// directories. Scheme and authority must match.
func IsAncestorOrSelf(dir, u string) bool {
	ds, da, dp := Split(dir)
	us, ua, up := Split(u)
	if ds != us || da != ua {
		return false
	}
	if dp == up || dp == "/" {
		return true
	}
	return strings.HasPrefix(up, dp+"/")
}

// Rel returns the slash-separated path of u relative to dir, or "" when dir
// is not an ancestor of u.
func Rel(dir, u string) string {
	if !IsAncestorOrSelf(dir, u) {
		return ""
	}
	dp, up := Path(dir), Path(u)
	if dp == up {
		return "."
	}
	return strings.TrimPrefix(strings.TrimPrefix(up, dp), "/")
}

// FromPath converts a slash-separated absolute file path to a file URI.
func FromPath(p string) string {
	return Join(DefaultScheme, "", p)
}

func cleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
