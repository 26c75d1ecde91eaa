// SPDX-License-Identifier: MPL-2.0

// Package datamodel describes CrossModel data model packages.
//
// A package is the directory that contains a descriptor file (datamodel.cm).
// Its identity is the descriptor URI; its id is "<declared id>@<version>" and
// is the unit of dependency. Documents below the descriptor directory belong
// to the package unless a deeper descriptor claims them.
package datamodel

import (
	"slices"
	"strings"
	"unicode"

	"github.com/crossmodel/crossmodel/internal/uri"
)

const (
	// DescriptorFileName is the file that marks a package boundary.
	DescriptorFileName = "datamodel.cm"

	// UnknownID is the sentinel id of documents outside any package and of
	// packages that do not declare an id.
	UnknownID = "unknown"

	// DefaultVersion is assumed when a descriptor declares no version.
	DefaultVersion = "0.0.0"

	// Separator joins a declared id and a version into a package id.
	Separator = "@"
)

// Data model types.
const (
	TypeUnset      Type = ""
	TypeLogical    Type = "logical"
	TypeRelational Type = "relational"
	TypePhysical   Type = "physical"
)

type (
	// Type classifies a data model. The set is closed.
	Type string

	// Dependency is a declared edge to another package. The target may never
	// be registered; such edges are dead and contribute nothing.
	Dependency struct {
		DataModel string `json:"datamodel" yaml:"datamodel" toml:"datamodel"`
		Version   string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	}

	// Info is the registered record of one package.
	Info struct {
		URI           string       `json:"uri" yaml:"uri" toml:"uri"`
		Directory     string       `json:"directory" yaml:"directory" toml:"directory"`
		ID            string       `json:"id" yaml:"id" toml:"id"`
		DeclaredID    string       `json:"declaredId,omitempty" yaml:"declaredId,omitempty" toml:"declared_id,omitempty"`
		Name          string       `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
		Version       string       `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
		ReferenceName string       `json:"referenceName" yaml:"referenceName" toml:"reference_name"`
		Type          Type         `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
		Dependencies  []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
		Digest        uint64       `json:"-" yaml:"-" toml:"-"`
	}
)

// String returns the type name.
func (t Type) String() string { return string(t) }

// IsValid reports whether t is one of the known data model types.
func (t Type) IsValid() bool {
	switch t {
	case TypeUnset, TypeLogical, TypeRelational, TypePhysical:
		return true
	default:
		return false
	}
}

// ID returns the package id this dependency points at.
func (d Dependency) ID() string {
	return DeriveID(d.DataModel, d.Version)
}

// IsUnknown reports whether the package carries the sentinel id.
func (i *Info) IsUnknown() bool {
	return i == nil || i.ID == UnknownID
}

// DependencyIDs returns the ids of all declared dependencies in order.
func (i *Info) DependencyIDs() []string {
	if i == nil {
		return nil
	}
	ids := make([]string, 0, len(i.Dependencies))
	for _, d := range i.Dependencies {
		if id := d.ID(); id != UnknownID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns a deep copy of i.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	c := *i
	c.Dependencies = slices.Clone(i.Dependencies)
	return &c
}

// DeriveID builds a package id from a declared id and version. An empty
// declared id yields UnknownID; an empty version yields DefaultVersion.
func DeriveID(declaredID, version string) string {
	declaredID = strings.TrimSpace(declaredID)
	if declaredID == "" {
		return UnknownID
	}
	version = strings.TrimSpace(version)
	if version == "" {
		version = DefaultVersion
	}
	return declaredID + Separator + version
}

// ReferenceName returns a grammar-legal identifier for name: runes outside
// [A-Za-z0-9_] become underscores and a leading digit gets an underscore
// prefix. An empty result yields UnknownID.
func ReferenceName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownID
	}
	var b strings.Builder
	for i, r := range name {
		if i == 0 && unicode.IsDigit(r) {
			b.WriteByte('_')
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// IsDescriptorURI reports whether u names a package descriptor file.
func IsDescriptorURI(u string) bool {
	return u != "" && uri.Base(u) == DescriptorFileName
}
