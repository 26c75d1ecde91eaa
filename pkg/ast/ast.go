// SPDX-License-Identifier: MPL-2.0

// Package ast defines the syntax tree produced for CrossModel documents.
//
// A document holds exactly one root node: a data model descriptor, an entity
// or a relationship. Cross-document references are kept as raw text together
// with their source position so that linking can happen after parsing.
package ast

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Root kinds.
const (
	KindDataModel    Kind = "datamodel"
	KindEntity       Kind = "entity"
	KindRelationship Kind = "relationship"
)

// Reference kinds.
const (
	RefEntity    RefKind = "entity"
	RefAttribute RefKind = "attribute"
)

type (
	// Kind identifies which root node a document carries.
	Kind string

	// RefKind identifies what a cross-reference points at.
	RefKind string

	// Root is the top-level node of a document. Exactly one of DataModel,
	// Entity or Relationship is set, matching Kind.
	Root struct {
		Kind         Kind
		DataModel    *DataModel
		Entity       *Entity
		Relationship *Relationship
	}

	// DataModel is the package descriptor node.
	DataModel struct {
		ID           string       `yaml:"id"`
		Name         string       `yaml:"name,omitempty"`
		Description  string       `yaml:"description,omitempty"`
		Type         string       `yaml:"type,omitempty"`
		Version      string       `yaml:"version,omitempty"`
		Dependencies []Dependency `yaml:"dependencies,omitempty"`
	}

	// Dependency names another data model by id and version.
	Dependency struct {
		DataModel string `yaml:"datamodel"`
		Version   string `yaml:"version,omitempty"`
	}

	// Entity declares a named set of attributes.
	Entity struct {
		ID          string      `yaml:"id"`
		Name        string      `yaml:"name,omitempty"`
		Description string      `yaml:"description,omitempty"`
		Attributes  []Attribute `yaml:"attributes,omitempty"`
	}

	// Attribute is a single entity attribute.
	Attribute struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name,omitempty"`
		Datatype    string `yaml:"datatype,omitempty"`
		Identifier  bool   `yaml:"identifier,omitempty"`
		Description string `yaml:"description,omitempty"`
	}

	// Relationship links a parent and a child entity.
	Relationship struct {
		ID          string                  `yaml:"id"`
		Name        string                  `yaml:"name,omitempty"`
		Description string                  `yaml:"description,omitempty"`
		Parent      Reference               `yaml:"parent"`
		Child       Reference               `yaml:"child"`
		Attributes  []RelationshipAttribute `yaml:"attributes,omitempty"`
	}

	// RelationshipAttribute pairs a parent attribute with a child attribute.
	RelationshipAttribute struct {
		Parent Reference `yaml:"parent"`
		Child  Reference `yaml:"child"`
	}

	// Reference is an unresolved cross-reference as written in the source.
	Reference struct {
		Text   string
		Line   int
		Column int
	}

	// ReferenceSite describes where a reference occurs and what it may target.
	ReferenceSite struct {
		Reference Reference
		Kind      RefKind
		// Container is the reference text of the entity that scopes an
		// attribute reference (the relationship's parent or child), or "".
		Container string
		// Property names the field holding the reference, e.g. "parent" or
		// "attributes[0].child".
		Property string
	}
)

// String returns the kind name.
func (k Kind) String() string { return string(k) }

// IsZero reports whether the reference was not written at all.
func (r Reference) IsZero() bool { return r.Text == "" }

// String returns the reference text.
func (r Reference) String() string { return r.Text }

// UnmarshalYAML records the scalar text and its source position.
func (r *Reference) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return &yaml.TypeError{Errors: []string{
			fmt.Sprintf("line %d: reference must be a scalar, got %s", node.Line, nodeKindName(node.Kind)),
		}}
	}
	r.Text = strings.TrimSpace(node.Value)
	r.Line = node.Line
	r.Column = node.Column
	return nil
}

// MarshalYAML writes the reference back as plain text.
func (r Reference) MarshalYAML() (any, error) {
	return r.Text, nil
}

// ID returns the id of whichever root node is set.
func (r *Root) ID() string {
	if r == nil {
		return ""
	}
	switch r.Kind {
	case KindDataModel:
		return r.DataModel.ID
	case KindEntity:
		return r.Entity.ID
	case KindRelationship:
		return r.Relationship.ID
	default:
		return ""
	}
}

// References returns every cross-reference in the document, in source order.
func (r *Root) References() []ReferenceSite {
	if r == nil || r.Kind != KindRelationship || r.Relationship == nil {
		return nil
	}
	rel := r.Relationship

	var sites []ReferenceSite
	if !rel.Parent.IsZero() {
		sites = append(sites, ReferenceSite{Reference: rel.Parent, Kind: RefEntity, Property: "parent"})
	}
	if !rel.Child.IsZero() {
		sites = append(sites, ReferenceSite{Reference: rel.Child, Kind: RefEntity, Property: "child"})
	}
	for i, attr := range rel.Attributes {
		if !attr.Parent.IsZero() {
			sites = append(sites, ReferenceSite{
				Reference: attr.Parent,
				Kind:      RefAttribute,
				Container: rel.Parent.Text,
				Property:  fmt.Sprintf("attributes[%d].parent", i),
			})
		}
		if !attr.Child.IsZero() {
			sites = append(sites, ReferenceSite{
				Reference: attr.Child,
				Kind:      RefAttribute,
				Container: rel.Child.Text,
				Property:  fmt.Sprintf("attributes[%d].child", i),
			})
		}
	}
	return sites
}

func nodeKindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown node"
	}
}
