// SPDX-License-Identifier: MPL-2.0

// Package parser turns CrossModel document content into an ast.ParseResult.
//
// Documents are YAML mappings with a single top-level key naming the root
// node ("datamodel", "entity" or "relationship"). Syntax errors are reported
// as lexer errors; structural problems (unknown fields, wrong types, missing
// or duplicate roots, missing ids) are reported as parser errors. Parse never
// returns a Go error: callers inspect the result.
package parser

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/crossmodel/crossmodel/pkg/ast"

	"gopkg.in/yaml.v3"
)

// document mirrors the accepted top-level keys.
type document struct {
	DataModel    *ast.DataModel    `yaml:"datamodel"`
	Entity       *ast.Entity       `yaml:"entity"`
	Relationship *ast.Relationship `yaml:"relationship"`
}

var linePattern = regexp.MustCompile(`line (\d+)`)

// Parse parses content. The uri is only used to label errors.
func Parse(uri string, content []byte) *ast.ParseResult {
	result := &ast.ParseResult{}

	if len(bytes.TrimSpace(content)) == 0 {
		result.ParserErrors = append(result.ParserErrors, ast.Error{Message: "empty document " + uri})
		return result
	}

	var node yaml.Node
	if err := yaml.Unmarshal(content, &node); err != nil {
		result.LexerErrors = append(result.LexerErrors, toError(err.Error()))
		return result
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		var typeErr *yaml.TypeError
		switch {
		case errors.As(err, &typeErr):
			for _, msg := range typeErr.Errors {
				result.ParserErrors = append(result.ParserErrors, toError(msg))
			}
		case errors.Is(err, io.EOF):
			result.ParserErrors = append(result.ParserErrors, ast.Error{Message: "empty document " + uri})
			return result
		default:
			result.ParserErrors = append(result.ParserErrors, toError(err.Error()))
			return result
		}
	}

	root, rootErrs := buildRoot(&doc, rootLine(&node))
	result.ParserErrors = append(result.ParserErrors, rootErrs...)
	result.Value = root
	return result
}

func buildRoot(doc *document, line int) (*ast.Root, []ast.Error) {
	var roots []*ast.Root
	if doc.DataModel != nil {
		roots = append(roots, &ast.Root{Kind: ast.KindDataModel, DataModel: doc.DataModel})
	}
	if doc.Entity != nil {
		roots = append(roots, &ast.Root{Kind: ast.KindEntity, Entity: doc.Entity})
	}
	if doc.Relationship != nil {
		roots = append(roots, &ast.Root{Kind: ast.KindRelationship, Relationship: doc.Relationship})
	}

	switch len(roots) {
	case 0:
		return nil, []ast.Error{{
			Message: "expected one of datamodel, entity or relationship",
			Line:    line,
			Column:  1,
		}}
	case 1:
	default:
		kinds := make([]string, len(roots))
		for i, r := range roots {
			kinds[i] = r.Kind.String()
		}
		return roots[0], []ast.Error{{
			Message: "a document declares exactly one root, found " + strings.Join(kinds, ", "),
			Line:    line,
			Column:  1,
		}}
	}

	root := roots[0]
	var errs []ast.Error
	switch root.Kind {
	case ast.KindEntity:
		errs = append(errs, requireID(root.Kind, root.Entity.ID, line)...)
		seen := make(map[string]bool, len(root.Entity.Attributes))
		for _, attr := range root.Entity.Attributes {
			if attr.ID == "" {
				errs = append(errs, ast.Error{Message: "attribute id is required", Line: line, Column: 1})
				continue
			}
			if seen[attr.ID] {
				errs = append(errs, ast.Error{Message: "duplicate attribute id " + strconv.Quote(attr.ID), Line: line, Column: 1})
			}
			seen[attr.ID] = true
		}
	case ast.KindRelationship:
		errs = append(errs, requireID(root.Kind, root.Relationship.ID, line)...)
	case ast.KindDataModel:
		// The descriptor id is optional: packages without one are unknown.
	}
	return root, errs
}

func requireID(kind ast.Kind, id string, line int) []ast.Error {
	if strings.TrimSpace(id) != "" {
		return nil
	}
	return []ast.Error{{Message: kind.String() + " id is required", Line: line, Column: 1}}
}

func rootLine(node *yaml.Node) int {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		return node.Content[0].Line
	}
	return node.Line
}

// toError extracts "line N" from a yaml.v3 message into a positioned error.
func toError(msg string) ast.Error {
	msg = strings.TrimPrefix(msg, "yaml: ")
	e := ast.Error{Message: msg}
	if m := linePattern.FindStringSubmatchIndex(msg); m != nil {
		if n, err := strconv.Atoi(msg[m[2]:m[3]]); err == nil {
			e.Line = n
			e.Column = 1
		}
		if rest := strings.TrimSpace(strings.TrimPrefix(msg[m[1]:], ":")); rest != "" {
			e.Message = rest
		}
	}
	return e
}
