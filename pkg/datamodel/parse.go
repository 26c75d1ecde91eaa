// SPDX-License-Identifier: MPL-2.0

package datamodel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crossmodel/crossmodel/internal/logging"
	"github.com/crossmodel/crossmodel/internal/uri"
	"github.com/crossmodel/crossmodel/pkg/ast"
	"github.com/crossmodel/crossmodel/pkg/parser"

	"github.com/charmbracelet/log"
	"github.com/minio/highwayhash"
	"golang.org/x/mod/semver"
)

var (
	// ErrInvalidDescriptor is returned when descriptor content cannot be
	// turned into a package record.
	ErrInvalidDescriptor = errors.New("invalid data model descriptor")

	digestKey = []byte("0123456789ABCDEF0123456789ABCDEF")
)

type (
	// ParseError carries the lexer and parser errors of a descriptor. It wraps
	// ErrInvalidDescriptor for errors.Is() compatibility.
	ParseError struct {
		URI          string
		LexerErrors  []ast.Error
		ParserErrors []ast.Error
	}

	// DocumentProvider hands out parsed documents by URI.
	DocumentProvider interface {
		Source(ctx context.Context, uri string) (*ast.Source, error)
	}

	// DescriptorParser adapts Parse to a document provider. Failures are
	// logged and reported as absent.
	DescriptorParser struct {
		Documents DocumentProvider
		Logger    *log.Logger
	}
)

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	msgs := make([]string, 0, len(e.LexerErrors)+len(e.ParserErrors))
	for _, le := range e.LexerErrors {
		msgs = append(msgs, le.Error())
	}
	for _, pe := range e.ParserErrors {
		msgs = append(msgs, pe.Error())
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidDescriptor, e.URI, strings.Join(msgs, "; "))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *ParseError) Unwrap() error {
	return ErrInvalidDescriptor
}

// Parse builds the package record for the descriptor at u from its content.
func Parse(u string, content []byte) (*Info, error) {
	return FromResult(u, content, parser.Parse(u, content))
}

// FromResult builds the package record from an already parsed descriptor.
func FromResult(u string, content []byte, res *ast.ParseResult) (*Info, error) {
	if res == nil {
		return nil, &ParseError{URI: u, ParserErrors: []ast.Error{{Message: "no parse result"}}}
	}
	if res.HasErrors() {
		return nil, &ParseError{URI: u, LexerErrors: res.LexerErrors, ParserErrors: res.ParserErrors}
	}
	if res.Value == nil || res.Value.Kind != ast.KindDataModel {
		return nil, &ParseError{URI: u, ParserErrors: []ast.Error{{Message: "descriptor must declare a datamodel"}}}
	}

	dm := res.Value.DataModel
	typ := Type(strings.ToLower(strings.TrimSpace(dm.Type)))
	if !typ.IsValid() {
		return nil, &ParseError{URI: u, ParserErrors: []ast.Error{{
			Message: fmt.Sprintf("unknown data model type %q: must be logical, relational or physical", dm.Type),
		}}}
	}

	u = uri.Normalize(u)
	name := strings.TrimSpace(dm.Name)
	refSource := name
	if refSource == "" {
		refSource = dm.ID
	}

	info := &Info{
		URI:           u,
		Directory:     uri.Dir(u),
		ID:            DeriveID(dm.ID, dm.Version),
		DeclaredID:    strings.TrimSpace(dm.ID),
		Name:          name,
		Version:       strings.TrimSpace(dm.Version),
		ReferenceName: ReferenceName(refSource),
		Type:          typ,
		Digest:        Digest(content),
	}
	for _, d := range dm.Dependencies {
		info.Dependencies = append(info.Dependencies, Dependency{
			DataModel: strings.TrimSpace(d.DataModel),
			Version:   strings.TrimSpace(d.Version),
		})
	}
	return info, nil
}

// ValidVersion reports whether v is a semantic version (without "v").
// An empty version is valid and derives as DefaultVersion.
func ValidVersion(v string) bool {
	if v == "" {
		return true
	}
	return semver.IsValid("v" + strings.TrimPrefix(v, "v"))
}

// Digest returns the content fingerprint used to detect descriptor edits.
func Digest(content []byte) uint64 {
	h, err := highwayhash.New64(digestKey)
	if err != nil {
		panic(err) // key length is fixed
	}
	_, _ = h.Write(content)
	return h.Sum64()
}

// Parse returns the package record for the descriptor at u, or false when it
// is unavailable or invalid. It has no side effects beyond the read.
func (p *DescriptorParser) Parse(ctx context.Context, u string) (*Info, bool) {
	if p == nil || p.Documents == nil {
		return nil, false
	}

	src, err := p.Documents.Source(ctx, u)
	if err != nil {
		p.logger().Warn("cannot read data model descriptor", "uri", u, "error", err)
		return nil, false
	}
	if src == nil {
		return nil, false
	}

	info, err := FromResult(u, src.Content, src.Result)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			for _, le := range pe.LexerErrors {
				p.logger().Error("descriptor lexer error", "uri", u, "line", le.Line, "msg", le.Message)
			}
			for _, pr := range pe.ParserErrors {
				p.logger().Error("descriptor parser error", "uri", u, "line", pr.Line, "msg", pr.Message)
			}
		} else {
			p.logger().Error("invalid data model descriptor", "uri", u, "error", err)
		}
		return nil, false
	}

	if !ValidVersion(info.Version) {
		p.logger().Warn("data model version is not a semantic version", "uri", u, "id", info.ID, "version", info.Version)
	}
	return info, true
}

func (p *DescriptorParser) logger() *log.Logger {
	return logging.OrDiscard(p.Logger)
}
