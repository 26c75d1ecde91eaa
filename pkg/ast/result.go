// SPDX-License-Identifier: MPL-2.0

package ast

import "fmt"

type (
	// Error is a positioned lexer or parser error.
	Error struct {
		Message string
		Line    int
		Column  int
	}

	// ParseResult is the outcome of parsing one document. Value may be nil
	// when the content could not be parsed at all.
	ParseResult struct {
		Value        *Root
		LexerErrors  []Error
		ParserErrors []Error
	}

	// Source is a parsed document handle: its URI, the content that was
	// parsed and the result.
	Source struct {
		URI     string
		Content []byte
		Result  *ParseResult
	}
)

// Error implements the error interface.
func (e Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

// HasErrors reports whether any lexer or parser error was recorded.
func (r *ParseResult) HasErrors() bool {
	return r != nil && (len(r.LexerErrors) > 0 || len(r.ParserErrors) > 0)
}

// Errors returns lexer errors followed by parser errors.
func (r *ParseResult) Errors() []Error {
	if r == nil {
		return nil
	}
	out := make([]Error, 0, len(r.LexerErrors)+len(r.ParserErrors))
	out = append(out, r.LexerErrors...)
	return append(out, r.ParserErrors...)
}

// Root returns the parsed root, or nil.
func (s *Source) Root() *Root {
	if s == nil || s.Result == nil {
		return nil
	}
	return s.Result.Value
}
