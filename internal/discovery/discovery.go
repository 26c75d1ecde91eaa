// SPDX-License-Identifier: MPL-2.0

package discovery

import (
	"context"
	"fmt"

	"github.com/crossmodel/crossmodel/internal/logging"
	"github.com/crossmodel/crossmodel/internal/uri"
	"github.com/crossmodel/crossmodel/internal/vfs"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

type (
	// MatchFunc selects the file URIs a scan collects.
	MatchFunc func(uri string) bool

	// Option configures a Scanner during construction.
	Option func(*Scanner)

	// Scanner walks workspace folders through a vfs.FileSystem.
	Scanner struct {
		fs      vfs.FileSystem
		ignore  []string
		workers int
		logger  *log.Logger
	}
)

// WithIgnore skips files and directories whose folder-relative path matches
// one of the doublestar patterns.
func WithIgnore(patterns ...string) Option {
	return func(s *Scanner) {
		s.ignore = append(s.ignore, patterns...)
	}
}

// WithWorkers bounds how many folders are walked concurrently.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the scanner's logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// NewScanner creates a Scanner over fs. It panics if fs is nil.
func NewScanner(fs vfs.FileSystem, opts ...Option) *Scanner {
	if fs == nil {
		panic("discovery: nil file system")
	}
	s := &Scanner{fs: fs, workers: defaultWorkers}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	return s
}

// ValidatePatterns reports the first malformed doublestar pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	return nil
}

// Scan walks every folder depth-first and collects the files accepted by
// match. Folders are walked concurrently; the result is ordered by folder,
// then by walk order. Unreadable directories become diagnostics. Scan only
// fails when ctx is cancelled, which is checked before each directory.
func (s *Scanner) Scan(ctx context.Context, folders []string, match MatchFunc) (*Result, error) {
	perFolder := make([]*Result, len(folders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, folder := range folders {
		g.Go(func() error {
			res := &Result{}
			root := uri.Normalize(folder)
			if err := s.walk(gctx, root, root, match, res, true); err != nil {
				return err
			}
			perFolder[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{}
	for _, res := range perFolder {
		out.Files = append(out.Files, res.Files...)
		out.Diagnostics = append(out.Diagnostics, res.Diagnostics...)
	}
	s.logger.Debug("workspace scan complete", "folders", len(folders), "files", len(out.Files))
	return out, nil
}

func (s *Scanner) walk(ctx context.Context, root, dir string, match MatchFunc, res *Result, top bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := s.fs.ReadDirectory(ctx, dir)
	if err != nil {
		code, sev := CodeDirectoryUnreadable, SeverityWarning
		if top {
			code, sev = CodeFolderUnreadable, SeverityError
		}
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Severity: sev,
			Code:     code,
			Message:  fmt.Sprintf("cannot read directory: %v", err),
			URI:      dir,
			Cause:    err,
		})
		s.logger.Warn("cannot read directory", "uri", dir, "error", err)
		return nil
	}

	var subdirs []string
	for _, e := range entries {
		if s.ignored(root, e.URI, e.IsDirectory) {
			continue
		}
		switch {
		case e.IsFile:
			if match == nil || match(e.URI) {
				res.Files = append(res.Files, e.URI)
			}
		case e.IsDirectory:
			subdirs = append(subdirs, e.URI)
		}
	}
	for _, sub := range subdirs {
		if err := s.walk(ctx, root, sub, match, res, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) ignored(root, u string, isDir bool) bool {
	if len(s.ignore) == 0 {
		return false
	}
	rel := uri.Rel(root, u)
	if rel == "" || rel == "." {
		return false
	}
	for _, pattern := range s.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// "**/node_modules/**" should also prune the directory itself.
		if isDir {
			if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}
