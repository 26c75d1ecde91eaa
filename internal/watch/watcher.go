// SPDX-License-Identifier: MPL-2.0

// Package watch turns filesystem notifications under a workspace folder into
// debounced build batches.
//
// Events inside the debounce window are coalesced. When the window closes each
// touched path is checked once: paths that still exist are reported as
// changed documents, paths that are gone as deleted ones. Deleted paths may
// name directories; consumers expand them to the documents they contained.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crossmodel/crossmodel/internal/logging"
	"github.com/crossmodel/crossmodel/internal/uri"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 300 * time.Millisecond

// alwaysIgnored never produce batches.
var alwaysIgnored = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Batch lists the document URIs touched during one debounce window.
	Batch struct {
		Changed []string
		Deleted []string
	}

	// Config holds the parameters for a Watcher.
	Config struct {
		// Root is the workspace folder to watch recursively. Empty means the
		// working directory.
		Root string

		// Match selects the file URIs reported as changed. Nil reports all.
		Match func(uri string) bool

		// Ignore holds extra doublestar patterns, relative to Root, merged
		// with the built-in ignores.
		Ignore []string

		Debounce time.Duration
		Logger   *log.Logger

		// OnChange receives each non-empty batch. Calls never overlap.
		OnChange func(ctx context.Context, batch Batch) error
	}

	// Watcher feeds filesystem changes to Config.OnChange. Run may be called
	// only once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		logger   *log.Logger
		debounce time.Duration
		root     string
		started  atomic.Bool
	}
)

// New validates cfg, resolves the root and registers every directory below
// it that is not ignored.
func New(cfg Config) (*Watcher, error) {
	root := cfg.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}

	for _, pat := range cfg.Ignore {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("watch: invalid ignore pattern %q: %w", pat, doublestar.ErrBadPattern)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  append(slices.Clone(alwaysIgnored), cfg.Ignore...),
		logger:   logging.OrDiscard(cfg.Logger),
		debounce: cfg.Debounce,
		root:     abs,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}

	if _, err := w.register(abs); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			w.logger.Warn("close watcher after failed start", "error", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// Root returns the absolute directory being watched.
func (w *Watcher) Root() string { return w.root }

// Run processes events until ctx is cancelled. It returns nil on
// cancellation and an error when the watcher can no longer work.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		busy    atomic.Bool
	)

	flush := func() {
		if ctx.Err() != nil {
			return
		}
		if !busy.CompareAndSwap(false, true) {
			// Retry once the running callback is done.
			w.logger.Debug("previous batch still running, postponing")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer busy.Store(false)

		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		clear(pending)
		mu.Unlock()

		batch := w.classify(paths)
		if len(batch.Changed) == 0 && len(batch.Deleted) == 0 {
			return
		}
		w.logger.Debug("filesystem batch", "changed", len(batch.Changed), "deleted", len(batch.Deleted))
		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, batch); err != nil {
				w.logger.Error("watch callback failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close fsnotify watcher", "error", err)
		}
	}()

	enqueue := func(paths ...string) {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range paths {
			pending[p] = struct{}{}
		}
		if timer == nil {
			timer = time.AfterFunc(w.debounce, flush)
		} else {
			timer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) {
				continue
			}
			if w.ignored(evt.Name, false) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				// Files may land in a new directory before it is watched.
				if files, err := w.register(evt.Name); err == nil && len(files) > 0 {
					enqueue(files...)
				}
			}
			enqueue(evt.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatal(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// classify splits paths into changed and deleted document URIs, sorted.
func (w *Watcher) classify(paths []string) Batch {
	var b Batch
	for _, p := range paths {
		u := uri.FromPath(p)
		info, err := os.Stat(p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			b.Deleted = append(b.Deleted, u)
		case err != nil:
			w.logger.Debug("cannot stat changed path", "path", p, "error", err)
		case info.IsDir():
		case w.cfg.Match == nil || w.cfg.Match(u):
			b.Changed = append(b.Changed, u)
		}
	}
	slices.Sort(b.Changed)
	slices.Sort(b.Deleted)
	return b
}

// register adds dir and its non-ignored subdirectories to the watcher and
// returns the files found on the way. A path that is not a directory is
// skipped.
func (w *Watcher) register(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var files []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			if !w.ignored(path, false) {
				files = append(files, path)
			}
			return nil
		}
		if path != w.root && w.ignored(path, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}

// ignored reports whether path matches an ignore pattern. Directories are
// also tested with a trailing slash so "dir/**" patterns prune them.
func (w *Watcher) ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(pat, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(alwaysIgnored)
}
