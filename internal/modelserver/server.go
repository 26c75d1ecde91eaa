// SPDX-License-Identifier: MPL-2.0

// Package modelserver assembles the workspace core into one service: the
// package registry, the document resolver, the build pipeline with its
// registry adapter, and the scope provider used for linking and completion.
//
// A Server is what the CLI and an editor integration talk to. It owns no
// persistent state; everything is rebuilt from the workspace folders.
package modelserver

import (
	"context"
	"slices"
	"sync"

	"github.com/crossmodel/crossmodel/internal/buildupdate"
	"github.com/crossmodel/crossmodel/internal/discovery"
	"github.com/crossmodel/crossmodel/internal/logging"
	"github.com/crossmodel/crossmodel/internal/notify"
	"github.com/crossmodel/crossmodel/internal/registry"
	"github.com/crossmodel/crossmodel/internal/resolver"
	"github.com/crossmodel/crossmodel/internal/scope"
	"github.com/crossmodel/crossmodel/internal/uri"
	"github.com/crossmodel/crossmodel/internal/vfs"
	"github.com/crossmodel/crossmodel/internal/workspace"
	"github.com/crossmodel/crossmodel/pkg/datamodel"

	"github.com/charmbracelet/log"
)

type (
	// Option configures a Server during construction.
	Option func(*settings)

	settings struct {
		logger         *log.Logger
		descriptorFile string
		extensions     []string
		defaultScheme  string
		ignore         []string
		workers        int
	}

	// Server is the workspace service. It is safe for concurrent use; build
	// batches are serialized by the underlying pipeline.
	Server struct {
		logger       *log.Logger
		registry     *registry.Registry
		resolver     *resolver.Resolver
		builder      *workspace.Builder
		scanner      *discovery.Scanner
		adapter      *buildupdate.Adapter
		provider     *scope.Provider
		isDescriptor func(string) bool

		mu      sync.Mutex
		folders []string
		scanned []discovery.Diagnostic
	}
)

// WithLogger sets the logger shared by every component.
func WithLogger(l *log.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithDescriptorFile changes the file name that marks a data model folder
// (default "datamodel.cm").
func WithDescriptorFile(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.descriptorFile = name
		}
	}
}

// WithExtensions sets the suffixes of tracked documents (default ".cm").
func WithExtensions(exts ...string) Option {
	return func(s *settings) {
		if len(exts) > 0 {
			s.extensions = slices.Clone(exts)
		}
	}
}

// WithDefaultScheme sets the scheme retried for documents whose own scheme
// matches no package (default "file").
func WithDefaultScheme(scheme string) Option {
	return func(s *settings) {
		s.defaultScheme = scheme
	}
}

// WithIgnore adds doublestar patterns skipped by the workspace scan.
func WithIgnore(patterns ...string) Option {
	return func(s *settings) {
		s.ignore = append(s.ignore, patterns...)
	}
}

// WithWorkers bounds how many workspace folders are scanned concurrently.
func WithWorkers(n int) Option {
	return func(s *settings) {
		s.workers = n
	}
}

// New wires a Server over fs. It panics if fs is nil.
func New(fs vfs.FileSystem, opts ...Option) *Server {
	if fs == nil {
		panic("modelserver: nil file system")
	}
	cfg := settings{descriptorFile: datamodel.DescriptorFileName}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := logging.OrDiscard(cfg.logger)
	descriptorFile := cfg.descriptorFile
	isDescriptor := func(u string) bool {
		return u != "" && uri.Base(u) == descriptorFile
	}

	builderOpts := []workspace.BuilderOption{
		workspace.WithBuilderLogger(logging.With(logger, "build")),
		workspace.WithBufferOnly(isDescriptor),
	}
	if len(cfg.extensions) > 0 {
		builderOpts = append(builderOpts, workspace.WithExtensions(cfg.extensions...))
	}
	builder := workspace.NewBuilder(workspace.NewStore(), fs, builderOpts...)

	reg := registry.New(
		&datamodel.DescriptorParser{Documents: builder, Logger: logging.With(logger, "datamodel")},
		registry.WithLogger(logging.With(logger, "registry")),
		registry.WithDefaultScheme(cfg.defaultScheme),
	)
	res := resolver.New(reg)
	scanner := discovery.NewScanner(fs,
		discovery.WithIgnore(cfg.ignore...),
		discovery.WithWorkers(cfg.workers),
		discovery.WithLogger(logging.With(logger, "scan")),
	)
	adapter := buildupdate.New(reg, res, builder, scanner,
		buildupdate.WithLogger(logging.With(logger, "packages")),
		buildupdate.WithDescriptorMatcher(isDescriptor),
	)

	provider := scope.NewProvider(builder.Store(), res, reg)
	builder.SetLinker(scope.NewLinker(provider))
	builder.SetValidator(scope.NewValidator(provider))

	return &Server{
		logger:       logger,
		registry:     reg,
		resolver:     res,
		builder:      builder,
		scanner:      scanner,
		adapter:      adapter,
		provider:     provider,
		isDescriptor: isDescriptor,
	}
}

// Dispose releases the server's subscriptions.
func (s *Server) Dispose() {
	s.adapter.Close()
}

// Initialize registers every data model under folders and then builds every
// document found there. Unreadable folders and directories are reported by
// Check rather than failing the call.
func (s *Server) Initialize(ctx context.Context, folders []string) (*workspace.Result, error) {
	normalized := make([]string, 0, len(folders))
	for _, f := range folders {
		normalized = append(normalized, uri.Normalize(f))
	}

	packages, err := s.adapter.Initialize(ctx, normalized)
	if err != nil {
		return nil, err
	}
	docs, err := s.scanner.Scan(ctx, normalized, func(u string) bool {
		return s.builder.Accepts(u) && !s.isDescriptor(u)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.folders = normalized
	s.scanned = append(slices.Clone(packages.Diagnostics), docs.Diagnostics...)
	s.mu.Unlock()

	res, err := s.builder.Update(ctx, docs.Files, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("workspace initialized", "documents", len(res.Rebuilt), "packages", s.registry.Len())
	return res, nil
}

// Folders returns the folders passed to the last Initialize.
func (s *Server) Folders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.folders)
}

// Update builds one batch of file changes. A deleted URI that names a
// directory stands for every tracked document and descriptor below it.
func (s *Server) Update(ctx context.Context, changed, deleted []string) (*workspace.Result, error) {
	return s.builder.Update(ctx, changed, s.expandDeleted(deleted))
}

func (s *Server) expandDeleted(deleted []string) []string {
	if len(deleted) == 0 {
		return nil
	}
	tracked := append(s.builder.Store().URIs(), s.adapter.Descriptors()...)
	out := make([]string, 0, len(deleted))
	seen := make(map[string]bool)
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, d := range deleted {
		d = uri.Normalize(d)
		add(d)
		for _, u := range tracked {
			if u != d && uri.IsAncestorOrSelf(d, u) {
				add(u)
			}
		}
	}
	return out
}

// Open tracks an editor buffer and builds it. The buffer shadows the file
// at the same URI until Close; an open descriptor is read from the buffer.
func (s *Server) Open(ctx context.Context, u string, text []byte) (*workspace.Result, error) {
	return s.builder.Open(ctx, u, text)
}

// Close drops the editor buffer for u.
func (s *Server) Close(ctx context.Context, u string) (*workspace.Result, error) {
	return s.builder.Close(ctx, u)
}

// Document returns the tracked snapshot of u.
func (s *Server) Document(u string) (*workspace.Document, bool) {
	return s.builder.Store().Get(uri.Normalize(u))
}

// Documents returns every tracked document in tracking order.
func (s *Server) Documents() []*workspace.Document {
	return s.builder.Store().All()
}

// Diagnostics returns the diagnostics of the tracked document u.
func (s *Server) Diagnostics(u string) []workspace.Diagnostic {
	doc, ok := s.Document(u)
	if !ok {
		return nil
	}
	return slices.Clone(doc.Diagnostics)
}

// Complete lists the reference spellings valid in u for f. It returns nil
// for untracked documents.
func (s *Server) Complete(ctx context.Context, u string, f scope.Filter) []scope.Candidate {
	doc, ok := s.Document(u)
	if !ok {
		return nil
	}
	return s.provider.Candidates(ctx, doc, f)
}

// DataModelIDByURI returns the id of the package owning u, or
// datamodel.UnknownID.
func (s *Server) DataModelIDByURI(u string) string {
	return s.resolver.IDForURI(u)
}

// DataModelIDByDocument returns the id of the package owning doc.
func (s *Server) DataModelIDByDocument(doc *workspace.Document) string {
	if doc == nil {
		return datamodel.UnknownID
	}
	return s.resolver.IDForURI(doc.URI)
}

// DataModelInfo returns the package owning u.
func (s *Server) DataModelInfo(u string) (*datamodel.Info, bool) {
	return s.resolver.PackageForURI(u)
}

// DataModelInfos returns every registered package in registration order.
func (s *Server) DataModelInfos() []*datamodel.Info {
	return s.registry.All()
}

// VisibleDataModels returns the ids source may reference, itself first.
func (s *Server) VisibleDataModels(source string) []string {
	return s.registry.VisibleSet(source, true)
}

// IsVisible reports whether package source may reference package target.
func (s *Server) IsVisible(source, target string) bool {
	return s.registry.IsVisible(source, target)
}

// OnUpdate subscribes to package registry events.
func (s *Server) OnUpdate(fn notify.Listener[registry.Event]) *notify.Subscription {
	return s.registry.OnUpdate(fn)
}

// OnBuilt subscribes to finished build batches.
func (s *Server) OnBuilt(fn notify.Listener[*workspace.Result]) *notify.Subscription {
	return s.builder.OnBuilt(fn)
}

// IsPackageDescriptorURI reports whether u names a data model descriptor.
func (s *Server) IsPackageDescriptorURI(u string) bool {
	return s.isDescriptor(u)
}

// Accepts reports whether u is a tracked document type, descriptors
// included.
func (s *Server) Accepts(u string) bool {
	return s.builder.Accepts(u) || s.isDescriptor(u)
}

// DependencyOrder returns the registered package ids with every package
// after its dependencies. It fails with *dag.CycleError when packages depend
// on each other. Dependencies that are not registered are left out.
func (s *Server) DependencyOrder() ([]string, error) {
	order, err := s.adapter.Graph().TopologicalSort()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(order, func(id string) bool {
		_, ok := s.registry.InfoForID(id)
		return !ok
	}), nil
}
