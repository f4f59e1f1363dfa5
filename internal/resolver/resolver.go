// Package resolver turns a root configuration document and everything it
// imports into one merged, interpolated and validated tree.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/isseis/go-catalog-resolver/internal/common"
	"github.com/isseis/go-catalog-resolver/internal/metrics"
	"github.com/isseis/go-catalog-resolver/internal/resolver/config"
	"github.com/isseis/go-catalog-resolver/internal/resolver/environment"
	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/isseis/go-catalog-resolver/internal/resolver/loader"
	"github.com/isseis/go-catalog-resolver/internal/resolver/merge"
	"github.com/isseis/go-catalog-resolver/internal/resolver/security"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
	"github.com/isseis/go-catalog-resolver/internal/resolver/uniqueness"
)

// Result is the outcome of a successful resolution
type Result struct {
	// Tree is the merged document
	Tree tree.Tree
	// ImportChain lists every document loaded, root first, in first-load order
	ImportChain []string
	// Edges lists every import that was followed, in merge order
	Edges []ImportEdge
	// EnvFiles lists the .env files consulted during interpolation
	EnvFiles []string
	Stats    ImportStats
	// RequestID identifies the resolution in log records
	RequestID string
}

// ImportEdge is one followed import directive
type ImportEdge struct {
	From     string
	To       string
	Section  string
	Override bool
	// Cached is set when the target was served from the request cache
	Cached bool
	// Skipped is set when the target contributed nothing: a missing optional
	// import, or a document that had already contributed
	Skipped bool
}

// ImportStats summarises a resolution for inspection tooling
type ImportStats struct {
	Files     int
	MaxDepth  int
	CacheHits int
	Skipped   int
}

// Option configures a Resolver
type Option func(*resolverOptions)

type resolverOptions struct {
	loader  loader.Loader
	fs      common.FileSystem
	environ func() []string
	logger  *slog.Logger
	metrics *metrics.Collector
}

// WithLoader sets the document loader
func WithLoader(l loader.Loader) Option {
	return func(opts *resolverOptions) {
		opts.loader = l
	}
}

// WithFileSystem sets the file system used for validation and glob expansion
func WithFileSystem(fsys common.FileSystem) Option {
	return func(opts *resolverOptions) {
		opts.fs = fsys
	}
}

// WithEnviron sets the function returning the process environment snapshot
func WithEnviron(environ func() []string) Option {
	return func(opts *resolverOptions) {
		opts.environ = environ
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(opts *resolverOptions) {
		opts.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(c *metrics.Collector) Option {
	return func(opts *resolverOptions) {
		opts.metrics = c
	}
}

// Resolver resolves import graphs. It holds no per-request state and is safe
// for concurrent use; every Resolve call gets its own request context.
type Resolver struct {
	settings  config.Settings
	loader    loader.Loader
	fs        common.FileSystem
	validator *security.Validator
	environ   func() []string
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// New creates a Resolver. A nil settings selects config.Default().
func New(settings *config.Settings, options ...Option) *Resolver {
	if settings == nil {
		settings = config.Default()
	}
	s := *settings
	config.ApplyDefaults(&s)

	opts := &resolverOptions{}
	for _, opt := range options {
		opt(opts)
	}
	if opts.fs == nil {
		opts.fs = common.NewDefaultFileSystem()
	}
	if opts.environ == nil {
		opts.environ = os.Environ
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.loader == nil {
		var remote loader.Loader
		if *s.AllowRemote {
			remote = loader.NewRemoteLoader(nil)
		}
		opts.loader = loader.NewComposite(loader.NewFileLoader(s.MaxFileSize), remote)
	}

	validator := security.NewValidatorWithFS(&security.Config{
		MaxParentTraversal:     *s.MaxParentTraversal,
		ExtraDeniedDirectories: s.DeniedDirs,
		AllowRemote:            *s.AllowRemote,
	}, opts.fs)

	return &Resolver{
		settings:  s,
		loader:    opts.loader,
		fs:        opts.fs,
		validator: validator,
		environ:   opts.environ,
		logger:    opts.logger,
		metrics:   opts.metrics,
	}
}

// Resolve loads root, follows its imports depth-first, merges every
// contribution and validates the result. root may be a local path (relative
// paths are resolved against the working directory) or a remote URI.
func (r *Resolver) Resolve(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	rc := newRequestContext(r.logger, environment.Options{
		SearchDepth: r.settings.DotenvSearchDepth,
		Environ:     r.environ(),
	}, r.validator)

	result, err := r.resolve(ctx, rc, root)

	outcome := "ok"
	if err != nil {
		outcome = resolvererrors.Classify(err).Category.String()
	}
	r.metrics.ObserveResolution(outcome, time.Since(start), rc.stats.MaxDepth)

	if err != nil {
		rc.logger.Debug("Resolution failed", "root", root, "error", err)
		return nil, err
	}

	rc.logger.Info("Resolution completed",
		"root", root,
		"files", result.Stats.Files,
		"max_depth", result.Stats.MaxDepth,
		"cache_hits", result.Stats.CacheHits,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (r *Resolver) resolve(ctx context.Context, rc *requestContext, root string) (*Result, error) {
	rootPath, err := rc.validator.ValidateRoot(root)
	if err != nil {
		return nil, err
	}

	resolved, err := r.resolveDocument(ctx, rc, rootPath, "", 1)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &resolvererrors.ImportNotFoundError{Target: root, ResolvedPath: rootPath}
		}
		return nil, err
	}

	if err := uniqueness.Check(resolved.tree); err != nil {
		return nil, err
	}

	return &Result{
		Tree:        resolved.tree,
		ImportChain: rc.chain,
		Edges:       rc.edges,
		EnvFiles:    rc.env.LoadedFiles(),
		Stats:       rc.stats,
		RequestID:   rc.id,
	}, nil
}

// resolveDocument returns the fully resolved tree of the document at source,
// a canonical path or URI. section is the part of the document its importer
// keeps. Errors satisfying errors.Is(err, fs.ErrNotExist) mean source itself
// is missing; the caller turns them into ImportNotFoundError with the
// referencing context.
func (r *Resolver) resolveDocument(ctx context.Context, rc *requestContext, source, section string, depth int) (*resolvedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rc.active(source) {
		return nil, &resolvererrors.CircularImportError{Chain: rc.cycle(source)}
	}
	if depth > r.settings.MaxImportDepth {
		return nil, &resolvererrors.ImportDeclarationError{
			File:   source,
			Reason: fmt.Sprintf("maximum import depth %d exceeded", r.settings.MaxImportDepth),
		}
	}

	f := rc.push(source, section)
	defer rc.pop()

	doc, err := r.parseDocument(ctx, rc, source)
	if err != nil {
		return nil, err
	}
	if depth > rc.stats.MaxDepth {
		rc.stats.MaxDepth = depth
	}

	acc := tree.Tree{}
	for _, t := range doc.targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc, err = r.mergeImport(ctx, rc, f, acc, t, depth)
		if err != nil {
			return nil, err
		}
	}

	acc, err = merge.Merge(acc, doc.body, true)
	if err != nil {
		return nil, withConflictSource(err, source)
	}

	resolved := &resolvedDocument{tree: acc, contributed: f.contributed}
	if !f.contextual {
		rc.cache[source] = resolved
	}
	return resolved, nil
}

// parseDocument loads, interpolates and expands the imports of source once
// per request.
func (r *Resolver) parseDocument(ctx context.Context, rc *requestContext, source string) (*parsedDocument, error) {
	if parsed, ok := rc.parsed[source]; ok {
		return parsed, nil
	}

	doc, err := r.loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	rc.logger.Debug("Loaded document",
		"source", source,
		"format", doc.Format,
		"bytes", doc.Size,
		"remote", doc.Remote)
	r.metrics.DocumentLoaded(doc.Remote)
	rc.touch(source)

	envDir := doc.Dir
	if doc.Remote {
		envDir = ""
	}
	interpolated, err := rc.interp.Interpolate(doc.Tree, source, envDir)
	if err != nil {
		return nil, err
	}
	body := interpolated.(map[string]any)

	declared := body[ImportsKey]
	delete(body, ImportsKey)

	lists, err := parseImports(declared, source)
	if err != nil {
		return nil, err
	}

	targets, err := r.expandLists(rc, lists, doc)
	if err != nil {
		return nil, err
	}

	parsed := &parsedDocument{body: body, targets: targets}
	rc.parsed[source] = parsed
	return parsed, nil
}

// mergeImport resolves one concrete import target and merges it into acc,
// the accumulator of the document in f.
func (r *Resolver) mergeImport(ctx context.Context, rc *requestContext, f *frame, acc tree.Tree, t target, depth int) (tree.Tree, error) {
	from := f.source
	edge := ImportEdge{From: from, To: t.source, Section: t.entry.Section, Override: t.entry.Override}
	record := func() {
		if f.recordEdges {
			rc.edges = append(rc.edges, edge)
		}
	}

	child, cached := rc.cache[t.source]
	if cached {
		// A cached document is complete; it cannot be on the active stack.
		edge.Cached = true
		rc.stats.CacheHits++
		r.metrics.CacheHit()
	}

	if r.settings.DuplicatePolicy == config.DuplicatePolicyOnce {
		if found, holder := rc.alreadyContributed(t.source, t.entry.Section); found {
			rc.markContextual(holder)
			rc.logger.Debug("Document already contributed", "source", t.source, "section", t.entry.Section, "from", from)
			edge.Skipped = true
			record()
			return acc, nil
		}
	}

	if cached {
		rc.logger.Debug("Import served from cache", "source", t.source, "from", from)
	} else {
		var err error
		child, err = r.resolveDocument(ctx, rc, t.source, t.entry.Section, depth+1)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			if !t.entry.Optional {
				return nil, &resolvererrors.ImportNotFoundError{
					Target:         t.entry.Target,
					ResolvedPath:   t.source,
					ReferencedFrom: from,
					Chain:          rc.branch(),
				}
			}
			rc.logger.Debug("Optional import not found", "target", t.entry.Target, "resolved", t.source, "from", from)
			rc.stats.Skipped++
			r.metrics.ImportSkipped()
			edge.Skipped = true
			record()
			return acc, nil
		}
	}

	f.contributed.add(t.source, t.entry.Section, child.contributed)
	record()

	if t.entry.Section == "" {
		merged, err := merge.Merge(acc, child.tree, t.entry.Override)
		if err != nil {
			return nil, withConflictSource(err, t.source)
		}
		return merged, nil
	}

	sub, ok := child.tree[t.entry.Section]
	if !ok {
		rc.logger.Debug("Selective import has no such section", "source", t.source, "section", t.entry.Section)
		return acc, nil
	}
	merged, err := merge.MergeAt(acc, t.entry.Section, sub, t.entry.Override)
	if err != nil {
		return nil, withConflictSource(err, t.source)
	}
	return merged, nil
}

// target is a concrete, validated import target
type target struct {
	source string
	entry  ImportEntry
}

// expandLists turns the declared lists into concrete targets: globs are
// expanded with sorted matches, excludes are removed, and unscoped entries
// are ordered before sectioned ones.
func (r *Resolver) expandLists(rc *requestContext, lists []importList, doc *loader.Document) ([]target, error) {
	var unscoped, sectioned []target
	for _, list := range lists {
		targets, err := r.expandList(rc, list, doc)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			if t.entry.Section == "" {
				unscoped = append(unscoped, t)
			} else {
				sectioned = append(sectioned, t)
			}
		}
	}
	return append(unscoped, sectioned...), nil
}

func (r *Resolver) expandList(rc *requestContext, list importList, doc *loader.Document) ([]target, error) {
	var targets []target
	for _, entry := range list.entries {
		expanded, err := r.expandEntry(rc, entry, doc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, expanded...)
	}

	if len(list.excludes) == 0 {
		return targets, nil
	}
	if doc.Remote {
		return nil, &resolvererrors.ImportDeclarationError{File: doc.Source, Reason: "exclude patterns are not supported in remote documents"}
	}

	excludes := make([]*pathMatcher, 0, len(list.excludes))
	for _, pattern := range list.excludes {
		m, err := compilePattern(security.StripFileScheme(pattern), doc.Dir)
		if err != nil {
			return nil, &resolvererrors.ImportDeclarationError{File: doc.Source, Reason: err.Error()}
		}
		excludes = append(excludes, m)
	}

	kept := targets[:0]
	for _, t := range targets {
		if excluded(excludes, t.source) {
			rc.logger.Debug("Import excluded", "source", t.source, "from", doc.Source)
			continue
		}
		kept = append(kept, t)
	}
	return kept, nil
}

func excluded(excludes []*pathMatcher, source string) bool {
	if security.IsRemote(source) {
		return false
	}
	for _, m := range excludes {
		if m.Match(source) {
			return true
		}
	}
	return false
}

func (r *Resolver) expandEntry(rc *requestContext, entry ImportEntry, doc *loader.Document) ([]target, error) {
	ref := entry.Target
	isGlob := hasGlobMeta(ref)

	// Remote targets, and relative targets inside remote documents, stay remote.
	if security.IsRemote(ref) || (doc.Remote && !filepath.IsAbs(security.StripFileScheme(ref))) {
		if isGlob {
			return nil, &resolvererrors.ImportDeclarationError{
				File:   doc.Source,
				Reason: fmt.Sprintf("glob pattern '%s' cannot be used with remote documents", ref),
			}
		}
		if !security.IsRemote(ref) {
			ref = loader.JoinRemote(doc.Dir, ref)
		}
		source, err := rc.validator.Validate(ref, "")
		if err != nil {
			return nil, withReferencedFrom(err, doc.Source)
		}
		return []target{{source: source, entry: entry}}, nil
	}

	if !isGlob {
		source, err := rc.validator.Validate(ref, doc.Dir)
		if err != nil {
			return nil, withReferencedFrom(err, doc.Source)
		}
		return []target{{source: source, entry: entry}}, nil
	}

	matches, err := expandGlob(r.fs, security.StripFileScheme(ref), doc.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand '%s' in %s: %w", ref, doc.Source, err)
	}
	if len(matches) == 0 {
		if entry.Optional {
			rc.logger.Debug("Optional glob matched nothing", "pattern", ref, "from", doc.Source)
			rc.stats.Skipped++
			r.metrics.ImportSkipped()
			return nil, nil
		}
		return nil, &resolvererrors.ImportNotFoundError{
			Target:         ref,
			ReferencedFrom: doc.Source,
			Chain:          rc.branch(),
		}
	}

	targets := make([]target, 0, len(matches))
	for _, match := range matches {
		candidate := match
		if rel, err := filepath.Rel(doc.Dir, match); err == nil {
			// Validate the relative form so the traversal limit applies to
			// what the pattern reached, not only to its literal text.
			candidate = rel
		}
		source, err := rc.validator.Validate(candidate, doc.Dir)
		if err != nil {
			return nil, withReferencedFrom(err, doc.Source)
		}
		targets = append(targets, target{source: source, entry: entry})
	}
	return targets, nil
}

func withReferencedFrom(err error, from string) error {
	var secErr *resolvererrors.PathSecurityError
	if errors.As(err, &secErr) && secErr.ReferencedFrom == "" {
		secErr.ReferencedFrom = from
	}
	return err
}

func withConflictSource(err error, source string) error {
	var conflict *resolvererrors.MergeConflictError
	if errors.As(err, &conflict) && conflict.File == "" {
		conflict.File = source
	}
	return err
}
