package resolver

import (
	"log/slog"

	"github.com/isseis/go-catalog-resolver/internal/resolver/environment"
	"github.com/isseis/go-catalog-resolver/internal/resolver/expansion"
	"github.com/isseis/go-catalog-resolver/internal/resolver/security"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
	"github.com/oklog/ulid/v2"
)

// requestContext carries the mutable state of one Resolve call. It is never
// shared between calls.
type requestContext struct {
	id     string
	logger *slog.Logger

	// visited and frames describe the active import branch, root first
	visited map[string]struct{}
	frames  []*frame

	// parsed holds loaded documents with their expanded import targets
	parsed map[string]*parsedDocument
	// cache holds resolved documents whose tree does not depend on where
	// they were imported from; entries are never modified
	cache map[string]*resolvedDocument
	// expanded records documents whose import edges have been recorded
	expanded map[string]struct{}

	// chain lists every distinct document loaded, in first-load order
	chain []string

	edges []ImportEdge

	env       *environment.Cache
	interp    *expansion.Interpolator
	validator *security.Validator

	stats ImportStats
}

// contribution is a document, or one section of it, merged into a tree.
// The empty section stands for the whole document.
type contribution struct {
	source  string
	section string
}

type contributions map[contribution]struct{}

// has reports whether the tree already holds source, or the given section
// of it.
func (c contributions) has(source, section string) bool {
	if _, ok := c[contribution{source: source}]; ok {
		return true
	}
	if section == "" {
		return false
	}
	_, ok := c[contribution{source: source, section: section}]
	return ok
}

// add records that source was merged with section, together with
// everything the merged tree already held. A selective merge keeps only
// what reached that section.
func (c contributions) add(source, section string, nested contributions) {
	c[contribution{source: source, section: section}] = struct{}{}
	for k := range nested {
		switch {
		case section == "":
			c[k] = struct{}{}
		case k.section == "" || k.section == section:
			c[contribution{source: k.source, section: section}] = struct{}{}
		}
	}
}

// frame is a document being resolved
type frame struct {
	source string
	// section is the part of this document its importer keeps; empty for
	// the whole document
	section string
	// contributed lists what has been merged into the accumulator so far
	contributed contributions
	// contextual is set when an import was skipped because an importer
	// already holds it; such a tree cannot be reused elsewhere
	contextual bool
	// recordEdges is false when the document is resolved a second time
	recordEdges bool
}

type parsedDocument struct {
	body    tree.Tree
	targets []target
}

type resolvedDocument struct {
	tree        tree.Tree
	contributed contributions
}

// newRequestContext tags the logger with a fresh request ID and hands it to
// the per-request environment cache and validator.
func newRequestContext(logger *slog.Logger, envOpts environment.Options, validator *security.Validator) *requestContext {
	id := ulid.Make().String()
	logger = logger.With("request_id", id)
	envOpts.Logger = logger
	env := environment.NewCache(envOpts)
	return &requestContext{
		id:        id,
		logger:    logger,
		visited:   make(map[string]struct{}),
		parsed:    make(map[string]*parsedDocument),
		cache:     make(map[string]*resolvedDocument),
		expanded:  make(map[string]struct{}),
		env:       env,
		interp:    expansion.NewInterpolator(env),
		validator: validator.WithLogger(logger),
	}
}

func (rc *requestContext) push(source, section string) *frame {
	_, seen := rc.expanded[source]
	rc.expanded[source] = struct{}{}

	f := &frame{
		source:      source,
		section:     section,
		contributed: make(contributions),
		recordEdges: !seen,
	}
	rc.visited[source] = struct{}{}
	rc.frames = append(rc.frames, f)
	return f
}

func (rc *requestContext) pop() {
	f := rc.frames[len(rc.frames)-1]
	rc.frames = rc.frames[:len(rc.frames)-1]
	delete(rc.visited, f.source)
}

func (rc *requestContext) active(source string) bool {
	_, ok := rc.visited[source]
	return ok
}

// cycle returns the active branch closed by source
func (rc *requestContext) cycle(source string) []string {
	return append(rc.branch(), source)
}

// branch returns a copy of the active branch
func (rc *requestContext) branch() []string {
	chain := make([]string, 0, len(rc.frames)+1)
	for _, f := range rc.frames {
		chain = append(chain, f.source)
	}
	return chain
}

// touch appends source to the import chain the first time it is loaded
func (rc *requestContext) touch(source string) {
	rc.chain = append(rc.chain, source)
	rc.stats.Files++
}

// alreadyContributed reports whether merging source (or the section of it)
// into the innermost document would add nothing to the final tree because
// that document, or an importer of it, already holds the same content. The
// walk stops at a selective import that keeps a different section, since
// nothing of source reaches beyond it. The returned index is the frame
// holding the content.
func (rc *requestContext) alreadyContributed(source, section string) (bool, int) {
	want := section
	for i := len(rc.frames) - 1; i >= 0; i-- {
		f := rc.frames[i]
		if f.contributed.has(source, want) {
			return true, i
		}
		if f.section == "" {
			continue
		}
		if want != "" && want != f.section {
			return false, 0
		}
		want = f.section
	}
	return false, 0
}

// markContextual flags every frame below holder: their trees omit content
// that only holder provides.
func (rc *requestContext) markContextual(holder int) {
	for i := holder + 1; i < len(rc.frames); i++ {
		rc.frames[i].contextual = true
	}
}
