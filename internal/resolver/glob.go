package resolver

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/isseis/go-catalog-resolver/internal/common"
)

const globMeta = "*?[{"

// hasGlobMeta reports whether target contains glob syntax
func hasGlobMeta(target string) bool {
	return strings.ContainsAny(target, globMeta)
}

// pathMatcher matches absolute slash-separated paths. "**" crosses directory
// boundaries and also matches zero directories, so "a/**/b.yaml" matches
// "a/b.yaml".
type pathMatcher struct {
	globs []glob.Glob
	// root is the deepest directory without glob syntax
	root string
	// maxDepth bounds the walk below root; -1 means unbounded
	maxDepth int
}

// compilePattern compiles pattern relative to baseDir. Literal patterns match
// exactly one path.
func compilePattern(pattern, baseDir string) (*pathMatcher, error) {
	slashed := strings.ReplaceAll(pattern, `\`, "/")
	if !path.IsAbs(slashed) {
		slashed = filepath.ToSlash(baseDir) + "/" + slashed
	}
	slashed = path.Clean(slashed)

	segments := strings.Split(strings.TrimPrefix(slashed, "/"), "/")
	static := 0
	for static < len(segments) && !hasGlobMeta(segments[static]) {
		static++
	}

	root := "/" + strings.Join(segments[:static], "/")
	quoted := glob.QuoteMeta(root)
	if root != "/" {
		quoted += "/"
	}
	dynamic := segments[static:]
	if len(dynamic) == 0 {
		quoted = glob.QuoteMeta(slashed)
	} else {
		quoted += strings.Join(dynamic, "/")
	}

	variants := []string{quoted}
	if strings.Contains(quoted, "/**/") {
		variants = append(variants, strings.ReplaceAll(quoted, "/**/", "/"))
	}

	m := &pathMatcher{root: filepath.FromSlash(root), maxDepth: len(dynamic)}
	if strings.Contains(quoted, "**") {
		m.maxDepth = -1
	}
	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

func (m *pathMatcher) Match(p string) bool {
	slashed := filepath.ToSlash(p)
	for _, g := range m.globs {
		if g.Match(slashed) {
			return true
		}
	}
	return false
}

// expandGlob returns the files below baseDir matching pattern, sorted
// lexicographically. Directories are not returned and symlinked directories
// are not descended into.
func expandGlob(fsys common.FileSystem, pattern, baseDir string) ([]string, error) {
	m, err := compilePattern(pattern, baseDir)
	if err != nil {
		return nil, err
	}

	isDir, err := fsys.IsDir(m.root)
	if err != nil || !isDir {
		// A missing static prefix simply yields no matches.
		return nil, nil //nolint:nilerr
	}

	var matches []string
	if err := walk(fsys, m.root, 0, m.maxDepth, func(p string) {
		if m.Match(p) {
			matches = append(matches, p)
		}
	}); err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}

func walk(fsys common.FileSystem, dir string, depth, maxDepth int, visit func(string)) error {
	if maxDepth >= 0 && depth >= maxDepth {
		return nil
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		switch {
		case entry.IsDir():
			if err := walk(fsys, p, depth+1, maxDepth, visit); err != nil {
				return err
			}
		case entry.Type()&fs.ModeSymlink != 0:
			// Symlinked files are candidates; symlinked directories are not walked.
			if info, err := fsys.Stat(p); err == nil && !info.IsDir() {
				visit(p)
			}
		default:
			visit(p)
		}
	}
	return nil
}
