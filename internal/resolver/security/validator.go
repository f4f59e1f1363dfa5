package security

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/isseis/go-catalog-resolver/internal/common"
	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
)

const fileScheme = "file://"

var (
	remoteSchemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://`)
	windowsAbsPattern   = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
)

// IsRemote reports whether target is a remote URI. file:// URIs are local.
func IsRemote(target string) bool {
	if strings.HasPrefix(strings.ToLower(target), fileScheme) {
		return false
	}
	return remoteSchemePattern.MatchString(target)
}

// StripFileScheme removes a leading file:// from target
func StripFileScheme(target string) string {
	if strings.HasPrefix(strings.ToLower(target), fileScheme) {
		return target[len(fileScheme):]
	}
	return target
}

// Validator checks local references against the traversal limit and the
// system-directory denylist. It is immutable and safe for concurrent use.
type Validator struct {
	config *Config
	fs     common.FileSystem
	logger *slog.Logger
	denied []string
	// deniedWindows holds lower-cased, slash-separated Windows prefixes
	deniedWindows []string
}

// NewValidator creates a validator backed by the real file system.
// If config is nil, DefaultConfig() will be used.
func NewValidator(config *Config) *Validator {
	return NewValidatorWithFS(config, common.NewDefaultFileSystem())
}

// NewValidatorWithFS creates a validator with the given configuration and FileSystem.
// If config is nil, DefaultConfig() will be used.
func NewValidatorWithFS(config *Config, fs common.FileSystem) *Validator {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	c.ExtraDeniedDirectories = append([]string(nil), config.ExtraDeniedDirectories...)
	if c.MaxPathLength <= 0 {
		c.MaxPathLength = DefaultMaxPathLength
	}
	config = &c

	v := &Validator{config: config, fs: fs, logger: slog.Default()}

	seen := make(map[string]struct{})
	addDenied := func(dir string) {
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		v.denied = append(v.denied, dir)
	}

	for _, dir := range append(append([]string{}, DeniedDirectories...), config.ExtraDeniedDirectories...) {
		if windowsAbsPattern.MatchString(dir) {
			v.deniedWindows = append(v.deniedWindows, normalizeWindows(dir))
			continue
		}
		clean := filepath.Clean(dir)
		addDenied(clean)
		// Deny the resolved location too, e.g. /etc -> /private/etc on macOS.
		if resolved, err := fs.EvalSymlinks(clean); err == nil {
			addDenied(resolved)
		}
	}
	for _, dir := range WindowsDeniedDirectories {
		v.deniedWindows = append(v.deniedWindows, normalizeWindows(dir))
	}

	return v
}

// WithLogger returns a copy of the validator that reports rejections to logger
func (v *Validator) WithLogger(logger *slog.Logger) *Validator {
	if logger == nil {
		return v
	}
	c := *v
	c.logger = logger
	return &c
}

// Config returns the validator configuration
func (v *Validator) Config() Config {
	return *v.config
}

// Validate checks candidate, a reference found in a document located in
// baseDir, and returns its canonical absolute path. Remote URIs are returned
// unchanged. Relative references are limited to MaxParentTraversal ".."
// segments; every local path is canonicalised through symlinks and must not
// lie inside a denied directory.
func (v *Validator) Validate(candidate, baseDir string) (string, error) {
	if candidate == "" {
		return "", &resolvererrors.PathSecurityError{Input: candidate, Rule: resolvererrors.RuleInvalidPath}
	}

	if IsRemote(candidate) {
		if !v.config.AllowRemote {
			v.logger.Warn("Remote reference rejected", "input", candidate)
			return "", &resolvererrors.PathSecurityError{Input: candidate, Rule: resolvererrors.RuleRemoteDisabled}
		}
		return candidate, nil
	}

	local := StripFileScheme(candidate)

	if windowsAbsPattern.MatchString(local) {
		canonical := path.Clean(filepath.ToSlash(strings.ReplaceAll(local, `\`, "/")))
		if err := v.checkDenied(candidate, canonical); err != nil {
			return "", err
		}
		return canonical, nil
	}

	joined := local
	if !filepath.IsAbs(local) {
		if count := common.CountPathTraversalSegments(local); count > v.config.MaxParentTraversal {
			err := &resolvererrors.PathSecurityError{
				Input:     candidate,
				Canonical: filepath.Join(baseDir, filepath.FromSlash(strings.ReplaceAll(local, `\`, "/"))),
				Rule:      resolvererrors.RuleParentTraversal,
			}
			v.logger.Warn("Path traversal limit exceeded",
				"input", candidate,
				"base_dir", baseDir,
				"segments", count,
				"max", v.config.MaxParentTraversal)
			return "", err
		}
		joined = filepath.Join(baseDir, filepath.FromSlash(strings.ReplaceAll(local, `\`, "/")))
	}

	return v.canonicalize(candidate, joined)
}

// ValidateRoot canonicalises the root document path. Relative roots are
// resolved against the working directory; the traversal limit does not apply
// to the root, only the denylist.
func (v *Validator) ValidateRoot(root string) (string, error) {
	if IsRemote(root) {
		return v.Validate(root, "")
	}

	local := StripFileScheme(root)
	if !filepath.IsAbs(local) {
		wd, err := v.fs.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		local = filepath.Join(wd, local)
	}
	return v.canonicalize(root, local)
}

func (v *Validator) canonicalize(input, absPath string) (string, error) {
	clean := filepath.Clean(absPath)
	if len(clean) > v.config.MaxPathLength {
		return "", &resolvererrors.PathSecurityError{Input: input, Rule: resolvererrors.RuleInvalidPath}
	}

	canonical, err := v.resolveExistingPrefix(clean)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize %s: %w", clean, err)
	}

	if err := v.checkDenied(input, canonical); err != nil {
		return "", err
	}

	v.logger.Debug("Path validated", "input", input, "canonical", canonical)
	return canonical, nil
}

// resolveExistingPrefix evaluates symlinks on the longest existing prefix of
// p and appends the remaining components, so references to files that do not
// exist yet can still be validated.
func (v *Validator) resolveExistingPrefix(p string) (string, error) {
	var suffix []string
	current := p
	for {
		resolved, err := v.fs.EvalSymlinks(current)
		if err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		suffix = append(suffix, filepath.Base(current))
		current = parent
	}
}

func (v *Validator) checkDenied(input, canonical string) error {
	for _, dir := range v.denied {
		if isUnder(canonical, dir) {
			v.logger.Warn("Reference resolves into a system directory",
				"input", input,
				"canonical", canonical,
				"denied_dir", dir)
			return &resolvererrors.PathSecurityError{
				Input:     input,
				Canonical: canonical,
				Rule:      resolvererrors.RuleSystemDirectory,
			}
		}
	}

	normalized := normalizeWindows(canonical)
	for _, dir := range v.deniedWindows {
		if normalized == dir || strings.HasPrefix(normalized, dir+"/") {
			v.logger.Warn("Reference resolves into a system directory",
				"input", input,
				"canonical", canonical,
				"denied_dir", dir)
			return &resolvererrors.PathSecurityError{
				Input:     input,
				Canonical: canonical,
				Rule:      resolvererrors.RuleSystemDirectory,
			}
		}
	}
	return nil
}

func isUnder(p, dir string) bool {
	if dir == string(filepath.Separator) {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+string(filepath.Separator))
}

func normalizeWindows(p string) string {
	return strings.TrimSuffix(strings.ToLower(strings.ReplaceAll(p, `\`, "/")), "/")
}
