// Package environment provides the request-scoped variable store used by
// placeholder interpolation: a snapshot of the process environment plus the
// .env files discovered above each resolved document.
package environment

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/isseis/go-catalog-resolver/internal/common"
	"github.com/isseis/go-catalog-resolver/internal/safefileio"
	"github.com/joho/godotenv"
)

const (
	// DefaultSearchDepth is the number of directories examined for .env files,
	// starting with the document's own directory
	DefaultSearchDepth = 10

	// DotenvFileName is the name of the files collected during discovery
	DotenvFileName = ".env"
)

// ErrDotenvParse is returned when a discovered .env file cannot be parsed
var ErrDotenvParse = errors.New("failed to parse .env file")

// ReadFileFunc reads a .env file. It must return an error satisfying
// errors.Is(err, fs.ErrNotExist) when the file is absent.
type ReadFileFunc func(path string) ([]byte, error)

// Options configures a Cache
type Options struct {
	// SearchDepth bounds upward discovery; <= 0 selects DefaultSearchDepth
	SearchDepth int
	// Environ is the process environment snapshot in KEY=VALUE form; nil selects os.Environ()
	Environ []string
	// ReadFile reads .env files; nil selects safefileio.SafeReadFile
	ReadFile ReadFileFunc
	// Logger receives debug records for loaded files; nil selects slog.Default()
	Logger *slog.Logger
}

// Cache resolves variable names for one resolution request. The process
// environment is copied when the cache is created and never modified.
// A Cache is not safe for concurrent use; each request owns its own.
type Cache struct {
	depth    int
	readFile ReadFileFunc
	logger   *slog.Logger
	process  map[string]string
	// files memoizes parsed .env files by directory; a nil entry means none exists
	files map[string]map[string]string
	// merged memoizes the effective .env view by starting directory
	merged map[string]map[string]string
	loaded []string
}

// NewCache creates a Cache and snapshots the process environment
func NewCache(opts Options) *Cache {
	depth := opts.SearchDepth
	if depth <= 0 {
		depth = DefaultSearchDepth
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	readFile := opts.ReadFile
	if readFile == nil {
		readFile = safefileio.SafeReadFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	process := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := common.ParseKeyValue(kv)
		if !ok {
			continue
		}
		process[key] = value
	}

	return &Cache{
		depth:    depth,
		readFile: readFile,
		logger:   logger,
		process:  process,
		files:    make(map[string]map[string]string),
		merged:   make(map[string]map[string]string),
	}
}

// Lookup returns the value of name as seen from a document in dir. The
// process environment wins, then the closest .env file, then farther ones.
// An empty dir (remote documents) consults the process environment only.
func (c *Cache) Lookup(name, dir string) (string, bool, error) {
	if value, ok := c.process[name]; ok {
		return value, true, nil
	}
	if dir == "" {
		return "", false, nil
	}

	vars, err := c.dotenvFor(dir)
	if err != nil {
		return "", false, err
	}
	value, ok := vars[name]
	return value, ok, nil
}

// LoadedFiles returns the .env files read so far, in discovery order
func (c *Cache) LoadedFiles() []string {
	return append([]string(nil), c.loaded...)
}

// dotenvFor returns the merged .env variables visible from dir
func (c *Cache) dotenvFor(dir string) (map[string]string, error) {
	dir = filepath.Clean(dir)
	if vars, ok := c.merged[dir]; ok {
		return vars, nil
	}

	vars := make(map[string]string)
	current := dir
	for range c.depth {
		fileVars, err := c.parseDir(current)
		if err != nil {
			return nil, err
		}
		for k, v := range fileVars {
			// Closer files were visited first and take precedence.
			if _, exists := vars[k]; !exists {
				vars[k] = v
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	c.merged[dir] = vars
	return vars, nil
}

func (c *Cache) parseDir(dir string) (map[string]string, error) {
	if vars, ok := c.files[dir]; ok {
		return vars, nil
	}

	path := filepath.Join(dir, DotenvFileName)
	content, err := c.readFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.files[dir] = nil
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read environment file %s securely: %w", path, err)
	}

	vars, err := godotenv.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDotenvParse, path, err)
	}

	c.logger.Debug("Loaded environment file", "path", path, "variables", len(vars))
	c.files[dir] = vars
	c.loaded = append(c.loaded, path)
	return vars, nil
}
