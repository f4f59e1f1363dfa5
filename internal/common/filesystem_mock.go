package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultDirPerm represents default directory permissions (rwxr-xr-x)
	DefaultDirPerm = 0o755

	// SymlinkPerm represents default symlink permissions (rwxrwxrwx)
	SymlinkPerm = 0o777

	// maxSymlinkHops mirrors the kernel limit that produces ELOOP
	maxSymlinkHops = 40
)

// ErrTooManySymlinks is returned by MockFileSystem.EvalSymlinks on symlink loops
var ErrTooManySymlinks = errors.New("too many levels of symbolic links")

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	files map[string]*MockFileInfo
	dirs  map[string]bool
	// Symlinks maps symlink path to target path
	symlinks map[string]string
	cwd      string
}

// MockFileInfo implements fs.FileInfo for testing
type MockFileInfo struct {
	name      string
	size      int64
	mode      os.FileMode
	modTime   time.Time
	isDir     bool
	isSymlink bool
}

// Name returns the base name of the file
func (m *MockFileInfo) Name() string { return m.name }

// Size returns the length in bytes
func (m *MockFileInfo) Size() int64 { return m.size }

// Mode returns the file mode bits
func (m *MockFileInfo) Mode() os.FileMode {
	if m.isSymlink {
		return m.mode | os.ModeSymlink
	}
	return m.mode
}

// ModTime returns the modification time
func (m *MockFileInfo) ModTime() time.Time { return m.modTime }

// IsDir reports whether m describes a directory
func (m *MockFileInfo) IsDir() bool { return m.isDir }

// Sys returns nil; the mock has no underlying data source
func (m *MockFileInfo) Sys() any { return nil }

// NewMockFileSystem creates a new MockFileSystem with "/" as its only
// directory and working directory.
func NewMockFileSystem() *MockFileSystem {
	fs := &MockFileSystem{
		files:    make(map[string]*MockFileInfo),
		dirs:     make(map[string]bool),
		symlinks: make(map[string]string),
		cwd:      "/",
	}
	fs.AddDir("/", DefaultDirPerm)
	return fs
}

// SetWorkingDir changes the directory returned by Getwd (for testing)
func (m *MockFileSystem) SetWorkingDir(dir string) {
	m.cwd = filepath.Clean(dir)
}

// Getwd returns the configured working directory
func (m *MockFileSystem) Getwd() (string, error) {
	return m.cwd, nil
}

// Lstat returns file information for the given path
func (m *MockFileSystem) Lstat(path string) (fs.FileInfo, error) {
	path = filepath.Clean(path)

	info, exists := m.files[path]
	if !exists {
		return nil, &fs.PathError{Op: "lstat", Path: path, Err: fs.ErrNotExist}
	}
	return info, nil
}

// Stat returns file information for the given path, following symlinks
func (m *MockFileSystem) Stat(path string) (fs.FileInfo, error) {
	resolved, err := m.EvalSymlinks(path)
	if err != nil {
		return nil, err
	}
	return m.Lstat(resolved)
}

// EvalSymlinks resolves every symlink component of path. Like
// filepath.EvalSymlinks it fails when a component does not exist.
func (m *MockFileSystem) EvalSymlinks(path string) (string, error) {
	path = filepath.Clean(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.cwd, path)
	}

	hops := 0
	resolved := string(filepath.Separator)
	remaining := strings.Split(strings.TrimPrefix(path, string(filepath.Separator)), string(filepath.Separator))

	for len(remaining) > 0 {
		part := remaining[0]
		remaining = remaining[1:]
		if part == "" {
			continue
		}

		next := filepath.Join(resolved, part)
		if _, exists := m.files[next]; !exists {
			return "", &fs.PathError{Op: "lstat", Path: next, Err: fs.ErrNotExist}
		}

		target, isLink := m.symlinks[next]
		if !isLink {
			resolved = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", fmt.Errorf("%w: %s", ErrTooManySymlinks, path)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(resolved, target)
		}
		rest := append(strings.Split(strings.TrimPrefix(filepath.Clean(target), string(filepath.Separator)), string(filepath.Separator)), remaining...)
		resolved = string(filepath.Separator)
		remaining = rest
	}

	return resolved, nil
}

// ReadDir lists the direct children of a directory, sorted by name
func (m *MockFileSystem) ReadDir(path string) ([]fs.DirEntry, error) {
	path = filepath.Clean(path)
	if !m.dirs[path] {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrNotExist}
	}

	var entries []fs.DirEntry
	for p, info := range m.files {
		if p != path && filepath.Dir(p) == path {
			entries = append(entries, fs.FileInfoToDirEntry(info))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// IsDir checks if the path is a directory in the mock filesystem
func (m *MockFileSystem) IsDir(path string) (bool, error) {
	info, err := m.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// AddFile adds a file and its parent directories to the mock filesystem (for testing)
func (m *MockFileSystem) AddFile(path string, mode os.FileMode, content []byte) {
	path = filepath.Clean(path)
	m.mkdirAll(filepath.Dir(path))

	m.files[path] = &MockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(content)),
		mode:    mode,
		modTime: time.Now(),
	}
}

// AddDir adds a directory and its parents to the mock filesystem (for testing)
func (m *MockFileSystem) AddDir(path string, mode os.FileMode) {
	path = filepath.Clean(path)
	m.mkdirAll(filepath.Dir(path))

	m.dirs[path] = true
	m.files[path] = &MockFileInfo{
		name:    filepath.Base(path),
		mode:    mode | os.ModeDir,
		modTime: time.Now(),
		isDir:   true,
	}
}

// AddSymlink adds a symbolic link to the mock filesystem (for testing).
// Relative targets are interpreted against the link's directory.
func (m *MockFileSystem) AddSymlink(linkPath, targetPath string) {
	linkPath = filepath.Clean(linkPath)
	m.mkdirAll(filepath.Dir(linkPath))

	m.symlinks[linkPath] = targetPath
	m.files[linkPath] = &MockFileInfo{
		name:      filepath.Base(linkPath),
		mode:      SymlinkPerm,
		modTime:   time.Now(),
		isSymlink: true,
	}
}

// GetFiles returns all paths in the mock filesystem (for testing)
func (m *MockFileSystem) GetFiles() []string {
	files := make([]string, 0, len(m.files))
	for path := range m.files {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

func (m *MockFileSystem) mkdirAll(path string) {
	path = filepath.Clean(path)
	for !m.dirs[path] {
		m.dirs[path] = true
		m.files[path] = &MockFileInfo{
			name:    filepath.Base(path),
			mode:    DefaultDirPerm | os.ModeDir,
			modTime: time.Now(),
			isDir:   true,
		}
		parent := filepath.Dir(path)
		if parent == path {
			return
		}
		path = parent
	}
}
