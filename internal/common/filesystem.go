// Package common provides shared interfaces and utilities used across the resolver packages.
//
//nolint:revive // var-naming: package name "common" is intentional for shared internal utilities
package common

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem defines the interface for the read-only file system operations
// the resolver needs. It allows mocking in tests and keeps symlink handling
// consistent across packages.
type FileSystem interface {
	// Lstat returns file information without following a final symlink
	Lstat(path string) (fs.FileInfo, error)

	// Stat returns file information, following symlinks
	Stat(path string) (fs.FileInfo, error)

	// EvalSymlinks returns the path name after evaluating all symbolic links
	EvalSymlinks(path string) (string, error)

	// ReadDir lists the entries of a directory, sorted by file name
	ReadDir(path string) ([]fs.DirEntry, error)

	// IsDir checks if the path is a directory
	IsDir(path string) (bool, error)

	// Getwd returns the current working directory
	Getwd() (string, error)
}

// DefaultFileSystem implements FileSystem using standard os package functions
type DefaultFileSystem struct{}

// NewDefaultFileSystem creates a new DefaultFileSystem
func NewDefaultFileSystem() *DefaultFileSystem {
	return &DefaultFileSystem{}
}

// Lstat returns file information
func (fs *DefaultFileSystem) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// Stat returns file information, following symlinks
func (fs *DefaultFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// EvalSymlinks returns the path name after evaluating all symbolic links
func (fs *DefaultFileSystem) EvalSymlinks(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

// ReadDir lists the entries of a directory
func (fs *DefaultFileSystem) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

// IsDir checks if the path is a directory
func (fs *DefaultFileSystem) IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Getwd returns the current working directory
func (fs *DefaultFileSystem) Getwd() (string, error) {
	return os.Getwd()
}

// CountPathTraversalSegments returns the number of ".." segments in path.
// Both '/' and '\' are treated as separators regardless of the host OS, so
// Windows-style references are counted the same way everywhere.
func CountPathTraversalSegments(path string) int {
	count := 0
	for _, segment := range splitAnySeparator(path) {
		if segment == ".." {
			count++
		}
	}
	return count
}

func splitAnySeparator(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}
