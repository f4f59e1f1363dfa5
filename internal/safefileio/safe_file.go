package safefileio

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
)

// MaxFileSize is the default maximum file size for SafeReadFile (128 MB)
const MaxFileSize = 128 * 1024 * 1024

// SafeReadFile reads a file safely after validating the path and checking file properties.
// It enforces a maximum file size of MaxFileSize to prevent memory exhaustion.
func SafeReadFile(filePath string) ([]byte, error) {
	return SafeReadFileWithLimit(filePath, MaxFileSize)
}

// SafeReadFileWithLimit is SafeReadFile with a caller supplied size limit.
// The file is opened with O_NOFOLLOW and every parent directory is checked
// after opening, so a symlink swapped in between validation and read is
// detected. A limit <= 0 selects MaxFileSize.
func SafeReadFileWithLimit(filePath string, limit int64) ([]byte, error) {
	if filePath == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidFilePath)
	}
	if limit <= 0 {
		limit = MaxFileSize
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilePath, err)
	}

	// #nosec G304 - absPath is cleaned above and O_NOFOLLOW rejects a final symlink
	file, err := os.OpenFile(absPath, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if isNoFollowError(err) {
			return nil, fmt.Errorf("%w: %s", ErrIsSymlink, absPath)
		}
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("error closing file", slog.String("path", absPath), slog.Any("error", closeErr))
		}
	}()

	if err := verifyPathComponents(absPath); err != nil {
		return nil, err
	}

	return readFileContent(file, absPath, limit)
}

// verifyPathComponents checks if any directory component of the path is a symlink.
// This is called after opening the file to prevent TOCTOU attacks.
func verifyPathComponents(absPath string) error {
	current := filepath.Dir(absPath)
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return nil
		}

		fi, err := os.Lstat(current)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", current, err)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s", ErrIsSymlink, current)
		}

		current = parent
	}
}

// readFileContent reads and validates the content of an already opened file
func readFileContent(file *os.File, filePath string, limit int64) ([]byte, error) {
	fileInfo, err := validateFile(file, filePath)
	if err != nil {
		return nil, err
	}

	if fileInfo.Size() > limit {
		return nil, fmt.Errorf("%w: %s (%d bytes, limit %d)", ErrFileTooLarge, filePath, fileInfo.Size(), limit)
	}

	content, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if int64(len(content)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, filePath)
	}

	return content, nil
}

// validateFile checks if the file is a regular file and returns its FileInfo
// To prevent TOCTOU attacks, we use the file descriptor to get the file info
func validateFile(file *os.File, filePath string) (os.FileInfo, error) {
	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", ErrInvalidFilePath, filePath)
	}

	return fileInfo, nil
}
