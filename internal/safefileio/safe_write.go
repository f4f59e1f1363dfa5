package safefileio

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
)

// SafeOpenForAppend opens filePath for appending, creating it with perm when
// absent. Neither the file nor any parent directory may be a symlink.
func SafeOpenForAppend(filePath string, perm os.FileMode) (*os.File, error) {
	return safeOpenForWrite(filePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, perm)
}

// SafeWriteFile writes content to filePath, truncating an existing file.
// Symlinks are rejected like in SafeReadFile.
func SafeWriteFile(filePath string, content []byte, perm os.FileMode) (err error) {
	file, err := safeOpenForWrite(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", filePath, closeErr)
		}
	}()

	if _, err := file.Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	return nil
}

func safeOpenForWrite(filePath string, flag int, perm os.FileMode) (*os.File, error) {
	if filePath == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidFilePath)
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilePath, err)
	}

	// #nosec G304 - absPath is cleaned above and O_NOFOLLOW rejects a final symlink
	file, err := os.OpenFile(absPath, flag|syscall.O_NOFOLLOW, perm)
	if err != nil {
		if isNoFollowError(err) {
			return nil, fmt.Errorf("%w: %s", ErrIsSymlink, absPath)
		}
		return nil, err
	}

	if err := verifyPathComponents(absPath); err != nil {
		closeQuietly(file)
		return nil, err
	}
	if _, err := validateFile(file, absPath); err != nil {
		closeQuietly(file)
		return nil, err
	}
	return file, nil
}

func closeQuietly(file *os.File) {
	if err := file.Close(); err != nil {
		slog.Warn("error closing file", slog.String("path", file.Name()), slog.Any("error", err))
	}
}
