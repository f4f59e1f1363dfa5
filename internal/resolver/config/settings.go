// Package config loads the resolver settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/isseis/go-catalog-resolver/internal/safefileio"
	"github.com/pelletier/go-toml/v2"
)

// Duplicate import policies
const (
	// DuplicatePolicyOnce lets a file contribute to the result only the first time it is imported
	DuplicatePolicyOnce = "once"
	// DuplicatePolicyEach merges a file again for every import that references it
	DuplicatePolicyEach = "each"
)

// Default values for settings fields
const (
	DefaultMaxParentTraversal = 2
	DefaultDotenvSearchDepth  = 10
	DefaultMaxImportDepth     = 64
	DefaultAllowRemote        = true
	DefaultDuplicatePolicy    = DuplicatePolicyOnce
	DefaultMaxFileSize        = safefileio.MaxFileSize

	// DefaultSettingsFile is looked up in the working directory when no file is named
	DefaultSettingsFile = ".catresolve.toml"

	// SettingsEnvVar names a settings file when the --settings flag is absent
	SettingsEnvVar = "CATRESOLVE_SETTINGS"
)

var (
	// ErrInvalidSettings is returned when the settings fail validation
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrSettingsParse is returned when the settings file is not valid TOML
	ErrSettingsParse = errors.New("failed to parse settings file")
)

// Settings controls the resolver. Pointer fields distinguish "unset" from a
// zero value so that ApplyDefaults only fills what the file left out.
type Settings struct {
	MaxParentTraversal *int     `toml:"max_parent_traversal" validate:"required,min=0,max=64"`
	DeniedDirs         []string `toml:"denied_dirs" validate:"dive,required"`
	DotenvSearchDepth  int      `toml:"dotenv_search_depth" validate:"min=1,max=64"`
	MaxImportDepth     int      `toml:"max_import_depth" validate:"min=1,max=4096"`
	AllowRemote        *bool    `toml:"allow_remote" validate:"required"`
	DuplicatePolicy    string   `toml:"duplicate_policy" validate:"oneof=once each"`
	MaxFileSize        int64    `toml:"max_file_size" validate:"min=1"`
}

// Default returns settings with every field at its default value
func Default() *Settings {
	s := &Settings{}
	ApplyDefaults(s)
	return s
}

// ApplyDefaults fills unset fields with their default values
func ApplyDefaults(s *Settings) {
	if s.MaxParentTraversal == nil {
		v := DefaultMaxParentTraversal
		s.MaxParentTraversal = &v
	}
	if s.DotenvSearchDepth == 0 {
		s.DotenvSearchDepth = DefaultDotenvSearchDepth
	}
	if s.MaxImportDepth == 0 {
		s.MaxImportDepth = DefaultMaxImportDepth
	}
	if s.AllowRemote == nil {
		v := DefaultAllowRemote
		s.AllowRemote = &v
	}
	if s.DuplicatePolicy == "" {
		s.DuplicatePolicy = DefaultDuplicatePolicy
	}
	if s.MaxFileSize == 0 {
		s.MaxFileSize = DefaultMaxFileSize
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// Load reads a settings file, applies defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (*Settings, error) {
	content, err := safefileio.SafeReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var s Settings
	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrSettingsParse, path, err)
	}

	ApplyDefaults(&s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Discover loads the settings file named by path, or by SettingsEnvVar, or
// DefaultSettingsFile in the working directory when present. Without any of
// them the defaults are returned. An explicitly named file must exist.
func Discover(path string, lookupEnv func(string) (string, bool)) (*Settings, error) {
	if path == "" && lookupEnv != nil {
		if v, ok := lookupEnv(SettingsEnvVar); ok && v != "" {
			path = v
		}
	}
	if path != "" {
		return Load(path)
	}

	if _, err := os.Stat(DefaultSettingsFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", DefaultSettingsFile, err)
	}
	return Load(DefaultSettingsFile)
}
