// Package security validates every local path referenced by an import
// directive before the resolver touches it.
package security

const (
	// DefaultMaxParentTraversal is the number of ".." segments a relative reference may contain
	DefaultMaxParentTraversal = 2

	// DefaultMaxPathLength bounds the length of a canonical path
	DefaultMaxPathLength = 4096
)

// DeniedDirectories lists the POSIX system directories no reference may resolve into
var DeniedDirectories = []string{
	"/etc",
	"/usr",
	"/bin",
	"/sbin",
	"/lib",
	"/boot",
	"/dev",
	"/var/log",
	"/sys",
	"/proc",
}

// WindowsDeniedDirectories lists the Windows system directories. They are
// compared case-insensitively.
var WindowsDeniedDirectories = []string{
	`C:\Windows`,
	`C:\Program Files`,
	`C:\Program Files (x86)`,
	`C:\ProgramData`,
}

// Config holds the validator settings
type Config struct {
	// MaxParentTraversal is the maximum number of ".." segments in a relative reference
	MaxParentTraversal int
	// ExtraDeniedDirectories are appended to the built-in denylists
	ExtraDeniedDirectories []string
	// AllowRemote permits remote URIs; when false they are rejected
	AllowRemote bool
	// MaxPathLength bounds the canonical path length
	MaxPathLength int
}

// DefaultConfig returns the default validator configuration
func DefaultConfig() *Config {
	return &Config{
		MaxParentTraversal: DefaultMaxParentTraversal,
		AllowRemote:        true,
		MaxPathLength:      DefaultMaxPathLength,
	}
}
