// Package terminal decides whether diagnostics go to a human at a terminal
// and whether that terminal should receive ANSI colors.
package terminal

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ciEnvVars are set by common CI systems
var ciEnvVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"CIRCLECI",
	"JENKINS_URL",
	"BUILDKITE",
	"TF_BUILD",
}

// colorTerminals lists TERM values, or prefixes before a '-', known to support colors
var colorTerminals = []string{
	"xterm",
	"screen",
	"tmux",
	"rxvt",
	"vt100",
	"ansi",
	"linux",
	"cygwin",
}

// Options are the command line overrides
type Options struct {
	ForceInteractive    bool
	ForceNonInteractive bool
	ForceColor          bool
	DisableColor        bool
}

// Capabilities reports terminal features
type Capabilities interface {
	IsInteractive() bool
	SupportsColor() bool
}

// Detector implements Capabilities from the environment and the file
// descriptor of the diagnostic stream.
type Detector struct {
	options   Options
	lookupEnv func(string) (string, bool)
	isTTY     func() bool
}

// NewDetector creates a Detector for stderr using the process environment
func NewDetector(options Options) *Detector {
	return &Detector{
		options:   options,
		lookupEnv: os.LookupEnv,
		isTTY:     func() bool { return term.IsTerminal(int(os.Stderr.Fd())) },
	}
}

// IsInteractive reports whether output is read by a person. Command line
// options win over CI detection, which wins over TTY detection.
func (d *Detector) IsInteractive() bool {
	if d.options.ForceInteractive {
		return true
	}
	if d.options.ForceNonInteractive {
		return false
	}
	if d.isCI() {
		return false
	}
	return d.isTTY()
}

// SupportsColor applies, in order: command line options, CLICOLOR_FORCE,
// NO_COLOR, then for interactive sessions CLICOLOR and the TERM value.
func (d *Detector) SupportsColor() bool {
	if d.options.ForceColor {
		return true
	}
	if d.options.DisableColor {
		return false
	}
	if v, ok := d.lookupEnv("CLICOLOR_FORCE"); ok && isTruthy(v) {
		return true
	}
	if _, ok := d.lookupEnv("NO_COLOR"); ok {
		return false
	}
	if !d.IsInteractive() || !d.termSupportsColor() {
		return false
	}
	if v, ok := d.lookupEnv("CLICOLOR"); ok && v != "" {
		return isTruthy(v)
	}
	return true
}

func (d *Detector) isCI() bool {
	for _, name := range ciEnvVars {
		v, ok := d.lookupEnv(name)
		if !ok || v == "" {
			continue
		}
		// CI=false is used to opt out explicitly
		if name == "CI" {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "false", "0", "no":
				continue
			}
		}
		return true
	}
	return false
}

func (d *Detector) termSupportsColor() bool {
	v, _ := d.lookupEnv("TERM")
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || v == "dumb" {
		return false
	}
	for _, t := range colorTerminals {
		if v == t || strings.HasPrefix(v, t+"-") {
			return true
		}
	}
	return false
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
