package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/isseis/go-catalog-resolver/internal/color"
	"github.com/isseis/go-catalog-resolver/internal/logging"
	"github.com/isseis/go-catalog-resolver/internal/metrics"
	"github.com/isseis/go-catalog-resolver/internal/resolver"
	"github.com/isseis/go-catalog-resolver/internal/resolver/config"
	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/isseis/go-catalog-resolver/internal/terminal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is set via ldflags during build
var Version = "dev"

// globalFlags are the persistent flags shared by every command
type globalFlags struct {
	settingsPath    string
	logLevel        string
	logFormat       string
	logFile         string
	forceColor      bool
	noColor         bool
	metricsTextfile string

	maxParentTraversal int
	deniedDirs         []string
	dotenvDepth        int
	maxImportDepth     int
	noRemote           bool
	duplicatePolicy    string
}

// exitCodeError carries an exit code for failures already reported to the user
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type app struct {
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)

	flags    globalFlags
	logger   *slog.Logger
	closeLog func() error
	metrics  *metrics.Collector
	resolver *resolver.Resolver
	palette  color.Palette
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:    stdout,
		stderr:    stderr,
		lookupEnv: os.LookupEnv,
		closeLog:  func() error { return nil },
	}
}

// run executes the command line and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	cmd := a.newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if finishErr := a.finish(); finishErr != nil && err == nil {
		err = finishErr
	}
	return a.report(err)
}

func (a *app) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catresolve",
		Short: "Resolve catalog configuration documents and their imports",
		Long: `catresolve loads a root catalog document, follows its imports (local
files, glob patterns and remote URIs), interpolates ${env:NAME} placeholders
and prints the merged result.

Exit codes:
  1    other errors
  3    malformed document or import declaration, merge conflict
  4    import cycle or missing import
  5    path security violation
  6    missing environment variable
  7    duplicate names in the merged catalog
  130  interrupted`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.flags.settingsPath, "settings", "", "settings file (default $"+config.SettingsEnvVar+" or ./"+config.DefaultSettingsFile+")")
	flags.StringVar(&a.flags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringVar(&a.flags.logFormat, "log-format", logging.FormatAuto, "diagnostic format (auto, text, json)")
	flags.StringVar(&a.flags.logFile, "log-file", "", "append JSON debug logs to this file")
	flags.BoolVar(&a.flags.forceColor, "color", false, "force colored output")
	flags.BoolVar(&a.flags.noColor, "no-color", false, "disable colored output")
	flags.StringVar(&a.flags.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	flags.IntVar(&a.flags.maxParentTraversal, "max-parent-traversal", config.DefaultMaxParentTraversal, "maximum '..' segments in a relative import")
	flags.StringSliceVar(&a.flags.deniedDirs, "deny-dir", nil, "additional directory imports may not reach (repeatable)")
	flags.IntVar(&a.flags.dotenvDepth, "dotenv-depth", config.DefaultDotenvSearchDepth, "directories searched upward for .env files")
	flags.IntVar(&a.flags.maxImportDepth, "max-import-depth", config.DefaultMaxImportDepth, "maximum import nesting")
	flags.BoolVar(&a.flags.noRemote, "no-remote", false, "reject remote imports")
	flags.StringVar(&a.flags.duplicatePolicy, "duplicate-policy", config.DefaultDuplicatePolicy, "how often a document imported twice contributes (once, each)")

	cmd.AddCommand(a.newResolveCommand())
	cmd.AddCommand(a.newImportsCommand())
	cmd.AddCommand(a.newValidateCommand())
	cmd.AddCommand(a.newWatchCommand())
	return cmd
}

// setup configures logging, loads the settings and builds the resolver
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(a.flags.logLevel)
	if err != nil {
		return err
	}

	caps := terminal.NewDetector(terminal.Options{
		ForceColor:   a.flags.forceColor,
		DisableColor: a.flags.noColor,
	})
	logger, closeLog, err := logging.Setup(logging.Options{
		Level:        level,
		Format:       a.flags.logFormat,
		Writer:       a.stderr,
		LogFile:      a.flags.logFile,
		Capabilities: caps,
	})
	if err != nil {
		return err
	}
	a.logger = logger
	a.closeLog = closeLog
	slog.SetDefault(logger)
	a.palette = color.NewPalette(caps.SupportsColor())

	settings, err := config.Discover(a.flags.settingsPath, a.lookupEnv)
	if err != nil {
		return err
	}
	a.applyOverrides(cmd.Flags(), settings)
	if err := settings.Validate(); err != nil {
		return err
	}
	logger.Debug("Settings loaded",
		"max_parent_traversal", *settings.MaxParentTraversal,
		"allow_remote", *settings.AllowRemote,
		"duplicate_policy", settings.DuplicatePolicy)

	if a.flags.metricsTextfile != "" {
		a.metrics = metrics.NewCollector(metrics.DefaultNamespace)
	}
	a.resolver = resolver.New(settings,
		resolver.WithLogger(logger),
		resolver.WithMetrics(a.metrics))
	return nil
}

// applyOverrides copies explicitly set flags over the settings file values
func (a *app) applyOverrides(flags *pflag.FlagSet, s *config.Settings) {
	if flags.Changed("max-parent-traversal") {
		v := a.flags.maxParentTraversal
		s.MaxParentTraversal = &v
	}
	if flags.Changed("deny-dir") {
		s.DeniedDirs = append(s.DeniedDirs, a.flags.deniedDirs...)
	}
	if flags.Changed("dotenv-depth") {
		s.DotenvSearchDepth = a.flags.dotenvDepth
	}
	if flags.Changed("max-import-depth") {
		s.MaxImportDepth = a.flags.maxImportDepth
	}
	if flags.Changed("no-remote") {
		allow := !a.flags.noRemote
		s.AllowRemote = &allow
	}
	if flags.Changed("duplicate-policy") {
		s.DuplicatePolicy = a.flags.duplicatePolicy
	}
}

func (a *app) finish() error {
	var errs []error
	if a.flags.metricsTextfile != "" && a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.flags.metricsTextfile); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if err := a.closeLog(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
	}
	return errors.Join(errs...)
}

// report prints err and returns the exit code for it
func (a *app) report(err error) int {
	if err == nil {
		return resolvererrors.ExitOK
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	c := resolvererrors.Classify(err)
	if c.Category == resolvererrors.CategoryOther || a.logger == nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return c.ExitCode
	}
	resolvererrors.LogClassified(a.logger, err)
	return c.ExitCode
}
