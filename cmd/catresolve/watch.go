package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/isseis/go-catalog-resolver/internal/resolver"
	"github.com/isseis/go-catalog-resolver/internal/resolver/security"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
	"github.com/spf13/cobra"
)

const defaultDebounce = 500 * time.Millisecond

func (a *app) newWatchCommand() *cobra.Command {
	var (
		format   string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch ROOT",
		Short: "Resolve a root document again whenever a file it uses changes",
		Long: `Resolve ROOT and print the result, then watch every local document in
its import chain and every .env file it read. Changes are debounced and
trigger a new resolution. Failed resolutions are reported and watching
continues. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != outputYAML && format != outputJSON {
				return fmt.Errorf("%w: %q", errUnknownOutputFormat, format)
			}
			w, err := newChainWatcher(a.logger, debounce)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := w.Close(); closeErr != nil {
					a.logger.Warn("Failed to close watcher", "error", closeErr)
				}
			}()

			return w.Run(cmd.Context(), args[0], a.resolver, func(result *resolver.Result) error {
				return writeTrees(a.stdout, []tree.Tree{result.Tree}, format)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", outputYAML, "output format (yaml, json)")
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "quiet period before re-resolving")
	return cmd
}

// chainWatcher re-resolves a root whenever a file of its last import chain
// changes. Directories are watched rather than files so that editors that
// replace files by renaming are noticed.
type chainWatcher struct {
	logger   *slog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	// files are the paths whose changes trigger a resolution
	files map[string]struct{}
	// dirs are the directories currently added to the watcher
	dirs map[string]struct{}
}

func newChainWatcher(logger *slog.Logger, debounce time.Duration) (*chainWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &chainWatcher{
		logger:   logger,
		debounce: debounce,
		watcher:  watcher,
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
	}, nil
}

// Close stops the underlying watcher
func (w *chainWatcher) Close() error {
	return w.watcher.Close()
}

// Run resolves root, calls emit with the result and repeats after every
// relevant change until ctx is cancelled. The first resolution must succeed.
func (w *chainWatcher) Run(ctx context.Context, root string, r *resolver.Resolver, emit func(*resolver.Result) error) error {
	result, err := r.Resolve(ctx, root)
	if err != nil {
		return err
	}
	if err := emit(result); err != nil {
		return err
	}
	w.track(result)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("Watched file changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", "error", err)

		case <-fire:
			fire = nil
			result, err := r.Resolve(ctx, root)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("Resolution failed, keeping previous watch set", "root", root, "error", err)
				continue
			}
			if err := emit(result); err != nil {
				return err
			}
			w.track(result)
		}
	}
}

// track replaces the watch set with the local documents and .env files of result
func (w *chainWatcher) track(result *resolver.Result) {
	files := make(map[string]struct{})
	for _, source := range result.ImportChain {
		if !security.IsRemote(source) {
			files[filepath.Clean(source)] = struct{}{}
		}
	}
	for _, env := range result.EnvFiles {
		files[filepath.Clean(env)] = struct{}{}
	}

	dirs := make(map[string]struct{})
	for f := range files {
		dirs[filepath.Dir(f)] = struct{}{}
	}

	for dir := range w.dirs {
		if _, keep := dirs[dir]; keep {
			continue
		}
		if err := w.watcher.Remove(dir); err != nil {
			w.logger.Debug("Failed to stop watching directory", "dir", dir, "error", err)
		}
	}
	for dir := range dirs {
		if _, watched := w.dirs[dir]; watched {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("Failed to watch directory", "dir", dir, "error", err)
			delete(dirs, dir)
		}
	}

	w.files = files
	w.dirs = dirs
	w.logger.Info("Watching import chain", "files", len(files), "dirs", len(dirs))
}

// relevant reports whether event may change the resolution: a write,
// creation, removal or rename of a tracked file, or a new file in a
// watched directory (it may now match an import glob).
func (w *chainWatcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Clean(event.Name)
	if _, ok := w.files[name]; ok {
		return true
	}
	return event.Has(fsnotify.Create)
}
