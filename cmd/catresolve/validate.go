package main

import (
	"fmt"
	"runtime"

	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (a *app) newValidateCommand() *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "validate ROOT...",
		Short: "Resolve root documents and report problems without printing them",
		Long: `Resolve every root and print one status line per root. All roots are
checked even when some fail; the exit code is the one of the first failing
root in argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobs < 1 {
				jobs = 1
			}
			errs := make([]error, len(args))
			files := make([]int, len(args))

			var g errgroup.Group
			g.SetLimit(jobs)
			for i, root := range args {
				g.Go(func() error {
					result, err := a.resolver.Resolve(cmd.Context(), root)
					if err != nil {
						errs[i] = err
						return nil
					}
					files[i] = result.Stats.Files
					return nil
				})
			}
			_ = g.Wait()

			code := resolvererrors.ExitOK
			for i, root := range args {
				if errs[i] == nil {
					fmt.Fprintf(a.stdout, "%s %s (%d files)\n", a.palette.Path("ok"), root, files[i])
					continue
				}
				c := resolvererrors.Classify(errs[i])
				fmt.Fprintf(a.stdout, "%s %s: [%s] %v\n", a.palette.Error("FAIL"), root, c.Category, errs[i])
				resolvererrors.LogClassified(a.logger.With("root", root), errs[i])
				if code == resolvererrors.ExitOK {
					code = c.ExitCode
				}
			}
			if code != resolvererrors.ExitOK {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "roots validated concurrently")
	return cmd
}
