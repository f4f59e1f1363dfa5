package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/isseis/go-catalog-resolver/internal/resolver"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
	"github.com/isseis/go-catalog-resolver/internal/safefileio"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const outputFilePerm = 0o644

func (a *app) newResolveCommand() *cobra.Command {
	var (
		format     string
		jobs       int
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "resolve ROOT...",
		Short: "Print the merged tree of one or more root documents",
		Example: `  # Resolve one catalog
  catresolve resolve catalog.yaml

  # Resolve several catalogs concurrently as JSON
  catresolve resolve --format json --jobs 4 prod/catalog.yaml dev/catalog.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != outputYAML && format != outputJSON {
				return fmt.Errorf("%w: %q", errUnknownOutputFormat, format)
			}
			results, err := resolveAll(cmd.Context(), a.resolver, args, jobs)
			if err != nil {
				return err
			}

			trees := make([]tree.Tree, len(results))
			for i, r := range results {
				trees[i] = r.Tree
			}
			if outputPath == "" {
				return writeTrees(a.stdout, trees, format)
			}
			out, err := encodeTrees(trees, format)
			if err != nil {
				return err
			}
			return safefileio.SafeWriteFile(outputPath, out, outputFilePerm)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", outputYAML, "output format (yaml, json)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "roots resolved concurrently")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the result to a file instead of stdout")
	return cmd
}

// resolveAll resolves roots with at most jobs concurrent resolutions and
// returns the results in argument order. The first failure cancels the rest.
func resolveAll(ctx context.Context, r *resolver.Resolver, roots []string, jobs int) ([]*resolver.Result, error) {
	if jobs < 1 {
		jobs = 1
	}

	results := make([]*resolver.Result, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, root := range roots {
		g.Go(func() error {
			result, err := r.Resolve(ctx, root)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
