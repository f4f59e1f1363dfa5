package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/isseis/go-catalog-resolver/internal/color"
	"github.com/isseis/go-catalog-resolver/internal/resolver"
	"github.com/isseis/go-catalog-resolver/internal/resolver/security"
	"github.com/spf13/cobra"
)

func (a *app) newImportsCommand() *cobra.Command {
	var flat bool

	cmd := &cobra.Command{
		Use:   "imports ROOT",
		Short: "Show the import graph of a root document",
		Example: `  catresolve imports catalog.yaml
  catresolve imports --flat catalog.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if flat {
				for _, source := range result.ImportChain {
					fmt.Fprintln(a.stdout, source)
				}
				return nil
			}
			printImportTree(a.stdout, result, a.palette)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flat, "flat", false, "print loaded documents one per line in load order")
	return cmd
}

// printImportTree renders the edges of result below the root document.
// Documents served from the cache are listed without their imports, which
// were shown where the document first appeared.
func printImportTree(w io.Writer, result *resolver.Result, p color.Palette) {
	if len(result.ImportChain) == 0 {
		return
	}
	root := result.ImportChain[0]
	baseDir := ""
	if !security.IsRemote(root) {
		baseDir = filepath.Dir(root)
	}

	children := make(map[string][]resolver.ImportEdge)
	for _, edge := range result.Edges {
		children[edge.From] = append(children[edge.From], edge)
	}

	fmt.Fprintln(w, p.Path(displayName(root, baseDir)))
	printChildren(w, children, root, "", baseDir, p)

	s := result.Stats
	fmt.Fprintf(w, "\n%d files, max depth %d, %d cache hits, %d skipped\n", s.Files, s.MaxDepth, s.CacheHits, s.Skipped)
}

func printChildren(w io.Writer, children map[string][]resolver.ImportEdge, from, indent, baseDir string, p color.Palette) {
	edges := children[from]
	for i, edge := range edges {
		branch, next := "├── ", "│   "
		if i == len(edges)-1 {
			branch, next = "└── ", "    "
		}

		var notes []string
		if edge.Section != "" {
			notes = append(notes, "section "+edge.Section)
		}
		if !edge.Override {
			notes = append(notes, "no override")
		}
		if edge.Cached {
			notes = append(notes, "cached")
		}
		if edge.Skipped {
			notes = append(notes, "skipped")
		}
		line := p.Path(displayName(edge.To, baseDir))
		if len(notes) > 0 {
			line += " " + p.Muted("("+strings.Join(notes, ", ")+")")
		}
		fmt.Fprintln(w, indent+branch+line)

		if !edge.Cached && !edge.Skipped {
			printChildren(w, children, edge.To, indent+next, baseDir, p)
		}
	}
}

// displayName shows local paths relative to the root directory when that
// is shorter; remote URIs are shown unchanged.
func displayName(source, baseDir string) string {
	if baseDir == "" || security.IsRemote(source) {
		return source
	}
	rel, err := filepath.Rel(baseDir, source)
	if err != nil || len(rel) >= len(source) {
		return source
	}
	return rel
}
