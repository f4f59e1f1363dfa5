package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
	"gopkg.in/yaml.v3"
)

// Output formats for resolved trees
const (
	outputYAML = "yaml"
	outputJSON = "json"
)

var errUnknownOutputFormat = errors.New("unknown output format")

// encodeTrees renders trees in order: a YAML stream with one document per
// tree, or a sequence of indented JSON documents.
func encodeTrees(trees []tree.Tree, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		for _, t := range trees {
			if err := enc.Encode(t); err != nil {
				return nil, fmt.Errorf("failed to encode YAML: %w", err)
			}
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
	case outputJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		for _, t := range trees {
			if err := enc.Encode(t); err != nil {
				return nil, fmt.Errorf("failed to encode JSON: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownOutputFormat, format)
	}
	return buf.Bytes(), nil
}

func writeTrees(w io.Writer, trees []tree.Tree, format string) error {
	out, err := encodeTrees(trees, format)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
