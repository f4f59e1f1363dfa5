package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format identifies a document encoding
type Format string

// Supported formats
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFor selects the format from the file extension of name. Unknown
// extensions are decoded as YAML, which also accepts plain JSON.
func FormatFor(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".jsonc":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// Decode decodes content into a normalised tree. An empty document decodes
// to an empty tree; a document whose top level is not a mapping is rejected.
func Decode(content []byte, format Format, source string) (tree.Tree, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return tree.Tree{}, nil
	}

	var raw any
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(jsonc.ToJSON(content), &raw)
	case FormatTOML:
		var m map[string]any
		err = toml.Unmarshal(content, &m)
		raw = m
	default:
		err = yaml.Unmarshal(content, &raw)
	}
	if err != nil {
		return nil, &resolvererrors.DocumentParseError{Source: source, Format: string(format), Cause: err}
	}

	switch v := tree.Normalize(raw).(type) {
	case nil:
		return tree.Tree{}, nil
	case map[string]any:
		return v, nil
	default:
		return nil, &resolvererrors.DocumentParseError{
			Source: source,
			Format: string(format),
			Cause:  fmt.Errorf("top level must be a mapping, got %s", tree.KindOf(v)),
		}
	}
}
