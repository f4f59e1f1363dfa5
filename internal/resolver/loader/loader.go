// Package loader reads configuration documents from local files or remote
// storage and decodes them into value trees.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/isseis/go-catalog-resolver/internal/resolver/security"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
)

// ErrRemoteUnsupported is returned when a remote URI is loaded without a remote loader
var ErrRemoteUnsupported = errors.New("remote documents are not supported")

// Document is a decoded configuration document
type Document struct {
	// Source is the canonical path or URI the document was read from
	Source string
	// Dir is the directory (or parent URL) relative references resolve against
	Dir string
	// Tree is the decoded body, including any imports key
	Tree tree.Tree
	// Remote is set for documents fetched through a remote loader
	Remote bool
	// Format is the format the body was decoded as
	Format Format
	// Size is the length of the raw content in bytes
	Size int
}

// Loader loads one document. Implementations return an error satisfying
// errors.Is(err, fs.ErrNotExist) when the target does not exist.
type Loader interface {
	Load(ctx context.Context, pathOrURI string) (*Document, error)
}

// Composite routes remote URIs to Remote and everything else to Local
type Composite struct {
	Local  Loader
	Remote Loader
}

// NewComposite creates a Composite loader. remote may be nil to disable remote documents.
func NewComposite(local, remote Loader) *Composite {
	return &Composite{Local: local, Remote: remote}
}

// Load implements Loader
func (c *Composite) Load(ctx context.Context, pathOrURI string) (*Document, error) {
	if security.IsRemote(pathOrURI) {
		if c.Remote == nil {
			return nil, fmt.Errorf("%w: %s", ErrRemoteUnsupported, pathOrURI)
		}
		return c.Remote.Load(ctx, pathOrURI)
	}
	return c.Local.Load(ctx, pathOrURI)
}
