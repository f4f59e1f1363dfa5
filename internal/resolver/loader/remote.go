package loader

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// RemoteLoader fetches documents through an afs.Service (s3, gs, http(s),
// mem and every other scheme registered with afs). Credentials are handled
// by afs itself.
type RemoteLoader struct {
	fs afs.Service
}

// NewRemoteLoader creates a RemoteLoader. A nil service selects afs.New().
func NewRemoteLoader(service afs.Service) *RemoteLoader {
	if service == nil {
		service = afs.New()
	}
	return &RemoteLoader{fs: service}
}

// Load implements Loader
func (l *RemoteLoader) Load(ctx context.Context, URL string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exists, err := l.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", URL, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, URL)
	}

	content, err := l.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", URL, err)
	}

	format := FormatFor(url.Path(URL))
	t, err := Decode(content, format, URL)
	if err != nil {
		return nil, err
	}

	parent, _ := url.Split(URL, file.Scheme)
	return &Document{
		Source: URL,
		Dir:    parent,
		Tree:   t,
		Remote: true,
		Format: format,
		Size:   len(content),
	}, nil
}

// JoinRemote resolves a relative reference against a remote base URL and
// normalises "." and ".." segments. The result never climbs above the
// bucket or host root.
func JoinRemote(baseURL, ref string) string {
	return normalizeURL(url.Join(baseURL, ref))
}

func normalizeURL(u string) string {
	schemeEnd := strings.Index(u, "://")
	if schemeEnd < 0 {
		return u
	}
	rest := u[schemeEnd+3:]
	hostEnd := strings.Index(rest, "/")
	if hostEnd < 0 {
		return u
	}
	host, p := rest[:hostEnd], rest[hostEnd:]
	return u[:schemeEnd+3] + host + path.Clean(p)
}
