package loader

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/isseis/go-catalog-resolver/internal/resolver/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
)

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFor("catalog.yaml"))
	assert.Equal(t, FormatYAML, FormatFor("catalog.YML"))
	assert.Equal(t, FormatJSON, FormatFor("/cfg/catalog.json"))
	assert.Equal(t, FormatJSON, FormatFor("catalog.jsonc"))
	assert.Equal(t, FormatTOML, FormatFor("s3://bucket/catalog.toml"))
	assert.Equal(t, FormatYAML, FormatFor("catalog"))
}

func TestDecode(t *testing.T) {
	want := tree.Tree{
		"duckdb": map[string]any{"database": "main.duckdb"},
		"views":  []any{map[string]any{"name": "users"}},
	}

	tests := []struct {
		name    string
		format  Format
		content string
	}{
		{"yaml", FormatYAML, "duckdb:\n  database: main.duckdb\nviews:\n  - name: users\n"},
		{"json with comments", FormatJSON, "{\n  // database settings\n  \"duckdb\": {\"database\": \"main.duckdb\"},\n  \"views\": [{\"name\": \"users\"},],\n}\n"},
		{"toml", FormatTOML, "[duckdb]\ndatabase = \"main.duckdb\"\n\n[[views]]\nname = \"users\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.content), tt.format, "catalog")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte("a: [1, 2\n"), FormatYAML, "/cfg/broken.yaml")
	var parseErr *resolvererrors.DocumentParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "/cfg/broken.yaml", parseErr.Source)

	_, err = Decode([]byte("- a\n- b\n"), FormatYAML, "/cfg/list.yaml")
	assert.ErrorIs(t, err, resolvererrors.ErrDocumentParse)

	got, err := Decode([]byte("  \n"), FormatYAML, "/cfg/empty.yaml")
	require.NoError(t, err)
	assert.Equal(t, tree.Tree{}, got)

	got, err = Decode([]byte("~\n"), FormatYAML, "/cfg/null.yaml")
	require.NoError(t, err)
	assert.Equal(t, tree.Tree{}, got)
}

func TestFileLoader(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("duckdb:\n  database: main.duckdb\n"), 0o644))

	l := NewFileLoader(0)
	doc, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Source)
	assert.Equal(t, dir, doc.Dir)
	assert.False(t, doc.Remote)
	assert.Equal(t, FormatYAML, doc.Format)
	assert.Equal(t, len("duckdb:\n  database: main.duckdb\n"), doc.Size)
	assert.Equal(t, "main.duckdb", doc.Tree["duckdb"].(map[string]any)["database"])

	_, err = l.Load(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Load(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoteLoader(t *testing.T) {
	ctx := context.Background()
	service := afs.New()
	URL := "mem://localhost/catalogs/remote001/catalog.yaml"
	require.NoError(t, service.Upload(ctx, URL, file.DefaultFileOsMode, strings.NewReader("views:\n  - name: remote_users\n")))

	l := NewRemoteLoader(service)
	doc, err := l.Load(ctx, URL)
	require.NoError(t, err)
	assert.True(t, doc.Remote)
	assert.Equal(t, URL, doc.Source)
	assert.Equal(t, "mem://localhost/catalogs/remote001", doc.Dir)
	assert.Equal(t, len("views:\n  - name: remote_users\n"), doc.Size)
	assert.Equal(t, []any{map[string]any{"name": "remote_users"}}, doc.Tree["views"])

	_, err = l.Load(ctx, "mem://localhost/catalogs/remote001/missing.yaml")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestJoinRemote(t *testing.T) {
	assert.Equal(t, "s3://bucket/catalogs/views.yaml", JoinRemote("s3://bucket/catalogs", "views.yaml"))
	assert.Equal(t, "s3://bucket/shared/views.yaml", JoinRemote("s3://bucket/catalogs", "../shared/views.yaml"))
	assert.Equal(t, "s3://bucket/catalogs/sub/a.yaml", JoinRemote("s3://bucket/catalogs", "./sub/a.yaml"))
}

type stubLoader struct {
	calls []string
}

func (s *stubLoader) Load(_ context.Context, p string) (*Document, error) {
	s.calls = append(s.calls, p)
	return &Document{Source: p, Tree: tree.Tree{}}, nil
}

func TestComposite(t *testing.T) {
	local, remote := &stubLoader{}, &stubLoader{}
	c := NewComposite(local, remote)

	_, err := c.Load(context.Background(), "/cfg/a.yaml")
	require.NoError(t, err)
	_, err = c.Load(context.Background(), "s3://bucket/b.yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"/cfg/a.yaml"}, local.calls)
	assert.Equal(t, []string{"s3://bucket/b.yaml"}, remote.calls)

	_, err = NewComposite(local, nil).Load(context.Background(), "s3://bucket/b.yaml")
	assert.ErrorIs(t, err, ErrRemoteUnsupported)
}
