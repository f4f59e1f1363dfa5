package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	resolvererrors "github.com/isseis/go-catalog-resolver/internal/resolver/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func safeTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// runCLI runs catresolve with plain text diagnostics
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--log-format", "text", "--no-color"}, args...)
	code := run(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestResolveCommand(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{
		"base.yaml":    "duckdb:\n  database: base.duckdb\n  threads: 4\n",
		"catalog.yaml": "imports: [./base.yaml]\nduckdb:\n  database: main.duckdb\n",
	})

	code, stdout, stderr := runCLI(t, "resolve", filepath.Join(dir, "catalog.yaml"))
	require.Equal(t, resolvererrors.ExitOK, code, stderr)
	assert.Equal(t, "duckdb:\n  database: main.duckdb\n  threads: 4\n", stdout)
}

func TestResolveCommand_JSONMultipleRoots(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{
		"one.yaml": "name: one\n",
		"two.yaml": "name: two\n",
	})

	code, stdout, stderr := runCLI(t, "resolve", "--format", "json", "--jobs", "2",
		filepath.Join(dir, "one.yaml"), filepath.Join(dir, "two.yaml"))
	require.Equal(t, resolvererrors.ExitOK, code, stderr)
	assert.Equal(t, "{\n  \"name\": \"one\"\n}\n{\n  \"name\": \"two\"\n}\n", stdout)
}

func TestResolveCommand_OutputFile(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{"catalog.yaml": "a: 1\n"})
	out := filepath.Join(dir, "resolved.json")

	code, stdout, stderr := runCLI(t, "resolve", "-f", "json", "-o", out, filepath.Join(dir, "catalog.yaml"))
	require.Equal(t, resolvererrors.ExitOK, code, stderr)
	assert.Empty(t, stdout)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(content))
}

func TestResolveCommand_UnknownFormat(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{"catalog.yaml": "a: 1\n"})

	code, _, stderr := runCLI(t, "resolve", "--format", "xml", filepath.Join(dir, "catalog.yaml"))
	assert.Equal(t, resolvererrors.ExitOther, code)
	assert.Contains(t, stderr, "unknown output format")
}

func TestExitCodes(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{
		"cycle/a.yaml":           "imports: [b.yaml]\n",
		"cycle/b.yaml":           "imports: [a.yaml]\n",
		"missing/catalog.yaml":   "imports: [nowhere.yaml]\n",
		"p/q/r/traversal.yaml":   "imports: [\"../../../../etc/passwd\"]\n",
		"env/catalog.yaml":       "db: \"${env:CATRESOLVE_TEST_UNSET_VARIABLE}\"\n",
		"dup/a.yaml":             "views:\n  - name: users\n",
		"dup/catalog.yaml":       "imports: [a.yaml]\nviews:\n  - name: users\n",
		"malformed/catalog.yaml": "views: [unclosed\n",
		"conflict/a.yaml":        "settings: [1]\n",
		"conflict/catalog.yaml":  "imports: [a.yaml]\nsettings:\n  x: 1\n",
	})

	tests := []struct {
		root     string
		code     int
		category string
	}{
		{root: "cycle/a.yaml", code: resolvererrors.ExitGraph, category: "graph"},
		{root: "missing/catalog.yaml", code: resolvererrors.ExitGraph, category: "graph"},
		{root: "p/q/r/traversal.yaml", code: resolvererrors.ExitSecurity, category: "security"},
		{root: "env/catalog.yaml", code: resolvererrors.ExitEnvironment, category: "environment"},
		{root: "dup/catalog.yaml", code: resolvererrors.ExitValidation, category: "validation"},
		{root: "malformed/catalog.yaml", code: resolvererrors.ExitStructural, category: "structural"},
		{root: "conflict/catalog.yaml", code: resolvererrors.ExitStructural, category: "structural"},
	}

	for _, tt := range tests {
		t.Run(tt.root, func(t *testing.T) {
			code, stdout, stderr := runCLI(t, "resolve", filepath.Join(dir, filepath.FromSlash(tt.root)))
			assert.Equal(t, tt.code, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, "Resolution failed")
			assert.Contains(t, stderr, "category="+tt.category)
		})
	}
}

func TestValidateCommand(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{
		"good.yaml":   "imports: [shared.yaml]\n",
		"shared.yaml": "a: 1\n",
		"bad.yaml":    "imports: [bad.yaml]\n",
	})
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")

	code, stdout, _ := runCLI(t, "validate", good, bad)
	assert.Equal(t, resolvererrors.ExitGraph, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ok "+good+" (2 files)", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "FAIL "+bad+": [graph] circular import detected"), lines[1])

	code, _, _ = runCLI(t, "validate", good)
	assert.Equal(t, resolvererrors.ExitOK, code)
}

func TestImportsCommand(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{
		"shared.yaml":   "a: 1\n",
		"base.yaml":     "imports: [shared.yaml]\n",
		"tuning.yaml":   "duckdb:\n  threads: 2\n",
		"views/01.yaml": "views:\n  - name: one\n",
		"catalog.yaml": `imports:
  - base.yaml
  - views/*.yaml
  - shared.yaml
  - path: tuning.yaml
    section: duckdb
    override: false
  - path: local.yaml
    optional: true
`,
	})

	code, stdout, stderr := runCLI(t, "imports", filepath.Join(dir, "catalog.yaml"))
	require.Equal(t, resolvererrors.ExitOK, code, stderr)
	assert.Equal(t, `catalog.yaml
├── base.yaml
│   └── shared.yaml
├── views/01.yaml
├── shared.yaml (cached, skipped)
├── local.yaml (skipped)
└── tuning.yaml (section duckdb, no override)

5 files, max depth 3, 1 cache hits, 1 skipped
`, stdout)

	code, stdout, _ = runCLI(t, "imports", "--flat", filepath.Join(dir, "catalog.yaml"))
	require.Equal(t, resolvererrors.ExitOK, code)
	assert.Equal(t, []string{
		filepath.Join(dir, "catalog.yaml"),
		filepath.Join(dir, "base.yaml"),
		filepath.Join(dir, "shared.yaml"),
		filepath.Join(dir, "views", "01.yaml"),
		filepath.Join(dir, "tuning.yaml"),
	}, strings.Split(strings.TrimSpace(stdout), "\n"))
}

func TestSettingsAndFlagOverrides(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{
		"shared/common.yaml":     "common: true\n",
		"a/b/c/catalog.yaml":     "imports: [\"../../../shared/common.yaml\"]\n",
		"settings/relaxed.toml":  "max_parent_traversal = 3\n",
		"settings/unknown.toml":  "max_parent_traversals = 3\n",
		"near/sibling.yaml":      "near: true\n",
		"near/project/root.yaml": "imports: [\"../sibling.yaml\"]\n",
	})
	root := filepath.Join(dir, "a", "b", "c", "catalog.yaml")

	code, _, _ := runCLI(t, "resolve", root)
	assert.Equal(t, resolvererrors.ExitSecurity, code, "three levels exceed the default limit")

	code, stdout, stderr := runCLI(t, "--settings", filepath.Join(dir, "settings", "relaxed.toml"), "resolve", root)
	require.Equal(t, resolvererrors.ExitOK, code, stderr)
	assert.Contains(t, stdout, "common: true")

	code, _, _ = runCLI(t, "--max-parent-traversal", "3", "resolve", root)
	assert.Equal(t, resolvererrors.ExitOK, code)

	code, _, _ = runCLI(t, "--max-parent-traversal", "0", "resolve", filepath.Join(dir, "near", "project", "root.yaml"))
	assert.Equal(t, resolvererrors.ExitSecurity, code)

	code, _, stderr = runCLI(t, "--settings", filepath.Join(dir, "settings", "unknown.toml"), "resolve", root)
	assert.Equal(t, resolvererrors.ExitOther, code)
	assert.Contains(t, stderr, "Error:")

	code, _, _ = runCLI(t, "--deny-dir", filepath.Join(dir, "near"), "resolve", filepath.Join(dir, "near", "project", "root.yaml"))
	assert.Equal(t, resolvererrors.ExitSecurity, code, "root inside a denied directory")

	code, _, _ = runCLI(t, "--duplicate-policy", "sometimes", "resolve", root)
	assert.Equal(t, resolvererrors.ExitOther, code)
}

func TestNoRemoteFlag(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{"catalog.yaml": "imports: [\"s3://bucket/shared.yaml\"]\n"})

	code, _, stderr := runCLI(t, "--no-remote", "resolve", filepath.Join(dir, "catalog.yaml"))
	assert.Equal(t, resolvererrors.ExitSecurity, code)
	assert.Contains(t, stderr, "remote-disabled")
}

func TestMetricsTextfile(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{"catalog.yaml": "a: 1\n"})
	metricsFile := filepath.Join(dir, "catresolve.prom")

	code, _, stderr := runCLI(t, "--metrics-textfile", metricsFile, "resolve", filepath.Join(dir, "catalog.yaml"))
	require.Equal(t, resolvererrors.ExitOK, code, stderr)

	content, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `catresolve_resolutions_total{outcome="ok"} 1`)
	assert.Contains(t, string(content), `catresolve_documents_loaded_total{source="local"} 1`)
}

func TestLogFile(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{"catalog.yaml": "a: 1\n"})
	logFile := filepath.Join(dir, "logs", "catresolve.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(logFile), 0o755))

	code, _, stderr := runCLI(t, "--log-file", logFile, "resolve", filepath.Join(dir, "catalog.yaml"))
	require.Equal(t, resolvererrors.ExitOK, code, stderr)
	assert.NotContains(t, stderr, "Resolution completed", "stderr stays at warn level")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"Resolution completed"`)
	assert.Contains(t, string(content), `"request_id"`)
}

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchCommand(t *testing.T) {
	dir := safeTempDir(t)
	writeFiles(t, dir, map[string]string{
		"base.yaml":    "value: first\n",
		"catalog.yaml": "imports: [base.yaml]\n",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stdout, stderr syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"--log-format", "text", "watch", "--debounce", "50ms", filepath.Join(dir, "catalog.yaml")}, &stdout, &stderr)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "value: first")
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		// Rewrite until the watcher has been registered and reacts.
		_ = os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("value: second\n"), 0o644)
		return strings.Contains(stdout.String(), "value: second")
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, resolvererrors.ExitOK, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}
