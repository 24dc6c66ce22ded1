package match

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]int) {
	t.Helper()
	for name, size := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	}
}

func paths(sel *Selection, root string) []string {
	out := make([]string, 0, len(sel.Files))
	for _, f := range sel.Files {
		rel, _ := filepath.Rel(root, f.Path)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestExpand(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]int{
		"spec.zip":              10,
		"docs/a.zip":            10,
		"docs/b.zip":            10,
		"docs/notes.txt":        10,
		"docs/2026/c.zip":       10,
		"docs/draft-d.zip":      10,
		"docs/.old/e.zip":       10,
		"docs/big.zip":          4096,
		"archive/2025/f.zip":    10,
		"archive/2025/readme.md": 10,
	})
	rootSlash := filepath.ToSlash(root)

	tests := []struct {
		name        string
		args        []string
		opts        ExpandOptions
		want        []string
		wantSkipped int
	}{
		{
			name: "literal file",
			args: []string{filepath.Join(root, "spec.zip")},
			want: []string{"spec.zip"},
		},
		{
			name: "glob",
			args: []string{rootSlash + "/docs/*.zip"},
			want: []string{"docs/a.zip", "docs/b.zip", "docs/big.zip", "docs/draft-d.zip"},
		},
		{
			name: "doublestar with exclude",
			args: []string{rootSlash + "/docs/**/*.zip"},
			opts: ExpandOptions{Excludes: []string{"draft-*", "big.zip"}},
			want: []string{"docs/2026/c.zip", "docs/a.zip", "docs/b.zip"},
		},
		{
			name: "hidden included on request",
			args: []string{rootSlash + "/docs/**/*.zip"},
			opts: ExpandOptions{IncludeHidden: true, Excludes: []string{"draft-*", "big.zip", "a.zip", "b.zip"}},
			want: []string{"docs/.old/e.zip", "docs/2026/c.zip"},
		},
		{
			name: "directory with filter",
			args: []string{filepath.Join(root, "archive")},
			opts: ExpandOptions{Filter: mustFilter(t, &FilterConfig{Extensions: []string{"zip"}})},
			want:        []string{"archive/2025/f.zip"},
			wantSkipped: 1,
		},
		{
			name: "dedupe across args",
			args: []string{filepath.Join(root, "docs", "a.zip"), rootSlash + "/docs/a.*"},
			want: []string{"docs/a.zip"},
		},
		{
			name:        "size filter skips",
			args:        []string{rootSlash + "/docs/*.zip"},
			opts:        ExpandOptions{Filter: mustFilter(t, &FilterConfig{Size: &SizeFilterConfig{Max: "1KiB"}})},
			want:        []string{"docs/a.zip", "docs/b.zip", "docs/draft-d.zip"},
			wantSkipped: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Expand(tt.args, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, paths(sel, root))
			assert.Len(t, sel.Skipped, tt.wantSkipped)
		})
	}
}

func TestExpand_Errors(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]int{"a.txt": 1})

	_, err := Expand([]string{filepath.Join(root, "missing.zip")}, ExpandOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	sel, err := Expand([]string{filepath.ToSlash(root) + "/*.zip"}, ExpandOptions{})
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Empty(t, sel.Files)

	_, err = Expand([]string{filepath.ToSlash(root) + "/nope/*.zip"}, ExpandOptions{})
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = Expand([]string{"*.zip"}, ExpandOptions{Excludes: []string{"[bad"}})
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func mustFilter(t *testing.T, cfg *FilterConfig) *CompositeFilter {
	t.Helper()
	f, err := NewFilterFromConfig(cfg)
	require.NoError(t, err)
	return f
}
