package guardmod

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_Walk(t *testing.T) {
	t.Parallel()
	e, err := New("")
	require.NoError(t, err)
	dir := t.TempDir()
	writeFiles(t, dir,
		"src/com/example/A.java", singleSource,
		"src/com/example/B.JAVA", sharedSource,
		"src/com/example/generated/G.java", singleSource,
		"src/README.md", "# readme\n",
		".hidden/H.java", singleSource,
		"node_modules/pkg/N.java", singleSource,
		"mxbuild/M.java", singleSource,
	)

	paths, err := e.Discover(dir, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "src/com/example/A.java"),
		filepath.Join(dir, "src/com/example/B.JAVA"),
		filepath.Join(dir, "src/com/example/generated/G.java"),
	}, paths)

	paths, err = e.Discover(dir, DiscoverOptions{Exclude: []string{"generated"}})
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	paths, err = e.Discover(dir, DiscoverOptions{Include: []string{"A.java", "G.java"}, Exclude: []string{"generated"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "src/com/example/A.java")}, paths)

	paths, err = e.Discover(dir, DiscoverOptions{Extensions: []string{".md"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "src/README.md")}, paths)
}

func TestDiscover_MissingRoot(t *testing.T) {
	t.Parallel()
	e, err := New("")
	require.NoError(t, err)
	_, err = e.Discover(filepath.Join(t.TempDir(), "missing"), DiscoverOptions{})
	assert.Error(t, err)
}

func TestSplitFilter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"Foo", []string{"Foo"}},
		{"Foo, Bar ,,Baz", []string{"Foo", "Bar", "Baz"}},
		{" , ", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitFilter(tt.in), tt.in)
	}
}

// =============================================================================
// Style gate
// =============================================================================

func TestStyleGate_ReportsExitCodes(t *testing.T) {
	t.Parallel()
	var stdout bytes.Buffer
	g := StyleGate{
		Command: []string{"sh", "-c", "echo pass; exit 3"},
		Passes:  2,
		Dir:     t.TempDir(),
		Stdout:  &stdout,
	}
	codes, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, codes)
	assert.Equal(t, "pass\npass\n", stdout.String())
}

func TestStyleGate_FromEngine(t *testing.T) {
	t.Parallel()
	e, err := New("")
	require.NoError(t, err)
	dir := t.TempDir()

	g := e.StyleGate(dir, nil, nil)
	assert.Equal(t, e.Config().Style.Command, g.Command)
	assert.Equal(t, 2, g.Passes)
	assert.Equal(t, dir, g.Dir)

	g.Command = []string{"true"}
	codes, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, codes)
}

func TestStyleGate_Errors(t *testing.T) {
	t.Parallel()
	_, err := StyleGate{Passes: 1}.Run(context.Background())
	assert.Error(t, err)

	_, err = StyleGate{Command: []string{"guardmod-no-such-command"}, Passes: 1}.Run(context.Background())
	assert.Error(t, err)
}
