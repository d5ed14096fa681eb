package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jward/guardmod/internal/locate"
)

const javaTestSource = `package p;

class A {
    @ExportMessage
    String open() {
        return "}";
    }

    @ExportMessage
    static class Inner {
        @Specialization
        static int doInt(int x) {
            return x;
        }
    }
}
`

// after returns the offset just past the first occurrence of marker.
func after(t *testing.T, src, marker string) int {
	t.Helper()
	i := strings.Index(src, marker)
	require.GreaterOrEqual(t, i, 0, "marker %q not found", marker)
	return i + len(marker)
}

func newJavaBalancer(t *testing.T) *TreeSitterBalancer {
	t.Helper()
	b, err := NewTreeSitterBalancer(context.Background(), "java")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// --- Language detection tests ---

func TestLanguageForFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"Obj.java", "java", true},
		{"src/com/example/Obj.JAVA", "java", true},
		{"main.go", "go", true},
		{"app.ts", "typescript", true},
		{"lib.rs", "rust", true},
		{"main.c", "c", true},
		{"main.cc", "cpp", true},
		{"index.php", "php", true},
		{"script.py", "", false},
		{"Makefile", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := LanguageForFile(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParserForLanguage(t *testing.T) {
	t.Parallel()

	for _, lang := range []string{"java", "go", "typescript", "javascript", "rust", "c", "cpp", "php"} {
		l, ok := ParserForLanguage(lang)
		assert.True(t, ok, lang)
		assert.NotNil(t, l, lang)
	}
	_, ok := ParserForLanguage("cobol")
	assert.False(t, ok)
}

// --- TreeSitterBalancer tests ---

func TestTreeSitterBalancer_IgnoresBracesInStrings(t *testing.T) {
	t.Parallel()
	b := newJavaBalancer(t)
	src := javaTestSource
	pos := after(t, src, "open() {")

	end, err := b.Extent(src, pos, 1, len(src))
	require.NoError(t, err)
	assert.Equal(t, after(t, src, "return \"}\";\n    }"), end)

	// Counting bytes stops at the brace inside the literal.
	naive, err := locate.BraceBalancer{}.Extent(src, pos, 1, len(src))
	require.NoError(t, err)
	assert.Equal(t, after(t, src, "return \"}"), naive)
}

func TestTreeSitterBalancer_ContainerDepth(t *testing.T) {
	t.Parallel()
	b := newJavaBalancer(t)
	src := javaTestSource
	pos := after(t, src, "doInt(int x) {")

	end, err := b.Extent(src, pos, 1, len(src))
	require.NoError(t, err)
	assert.Equal(t, after(t, src, "return x;\n        }"), end)

	end, err = b.Extent(src, pos, 2, len(src))
	require.NoError(t, err)
	assert.Equal(t, after(t, src, "return x;\n        }\n    }"), end)
}

func TestTreeSitterBalancer_Unbalanced(t *testing.T) {
	t.Parallel()
	b := newJavaBalancer(t)
	src := "class A {\n    void m() {\n        int x = 1;\n"

	_, err := b.Extent(src, after(t, src, "m() {"), 1, len(src))
	assert.ErrorIs(t, err, locate.ErrUnbalanced)
}

func TestTreeSitterBalancer_Limit(t *testing.T) {
	t.Parallel()
	b := newJavaBalancer(t)
	src := javaTestSource
	pos := after(t, src, "open() {")

	_, err := b.Extent(src, pos, 1, pos+3)
	assert.ErrorIs(t, err, locate.ErrUnbalanced)
}

func TestTreeSitterBalancer_NotAtBrace(t *testing.T) {
	t.Parallel()
	b := newJavaBalancer(t)

	_, err := b.Extent(javaTestSource, 3, 1, len(javaTestSource))
	assert.ErrorIs(t, err, locate.ErrUnbalanced)

	_, err = b.Extent(javaTestSource, 0, 1, len(javaTestSource))
	assert.ErrorIs(t, err, locate.ErrUnbalanced)
}

func TestTreeSitterBalancer_ReparsesNewBuffer(t *testing.T) {
	t.Parallel()
	b := newJavaBalancer(t)

	first := "class A { void m() { } }"
	end, err := b.Extent(first, after(t, first, "m() {"), 1, len(first))
	require.NoError(t, err)
	assert.Equal(t, after(t, first, "m() { }"), end)

	second := "class B { void n() { int y = 2; } }"
	end, err = b.Extent(second, after(t, second, "n() {"), 1, len(second))
	require.NoError(t, err)
	assert.Equal(t, after(t, second, "y = 2; }"), end)
}

func TestNewTreeSitterBalancer_UnsupportedLanguage(t *testing.T) {
	t.Parallel()
	_, err := NewTreeSitterBalancer(context.Background(), "cobol")
	assert.Error(t, err)
}

func TestTreeSitterBalancer_WithLocator(t *testing.T) {
	t.Parallel()
	b := newJavaBalancer(t)
	l := locate.New(locate.MustPatterns(locate.DefaultPatternConfig()), b)

	decls, err := l.Locate(javaTestSource, locate.Primary)
	require.NoError(t, err)
	require.Len(t, decls, 2)

	assert.Equal(t, "open", decls[0].Name)
	assert.True(t, decls[0].Shared)
	assert.Equal(t, "\n        return \"}\";\n    ", decls[0].Body(javaTestSource))

	assert.Equal(t, "doInt", decls[1].Name)
	assert.False(t, decls[1].Shared)
	assert.Equal(t, "\n            return x;\n        ", decls[1].Body(javaTestSource))
}

// --- Selection script tests ---

func locateJava(t *testing.T) []locate.Declaration {
	t.Helper()
	decls, err := locate.New(locate.MustPatterns(locate.DefaultPatternConfig()), nil).
		Locate(javaTestSource, locate.Primary)
	require.NoError(t, err)
	return decls
}

func TestSelect_Truthiness(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	decls := locateJava(t)

	tests := []struct {
		name   string
		path   string
		script string
		want   bool
	}{
		{"true", "src/A.java", `true`, true},
		{"false", "src/A.java", `false`, false},
		{"path filter", "gen/A.java", `file_path != "gen/A.java"`, false},
		{"path kept", "src/A.java", `file_path != "gen/A.java"`, true},
		{"declaration count", "src/A.java", `len(declarations) == 2`, true},
		{"declaration fields", "src/A.java", `declarations[0]["name"] == "open" && declarations[0]["shared"]`, true},
		{"language", "src/A.java", `language == "java"`, true},
		{"nil result", "src/A.java", `nil`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rt.Select(context.Background(), tt.script, tt.path, javaTestSource, decls)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect_ParseAndQuery(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	script := `
tree := parse(source, language)
matches := query("(method_declaration name: (identifier) @name)", tree.RootNode())
names := []
for i := 0; i < len(matches); i++ {
    names.append(node_text(matches[i]["name"]))
}
len(names) == 2 && names[0] == "open" && names[1] == "doInt"
`
	got, err := rt.Select(context.Background(), script, "src/A.java", javaTestSource, locateJava(t))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestSelect_ScriptError(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	_, err := rt.Select(context.Background(), `undefined_function()`, "src/A.java", javaTestSource, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "src/A.java")
}

func TestSelect_LogRouting(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	rt := NewRuntime("", WithRuntimeLogger(zap.New(core)))

	script := `
log.Info("checking " + file_path)
log.Warn("warned")
true
`
	got, err := rt.Select(context.Background(), script, "src/A.java", javaTestSource, nil)
	require.NoError(t, err)
	assert.True(t, got)

	entries := logs.FilterMessage("checking src/A.java").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "script", entries[0].LoggerName)
	assert.Equal(t, 1, logs.FilterMessage("warned").FilterLevelExact(zapcore.WarnLevel).Len())
}

// --- Script loading tests ---

func TestLoadScript(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "select.risor"), []byte("true\n"), 0644))

	rt := NewRuntime(dir)
	src, err := rt.LoadScript("select.risor")
	require.NoError(t, err)
	assert.Equal(t, "true\n", src)

	src, err = rt.LoadScript(filepath.Join(dir, "select.risor"))
	require.NoError(t, err)
	assert.Equal(t, "true\n", src)

	_, err = rt.LoadScript("missing.risor")
	assert.Error(t, err)
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"select/java.risor": &fstest.MapFile{Data: []byte("len(declarations) > 0")},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	src, err := rt.LoadScript("/select/java.risor")
	require.NoError(t, err)
	assert.Equal(t, "len(declarations) > 0", src)

	_, err = rt.LoadScript("select/missing.risor")
	assert.Error(t, err)
}

func TestImport_FSImporter(t *testing.T) {
	t.Parallel()
	// FSImporter resolves "rules" by trying name + ".risor" at the FS root.
	mapFS := fstest.MapFS{
		"rules.risor": &fstest.MapFile{Data: []byte(`
func generated(path) {
	return path == "src/generated/A.java"
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	script := `
import rules
!rules.generated(file_path)
`
	got, err := rt.Select(context.Background(), script, "src/generated/A.java", javaTestSource, nil)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = rt.Select(context.Background(), script, "src/A.java", javaTestSource, nil)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestImport_LocalImporter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math_utils.risor"), []byte(`
func double(x) {
	return x * 2
}
`), 0644))

	rt := NewRuntime(dir)
	result, err := rt.RunSource(context.Background(), `
import math_utils
math_utils.double(21) == 42
`, nil)
	require.NoError(t, err)
	assert.True(t, result.IsTruthy())
}
