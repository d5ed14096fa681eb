package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/guardmod"
	"github.com/jward/guardmod/internal/config"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	got := findRepoRoot(root)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	got := findRepoRoot(deep)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findRepoRoot(dir)
	assert.Equal(t, dir, got)
}

func TestResolveDBPath_FromConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	assert.Equal(t, filepath.Join("/repo", ".guardmod", "ledger.db"), resolveDBPath("/repo", cfg))

	cfg.Ledger.Path = "/var/lib/guardmod.db"
	assert.Equal(t, "/var/lib/guardmod.db", resolveDBPath("/repo", cfg))
}

func TestResolveRelative(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", resolveRelative("/repo", ""))
	assert.Equal(t, "/abs/x.risor", resolveRelative("/repo", "/abs/x.risor"))
	assert.Equal(t, filepath.Join("/repo", "scripts", "x.risor"), resolveRelative("/repo", "scripts/x.risor"))
}

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	got, err := resolveTargetDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	file := filepath.Join(dir, "A.java")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = resolveTargetDir([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	_, err = resolveTargetDir([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "directory not found")
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("yaml"), `invalid format "yaml"`)
}

func TestToCLIRunSummary_OmitsNoMatch(t *testing.T) {
	t.Parallel()
	start := time.Now()
	s := &guardmod.RunSummary{
		RunID: "r1", Mode: guardmod.ModeAdd, StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
		Scanned: 3, Rewritten: 1, Failed: 1,
		Files: []guardmod.FileOutcome{
			{Path: "A.java", Status: guardmod.StatusRewritten, Declarations: 2, Shared: true},
			{Path: "B.java", Status: guardmod.StatusNoMatch},
			{Path: "C.java", Status: guardmod.StatusFailed, Err: errors.New("unbalanced braces")},
		},
	}
	got := toCLIRunSummary(s)
	assert.Equal(t, int64(1500), got.DurationMS)
	assert.Equal(t, []CLIOutcome{
		{Path: "A.java", Status: "rewritten", Declarations: 2, Shared: true},
		{Path: "C.java", Status: "failed", Error: "unbalanced braces"},
	}, got.Files)
}

func TestOutputResultText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, outputResultText(&buf, CLIResult{Results: CLICount{ToProcess: 7}}))
	assert.Equal(t, "TO PROCESS: 7 files\n", buf.String())

	buf.Reset()
	require.NoError(t, outputResultText(&buf, CLIResult{Results: CLIRestore{
		RunID: "0123456789abcdef", Restored: []string{"A.java"}, Conflicts: []string{"B.java"},
	}}))
	assert.Contains(t, buf.String(), "Restored 1 file(s) from run 01234567")
	assert.Contains(t, buf.String(), "  B.java\n")

	buf.Reset()
	require.NoError(t, outputResultText(&buf, CLIResult{Results: []CLIRun{
		{ID: "0123456789abcdef", Mode: "add", DryRun: true, Scanned: 4, Rewritten: 2},
	}}))
	assert.Contains(t, buf.String(), "ID")
	assert.Contains(t, buf.String(), "01234567")
	assert.Contains(t, buf.String(), "add (dry)")

	assert.Error(t, outputResultText(&buf, CLIResult{Results: 42}))
}

func TestProgressPrinter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p := progressPrinter(&buf)
	p(guardmod.FileOutcome{Path: "A.java", Status: guardmod.StatusRewritten, Declarations: 2, Shared: true})
	p(guardmod.FileOutcome{Path: "B.java", Status: guardmod.StatusNoMatch})
	p(guardmod.FileOutcome{Path: "C.java", Status: guardmod.StatusAlreadyWrapped, Declarations: 1})
	p(guardmod.FileOutcome{Path: "D.java", Status: guardmod.StatusFailed, Err: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, "[process]")
	assert.Contains(t, out, "A.java (2 declarations, shared)")
	assert.NotContains(t, out, "B.java")
	assert.Contains(t, out, "[skipping]")
	assert.Contains(t, out, "C.java (already-wrapped)")
	assert.Contains(t, out, "D.java: boom")
}
