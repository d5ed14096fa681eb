package main_test

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureSource = `package com.example;

final class A {
    @ExportMessage
    boolean hasMembers() {
        return true;
    }
}
`

// buildBinary compiles the guardmod binary and returns the path.
// The binary is placed in t.TempDir() so it's cleaned up automatically.
func buildBinary(t *testing.T) string {
	t.Helper()
	binName := "guardmod"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	bin := filepath.Join(t.TempDir(), binName)
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = filepath.Join(projectRoot(t), "cmd", "guardmod")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(out))
	return bin
}

// projectRoot returns the root of the module by walking up from the test
// file's directory to find go.mod.
func projectRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, parent, dir, "could not find project root")
		dir = parent
	}
}

// createJavaFixture creates a temporary repo with a .git dir and one Java
// file carrying an annotated declaration. Returns the repo and file paths.
func createJavaFixture(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	src := filepath.Join(dir, "src", "com", "example")
	require.NoError(t, os.MkdirAll(src, 0o755))
	file := filepath.Join(src, "A.java")
	require.NoError(t, os.WriteFile(file, []byte(fixtureSource), 0o644))
	return dir, file
}

// runCLI runs the binary in dir and returns stdout, stderr and the error.
func runCLI(t *testing.T, bin, dir string, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "NO_COLOR=1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

type runEnvelope struct {
	Command string `json:"command"`
	Error   string `json:"error"`
	Results struct {
		RunID     string `json:"run_id"`
		Scanned   int    `json:"scanned"`
		Rewritten int    `json:"rewritten"`
	} `json:"results"`
}

func TestCLI_AddReportRestore(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildBinary(t)
	dir, file := createJavaFixture(t)

	stdout, stderr, err := runCLI(t, bin, dir, "count", "--format", "text")
	require.NoError(t, err, stderr)
	assert.Equal(t, "TO PROCESS: 1 files\n", stdout)

	stdout, stderr, err = runCLI(t, bin, dir, "add", "--no-style")
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "[process]")

	var env runEnvelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &env))
	assert.Equal(t, "add", env.Command)
	assert.Equal(t, 1, env.Results.Rewritten)
	firstRun := env.Results.RunID
	require.NotEmpty(t, firstRun)

	rewritten, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(rewritten), "boolean hasMembers(@Cached GilNode gil) {")
	assert.FileExists(t, filepath.Join(dir, ".guardmod", "ledger.db"))

	// A second pass finds nothing to do.
	stdout, stderr, err = runCLI(t, bin, dir, "add", "--no-style")
	require.NoError(t, err, stderr)
	require.NoError(t, json.Unmarshal([]byte(stdout), &env))
	assert.Zero(t, env.Results.Rewritten)
	assert.Contains(t, stderr, "[skipping]")

	stdout, stderr, err = runCLI(t, bin, dir, "report")
	require.NoError(t, err, stderr)
	var report struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Len(t, report.Results, 2)

	stdout, stderr, err = runCLI(t, bin, dir, "restore", firstRun[:8], "--format", "text")
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "Restored 1 file(s)")

	restored, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, fixtureSource, string(restored))
}

func TestCLI_DryRun(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildBinary(t)
	dir, file := createJavaFixture(t)

	stdout, stderr, err := runCLI(t, bin, dir, "add", "--dry-run", "--no-ledger")
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "import com.oracle.graal.python.runtime.GilNode;")

	unchanged, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, fixtureSource, string(unchanged))
	assert.NoDirExists(t, filepath.Join(dir, ".guardmod"))
}

func TestCLI_RemoveFails(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildBinary(t)
	dir, file := createJavaFixture(t)

	stdout, _, err := runCLI(t, bin, dir, "remove", "--no-style")
	require.Error(t, err)

	var env runEnvelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &env))
	assert.Equal(t, "remove", env.Command)
	assert.Contains(t, env.Error, "not supported")

	unchanged, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, fixtureSource, string(unchanged))
}

func TestCLI_ConfigInit(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildBinary(t)
	dir, _ := createJavaFixture(t)

	_, stderr, err := runCLI(t, bin, dir, "config", "init")
	require.NoError(t, err, stderr)
	assert.FileExists(t, filepath.Join(dir, ".guardmod.yaml"))

	_, stderr, err = runCLI(t, bin, dir, "config", "init")
	require.Error(t, err)
	assert.Contains(t, stderr, "already exists")

	// The written file loads back and drives a run.
	stdout, stderr, err := runCLI(t, bin, dir, "count", "--format", "text")
	require.NoError(t, err, stderr)
	assert.Equal(t, "TO PROCESS: 1 files\n", stdout)
}

func TestCLI_InvalidFormat(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildBinary(t)
	dir, _ := createJavaFixture(t)

	_, stderr, err := runCLI(t, bin, dir, "count", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, stderr, `invalid format "yaml"`)
}
