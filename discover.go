package guardmod

import (
	"bytes"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverOptions filters the files Discover returns.
type DiscoverOptions struct {
	// Extensions lists the file extensions to keep, e.g. ".java". Empty
	// means the configured extensions.
	Extensions []string
	// Include keeps only paths containing at least one of these substrings.
	Include []string
	// Exclude drops paths containing any of these substrings.
	Exclude []string
}

// skipDirs are directories never descended into by the walk fallback.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"build":        true,
	"mxbuild":      true,
}

// Discover lists the candidate source files under root. Inside a git work
// tree it uses git ls-files to respect .gitignore; otherwise it walks the
// directory, skipping hidden and build directories. Paths are sorted.
func (e *Engine) Discover(root string, opts DiscoverOptions) ([]string, error) {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = e.cfg.Extensions
	}
	keep := func(path string) bool {
		if !hasExtension(path, exts) {
			return false
		}
		if len(opts.Include) > 0 && !containsAny(path, opts.Include) {
			return false
		}
		return !containsAny(path, opts.Exclude)
	}

	paths, err := gitListFiles(root, keep)
	if err != nil {
		// Not a git repo or git not available; fall back to walk.
		if paths, err = walkListFiles(root, keep); err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// SplitFilter splits a comma separated filter flag into its non-empty parts.
func SplitFilter(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root.
func gitListFiles(root string, keep func(string) bool) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		path := filepath.Join(root, line)
		if keep(path) {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used when git is
// not available.
func walkListFiles(root string, keep func(string) bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && keep(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range exts {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
