// Package scripts embeds the built-in Risor selection scripts.
//
// A selection script sees the globals file_path, source, language and
// declarations, and its final value decides whether the file is rewritten.
package scripts

import (
	"embed"
	"io/fs"
	"path"
	"strings"
)

// FS holds the built-in scripts, addressed as "select/<name>.risor".
//
//go:embed select/*.risor
var FS embed.FS

// Path returns the FS path of the built-in script name.
func Path(name string) string {
	return path.Join("select", name+".risor")
}

// Names lists the built-in scripts.
func Names() []string {
	matches, _ := fs.Glob(FS, "select/*.risor")
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = strings.TrimSuffix(path.Base(m), ".risor")
	}
	return names
}
