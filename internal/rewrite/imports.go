package rewrite

import "strings"

// ImportLine is one import the guard needs.
type ImportLine struct {
	Line string
	// SkipIf lists further markers whose presence makes the import
	// unnecessary, e.g. the guard's own package clause.
	SkipIf []string
	// SharedOnly lines are only needed when a rewritten declaration is
	// shared.
	SharedOnly bool
}

// ImportSet is the ordered list of imports the guard mechanism requires.
type ImportSet []ImportLine

// DefaultImportSet returns the imports for DefaultGuard.
func DefaultImportSet() ImportSet {
	return ImportSet{
		{
			Line:   "import com.oracle.graal.python.runtime.GilNode;",
			SkipIf: []string{"package com.oracle.graal.python.runtime;"},
		},
		{Line: "import com.oracle.truffle.api.dsl.Cached;"},
		{Line: "import com.oracle.truffle.api.dsl.Cached.Shared;", SharedOnly: true},
	}
}

// Missing returns the import lines text still lacks. Presence is a literal
// substring check, not import resolution.
func (s ImportSet) Missing(text string, shared bool) []string {
	var out []string
	for _, imp := range s {
		if imp.SharedOnly && !shared {
			continue
		}
		if strings.Contains(text, imp.Line) || containsAny(text, imp.SkipIf) {
			continue
		}
		out = append(out, imp.Line)
	}
	return out
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}
