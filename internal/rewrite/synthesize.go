package rewrite

import (
	"fmt"
	"strings"

	"github.com/jward/guardmod/internal/locate"
)

// Synthesizer produces the guarded form of a declaration.
type Synthesizer struct {
	Guard Guard
}

// Synthesize returns the replacement text for the span [d.Start, d.End) of
// src. The original body runs inside try/finally between an acquire and a
// release of the guard.
func (s Synthesizer) Synthesize(d locate.Declaration, src string) string {
	g := s.Guard

	args := d.Args(src)
	if !d.Fallback {
		args = s.params(args, d.Shared)
	}

	var b strings.Builder
	b.WriteString(d.Header(src))
	b.WriteByte('(')
	b.WriteString(args)
	b.WriteByte(')')
	b.WriteString(d.Throws(src))
	b.WriteString(" {\n")
	if d.Fallback {
		fmt.Fprintf(&b, "    %s %s = %s.%s();\n", g.Type, g.Var, g.Type, g.Uncached)
	}
	fmt.Fprintf(&b, "    boolean %s = %s.%s();\n", g.ReleaseFlag, g.Var, g.Acquire)
	b.WriteString("    try {\n")
	fmt.Fprintf(&b, "        %s\n", strings.TrimSpace(d.Body(src)))
	b.WriteString("    } finally {\n")
	fmt.Fprintf(&b, "        %s.%s(%s);\n", g.Var, g.Release, g.ReleaseFlag)
	b.WriteString("    }\n}")
	return b.String()
}

// params appends the cached guard parameter to args. Variadic parameters
// become arrays since the cached parameter has to come last.
func (s Synthesizer) params(args string, shared bool) string {
	g := s.Guard

	var b strings.Builder
	b.WriteString(args)
	if args != "" {
		b.WriteString(", ")
	}
	if shared {
		fmt.Fprintf(&b, "%s(%q) ", g.SharedAnnotation, g.SharedKey)
	}
	fmt.Fprintf(&b, "%s %s %s", g.CachedAnnotation, g.Type, g.Var)

	out := b.String()
	if strings.Contains(out, "...") {
		out = strings.ReplaceAll(out, "...", "[]")
	}
	return out
}
