package rewrite

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jward/guardmod/internal/locate"
)

var (
	// ErrOverlap is returned when declaration spans are out of order,
	// overlap, or fall outside the buffer.
	ErrOverlap = errors.New("overlapping declaration spans")
	// ErrNoPackage is returned when imports are needed but the file has no
	// package clause to anchor them.
	ErrNoPackage = errors.New("no package clause")
)

// Assembler splices replacement text into a source buffer and adds the
// imports the replacements depend on.
type Assembler struct {
	Imports ImportSet
	Package *regexp.Regexp
}

// Assemble replaces each declaration span with the replacement at the same
// index and injects missing imports after the package clause. Text outside
// the spans is copied byte for byte. Nothing is returned unless every span is
// valid.
func (a Assembler) Assemble(src string, decls []locate.Declaration, replacements []string) (string, error) {
	if len(decls) != len(replacements) {
		return "", fmt.Errorf("rewrite: %d declarations but %d replacements", len(decls), len(replacements))
	}
	gaps, err := Segments(src, decls)
	if err != nil {
		return "", err
	}

	var (
		b      strings.Builder
		shared bool
	)
	b.Grow(len(src))
	for i, gap := range gaps {
		b.WriteString(gap)
		if i < len(replacements) {
			b.WriteString(replacements[i])
			shared = shared || decls[i].Shared
		}
	}
	return a.InjectImports(b.String(), shared)
}

// InjectImports inserts each missing import on its own line directly after
// the first package clause of text.
func (a Assembler) InjectImports(text string, shared bool) (string, error) {
	missing := a.Imports.Missing(text, shared)
	if len(missing) == 0 {
		return text, nil
	}
	loc := a.Package.FindStringIndex(text)
	if loc == nil {
		return "", ErrNoPackage
	}
	end := loc[1]

	var b strings.Builder
	b.Grow(len(text) + 64*len(missing))
	b.WriteString(text[:end])
	for _, line := range missing {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	b.WriteString(text[end:])
	return b.String(), nil
}

// Segments returns the len(decls)+1 gaps around the declaration spans: the
// text before the first span, between consecutive spans, and after the last.
func Segments(src string, decls []locate.Declaration) ([]string, error) {
	gaps := make([]string, 0, len(decls)+1)
	prev := 0
	for _, d := range decls {
		if d.Start < prev || d.End < d.Start || d.End > len(src) {
			return nil, fmt.Errorf("rewrite: %w: %s starts at %d, previous span ends at %d",
				ErrOverlap, d.Name, d.Start, prev)
		}
		gaps = append(gaps, src[prev:d.Start])
		prev = d.End
	}
	gaps = append(gaps, src[prev:])
	return gaps, nil
}
