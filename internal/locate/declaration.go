package locate

import (
	"fmt"
	"strings"
)

// Declaration is one annotated declaration found in a source buffer. All
// offsets are absolute byte offsets into that buffer; a Declaration is only
// meaningful together with the exact string it was located in.
type Declaration struct {
	Start       int // annotation marker
	End         int // one past the closing brace
	ArgsStart   int
	ArgsEnd     int
	ThrowsStart int
	ThrowsEnd   int
	BodyStart   int // one past the opening brace

	Name string

	// Fallback marks a catch-all variant; it is rewritten without a cached
	// guard parameter.
	Fallback bool
	// Container marks a type declaration whose members are the real
	// targets. Containers are never returned by Locate.
	Container bool
	// Shared marks declarations that must reuse one guard field because
	// several siblings compete for it.
	Shared bool
}

// Header returns the text from the annotation up to, but excluding, the
// opening parenthesis of the parameter list.
func (d Declaration) Header(src string) string {
	return src[d.Start : d.ArgsStart-1]
}

// Args returns the raw parameter list.
func (d Declaration) Args(src string) string {
	return src[d.ArgsStart:d.ArgsEnd]
}

// Throws returns the throws clause with its leading whitespace, or "".
func (d Declaration) Throws(src string) string {
	return src[d.ThrowsStart:d.ThrowsEnd]
}

// Body returns the text between the braces of the declaration.
func (d Declaration) Body(src string) string {
	return src[d.BodyStart : d.End-1]
}

// Text returns the whole declaration span.
func (d Declaration) Text(src string) string {
	return src[d.Start:d.End]
}

func (d Declaration) String() string {
	return fmt.Sprintf("%s [%d:%d) args [%d:%d) body %d fallback=%t shared=%t",
		d.Name, d.Start, d.End, d.ArgsStart, d.ArgsEnd, d.BodyStart, d.Fallback, d.Shared)
}

// AlreadyWrapped reports whether the declaration's span already contains the
// guard parameter marker (e.g. "GilNode gil").
func AlreadyWrapped(d Declaration, src, marker string) bool {
	return strings.Contains(d.Text(src), marker)
}
