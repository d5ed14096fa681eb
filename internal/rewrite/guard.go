// Package rewrite synthesizes guarded declarations and splices them back
// into their source file.
package rewrite

// Guard names the pieces of the mutual-exclusion handle that wrapped
// declarations call into.
type Guard struct {
	Type             string // GilNode
	Var              string // gil
	Acquire          string // acquire
	Release          string // release
	Uncached         string // getUncached
	ReleaseFlag      string // mustRelease
	CachedAnnotation string // @Cached
	SharedAnnotation string // @Shared
	SharedKey        string // gil
}

// DefaultGuard returns the GIL guard of GraalPy's Truffle nodes.
func DefaultGuard() Guard {
	return Guard{
		Type:             "GilNode",
		Var:              "gil",
		Acquire:          "acquire",
		Release:          "release",
		Uncached:         "getUncached",
		ReleaseFlag:      "mustRelease",
		CachedAnnotation: "@Cached",
		SharedAnnotation: "@Shared",
		SharedKey:        "gil",
	}
}

// Marker is the text whose presence in a declaration means it has already
// been wrapped.
func (g Guard) Marker() string {
	return g.Type + " " + g.Var
}
