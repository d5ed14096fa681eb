package locate

import (
	"errors"
	"fmt"
)

// ErrUnbalanced is returned when a declaration's braces never close within
// the scanned window.
var ErrUnbalanced = errors.New("unbalanced braces")

// Balancer finds the end of a brace-delimited region. Extent scans src
// forward from pos with depth braces already open and returns the offset one
// past the brace that closes the outermost of them. It never looks at or
// beyond limit and fails with ErrUnbalanced if the region does not close.
type Balancer interface {
	Extent(src string, pos, depth, limit int) (int, error)
}

// BraceBalancer counts '{' and '}' bytes. It knows nothing about strings or
// comments.
type BraceBalancer struct{}

// Extent implements Balancer.
func (BraceBalancer) Extent(src string, pos, depth, limit int) (int, error) {
	if limit > len(src) {
		limit = len(src)
	}
	for i := pos; i < limit; i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %d still open at offset %d", ErrUnbalanced, depth, limit)
}
