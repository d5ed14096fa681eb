// Package locate finds annotated declarations in curly-brace source text by
// pattern matching and brace balancing, without building a syntax tree.
package locate

import "fmt"

// Locator finds declarations using a fixed set of Patterns and a Balancer.
type Locator struct {
	patterns *Patterns
	balancer Balancer
}

// New returns a Locator. A nil balancer means BraceBalancer.
func New(p *Patterns, b Balancer) *Locator {
	if b == nil {
		b = BraceBalancer{}
	}
	return &Locator{patterns: p, balancer: b}
}

// Locate returns the leaf declarations matched by class in source order.
// Declarations nested in a container match are found with the Secondary
// class and spliced in at the container's position.
func (l *Locator) Locate(src string, class Class) ([]Declaration, error) {
	return l.scan(src, 0, len(src), class)
}

// scan matches class over src[lo:hi]. Offsets stay absolute; lo is the bias
// applied to every match in the window.
func (l *Locator) scan(src string, lo, hi int, class Class) ([]Declaration, error) {
	re := l.patterns.forClass(class)

	var (
		out     []Declaration
		leaves  []int
		matches int
	)
	for pos := lo; pos < hi; {
		m := re.FindStringSubmatchIndex(src[pos:hi])
		if m == nil {
			break
		}
		matches++

		d := l.patterns.declaration(src, m, pos)
		depth := 1
		if d.Container {
			depth = 2
		}
		end, err := l.balancer.Extent(src, d.BodyStart, depth, hi)
		if err != nil {
			return nil, fmt.Errorf("locate: %s at offset %d: %w", d.Name, d.Start, err)
		}
		d.End = end

		if d.Container {
			// Start one byte in so the container's own marker is not
			// matched again.
			inner, err := l.scan(src, d.Start+1, d.End, Secondary)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		} else {
			leaves = append(leaves, len(out))
			out = append(out, d)
		}
		pos = d.End
	}

	if matches > class.sharedThreshold() {
		for _, i := range leaves {
			out[i].Shared = true
		}
	}
	return out, nil
}
