package runtime

import (
	"context"
	"fmt"
	"unsafe"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/guardmod/internal/locate"
)

// TreeSitterBalancer is a locate.Balancer that resolves brace extents from a
// syntax tree, so braces inside string literals and comments do not count.
// The tree for the most recent buffer is cached; Locate calls Extent many
// times on one buffer. A TreeSitterBalancer is not safe for concurrent use.
type TreeSitterBalancer struct {
	ctx    context.Context
	lang   string
	parser *sitter.Parser

	src  string
	tree *sitter.Tree
}

// NewTreeSitterBalancer returns a balancer for the given canonical language.
func NewTreeSitterBalancer(ctx context.Context, lang string) (*TreeSitterBalancer, error) {
	grammar, ok := ParserForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("runtime: unsupported language %q", lang)
	}
	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	return &TreeSitterBalancer{ctx: ctx, lang: lang, parser: parser}, nil
}

// Extent implements locate.Balancer. pos must sit directly after an opening
// brace token; depth-1 further enclosing brace blocks are closed as well.
func (b *TreeSitterBalancer) Extent(src string, pos, depth, limit int) (int, error) {
	if err := b.parse(src); err != nil {
		return 0, err
	}
	if pos < 1 || pos > len(src) {
		return 0, fmt.Errorf("%w: offset %d outside buffer", locate.ErrUnbalanced, pos)
	}

	brace := tokenAt(b.tree.RootNode(), uint32(pos-1))
	if brace == nil || brace.Type() != "{" || int(brace.StartByte()) != pos-1 {
		return 0, fmt.Errorf("%w: no %s block opens at offset %d", locate.ErrUnbalanced, b.lang, pos-1)
	}

	block := brace.Parent()
	for open := 1; open < depth; {
		block = block.Parent()
		if block == nil {
			return 0, fmt.Errorf("%w: %d still open at offset %d", locate.ErrUnbalanced, depth-open, len(src))
		}
		if opensWithBrace(block) {
			open++
		}
	}

	n := int(block.ChildCount())
	if n == 0 {
		return 0, fmt.Errorf("%w: empty block at offset %d", locate.ErrUnbalanced, block.StartByte())
	}
	last := block.Child(n - 1)
	if last.Type() != "}" || last.IsMissing() {
		return 0, fmt.Errorf("%w: block at offset %d never closes", locate.ErrUnbalanced, block.StartByte())
	}
	end := int(last.EndByte())
	if end > limit {
		return 0, fmt.Errorf("%w: block at offset %d closes at %d past %d", locate.ErrUnbalanced, block.StartByte(), end, limit)
	}
	return end, nil
}

// Close releases the parser and any cached tree.
func (b *TreeSitterBalancer) Close() error {
	if b.tree != nil {
		b.tree.Close()
		b.tree = nil
	}
	b.parser.Close()
	return nil
}

// parse reuses the cached tree when src is the very string that was parsed
// last. Holding on to src keeps its backing array from being reused.
func (b *TreeSitterBalancer) parse(src string) error {
	if b.tree != nil && len(src) == len(b.src) && unsafe.StringData(src) == unsafe.StringData(b.src) {
		return nil
	}
	tree, err := b.parser.ParseCtx(b.ctx, nil, []byte(src))
	if err != nil {
		return fmt.Errorf("runtime: tree-sitter parse failed: %w", err)
	}
	if b.tree != nil {
		b.tree.Close()
	}
	b.src, b.tree = src, tree
	return nil
}

// tokenAt descends from root to the leaf token covering byte off.
func tokenAt(root *sitter.Node, off uint32) *sitter.Node {
	n := root
	for n.ChildCount() > 0 {
		var next *sitter.Node
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.StartByte() <= off && off < c.EndByte() {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return n
}

func opensWithBrace(n *sitter.Node) bool {
	return n.ChildCount() > 0 && n.Child(0).Type() == "{"
}
