package runtime

import (
	"context"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/jward/guardmod/internal/locate"
)

// sourceStore tracks source bytes and language for each tree a script
// parses. node_text and query need to recover them from a Node, and
// smacker/go-tree-sitter doesn't expose Node.Tree(), so trees are keyed by
// root node pointer.
type sourceStore struct {
	mu    sync.RWMutex
	trees map[uintptr]parsedSource
}

type parsedSource struct {
	tree *sitter.Tree
	src  []byte
	lang *sitter.Language
}

func newSourceStore() *sourceStore {
	return &sourceStore{trees: make(map[uintptr]parsedSource)}
}

func (s *sourceStore) store(tree *sitter.Tree, src []byte, lang *sitter.Language) {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	s.mu.Lock()
	s.trees[key] = parsedSource{tree: tree, src: src, lang: lang}
	s.mu.Unlock()
}

func (s *sourceStore) lookup(node *sitter.Node) (parsedSource, bool) {
	for node.Parent() != nil {
		node = node.Parent()
	}
	s.mu.RLock()
	ps, ok := s.trees[uintptr(unsafe.Pointer(node))]
	s.mu.RUnlock()
	return ps, ok
}

// reset closes every tree parsed since the last reset.
func (s *sourceStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ps := range s.trees {
		ps.tree.Close()
		delete(s.trees, key)
	}
}

// makeParseFn creates the "parse" host function.
//
// parse(source, language) → *sitter.Tree
func makeParseFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse", 2, len(args))
		}
		srcStr, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("parse: source must be a string, got %s", args[0].Type())
		}
		langStr, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("parse: language must be a string, got %s", args[1].Type())
		}

		lang, found := ParserForLanguage(langStr.Value())
		if !found {
			return object.Errorf("parse: unsupported language %q", langStr.Value())
		}
		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)

		src := []byte(srcStr.Value())
		tree, err := parser.ParseCtx(ctx, nil, src)
		if err != nil {
			return object.Errorf("parse: tree-sitter parse failed: %v", err)
		}
		ss.store(tree, src, lang)

		proxy, err := object.NewProxy(tree)
		if err != nil {
			return object.Errorf("parse: proxy error: %v", err)
		}
		return proxy
	})
}

func nodeArg(name string, arg object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", name, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", name, proxy.Interface())
	}
	return node, nil
}

// makeNodeTextFn creates the "node_text" host function.
//
// node_text(node) → string
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		ps, found := ss.lookup(node)
		if !found {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(ps.src))
	})
}

// makeQueryFn creates the "query" host function.
//
// query(pattern, node) → []map[string]Node
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		patternStr, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("query: pattern must be a string, got %s", args[0].Type())
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		ps, found := ss.lookup(node)
		if !found {
			return object.Errorf("query: no source found for node's tree")
		}

		q, err := sitter.NewQuery([]byte(patternStr.Value()), ps.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, ps.src)

			captures := make(map[string]object.Object, len(match.Captures))
			for _, capture := range match.Captures {
				name := q.CaptureNameForId(capture.Index)
				p, err := object.NewProxy(capture.Node)
				if err != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, err)
				}
				captures[name] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// declarationList converts located declarations into the Risor list scripts
// see as the "declarations" global.
func declarationList(src string, decls []locate.Declaration) *object.List {
	items := make([]object.Object, len(decls))
	for i, d := range decls {
		items[i] = object.NewMap(map[string]object.Object{
			"name":     object.NewString(d.Name),
			"header":   object.NewString(d.Header(src)),
			"args":     object.NewString(d.Args(src)),
			"text":     object.NewString(d.Text(src)),
			"start":    object.NewInt(int64(d.Start)),
			"end":      object.NewInt(int64(d.End)),
			"fallback": object.NewBool(d.Fallback),
			"shared":   object.NewBool(d.Shared),
		})
	}
	return object.NewList(items)
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	logger *zap.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
