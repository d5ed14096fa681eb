package guardmod

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jward/guardmod/internal/config"
	"github.com/jward/guardmod/internal/locate"
	"github.com/jward/guardmod/internal/rewrite"
	"github.com/jward/guardmod/internal/runtime"
	"github.com/jward/guardmod/internal/store"
)

// Mode selects the transformation direction.
type Mode string

const (
	ModeAdd    Mode = "add"
	ModeRemove Mode = "remove"
)

// ErrRemoveUnsupported is returned for ModeRemove. Unwrapping a guarded
// declaration is not implemented.
var ErrRemoveUnsupported = errors.New("removal of the guard is not supported")

// Status is the outcome of rewriting one file.
type Status string

const (
	StatusNoMatch        Status = "no-match"
	StatusAlreadyWrapped Status = "already-wrapped"
	StatusDeselected     Status = "deselected"
	StatusRewritten      Status = "rewritten"
	StatusFailed         Status = "failed"
)

// FileResult is the outcome of Rewrite for one file.
type FileResult struct {
	Path         string
	Status       Status
	Declarations []locate.Declaration
	// Original is the input text; Text is the rewritten text and is only
	// set for StatusRewritten.
	Original string
	Text     string
	Shared   bool
}

// BalancerFactory returns the Balancer used to locate declarations in the
// file at path. A Balancer that implements io.Closer is closed after use.
type BalancerFactory func(ctx context.Context, path string) (locate.Balancer, error)

// Engine runs the rewrite pipeline over files and records what it did.
type Engine struct {
	cfg       *config.Config
	patterns  *locate.Patterns
	synth     rewrite.Synthesizer
	assembler rewrite.Assembler
	balancer  BalancerFactory

	store  *store.Store // nil when the ledger is disabled
	logger *zap.Logger

	runtime    *runtime.Runtime
	scriptPath string
	scriptsFS  fs.FS
	script     string // selection script source; empty selects every file

	parallel int
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithParallel sets how many files Count scans at once. Zero or less means
// one per CPU. Run is always serial.
func WithParallel(n int) Option {
	return func(e *Engine) {
		e.parallel = n
	}
}

// WithSelectScript sets the Risor script that decides which files are
// rewritten, overriding the configured one.
func WithSelectScript(path string) Option {
	return func(e *Engine) {
		e.scriptPath = path
	}
}

// WithScriptsFS loads the selection script and its imports from fsys
// instead of from disk.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithBalancer overrides the balancer chosen by the configuration.
func WithBalancer(f BalancerFactory) Option {
	return func(e *Engine) {
		e.balancer = f
	}
}

// New creates an Engine. When dbPath is non-empty the run ledger is opened
// (and created) there; an empty dbPath disables the ledger.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: config.Default(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.Parallel > 0 && e.parallel == 0 {
		e.parallel = e.cfg.Parallel
	}

	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("guardmod: %w", err)
	}
	patterns, err := e.cfg.Patterns()
	if err != nil {
		return nil, fmt.Errorf("guardmod: %w", err)
	}
	e.patterns = patterns
	e.synth = rewrite.Synthesizer{Guard: e.cfg.RewriteGuard()}
	e.assembler = rewrite.Assembler{Imports: e.cfg.ImportSet(), Package: patterns.Package()}
	if e.balancer == nil {
		e.balancer = balancerFor(e.cfg.Balancer)
	}

	if e.scriptPath == "" {
		e.scriptPath = e.cfg.SelectScript
	}
	// Imports resolve next to the script on disk, or from the root of the FS.
	scriptsDir, scriptName := "", e.scriptPath
	rtOpts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(e.logger)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	} else {
		scriptsDir, scriptName = filepath.Split(e.scriptPath)
	}
	e.runtime = runtime.NewRuntime(scriptsDir, rtOpts...)
	if e.scriptPath != "" {
		if e.script, err = e.runtime.LoadScript(scriptName); err != nil {
			return nil, fmt.Errorf("guardmod: %w", err)
		}
	}

	if dbPath != "" {
		s, err := store.NewStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("guardmod: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("guardmod: migrate: %w", err)
		}
		e.store = s
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the run ledger, or nil when it is disabled.
func (e *Engine) Store() *Store {
	return e.store
}

// Config returns the configuration the Engine was built with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

func balancerFor(name string) BalancerFactory {
	if name == config.BalancerTreeSitter {
		return func(ctx context.Context, path string) (locate.Balancer, error) {
			lang, ok := runtime.LanguageForFile(path)
			if !ok {
				return nil, fmt.Errorf("no tree-sitter grammar for %s", filepath.Base(path))
			}
			return runtime.NewTreeSitterBalancer(ctx, lang)
		}
	}
	return func(context.Context, string) (locate.Balancer, error) {
		return locate.BraceBalancer{}, nil
	}
}

// Rewrite runs the per-file pipeline on src, the contents of path. It does
// not touch the filesystem. A file whose declarations already carry the
// guard parameter is reported as StatusAlreadyWrapped and left alone.
func (e *Engine) Rewrite(ctx context.Context, path, src string, mode Mode) (*FileResult, error) {
	if mode == ModeRemove {
		return nil, ErrRemoveUnsupported
	}

	b, err := e.balancer(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("balancer: %w", err)
	}
	if c, ok := b.(io.Closer); ok {
		defer c.Close()
	}

	decls, err := locate.New(e.patterns, b).Locate(src, locate.Primary)
	if err != nil {
		return nil, err
	}

	res := &FileResult{Path: path, Status: StatusNoMatch, Declarations: decls, Original: src}
	if len(decls) == 0 {
		return res, nil
	}

	marker := e.synth.Guard.Marker()
	for _, d := range decls {
		if locate.AlreadyWrapped(d, src, marker) {
			res.Status = StatusAlreadyWrapped
			return res, nil
		}
	}

	if e.script != "" {
		keep, err := e.runtime.Select(ctx, e.script, path, src, decls)
		if err != nil {
			return nil, err
		}
		if !keep {
			res.Status = StatusDeselected
			return res, nil
		}
	}

	repls := make([]string, len(decls))
	for i, d := range decls {
		repls[i] = e.synth.Synthesize(d, src)
		res.Shared = res.Shared || d.Shared
	}
	text, err := e.assembler.Assemble(src, decls, repls)
	if err != nil {
		return nil, err
	}
	res.Text = text
	res.Status = StatusRewritten
	return res, nil
}
