package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jward/guardmod"
	"github.com/jward/guardmod/internal/config"
)

var (
	flagConfig   string
	flagDB       string
	flagFormat   string
	flagVerbose  bool
	flagNoLedger bool

	logger *zap.Logger
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "guardmod",
	Short:         "Wrap annotated Java methods in a guard",
	Long:          "Guardmod finds annotated method declarations in Java sources and rewrites each body to run between an acquire and a release of a guard, adding the parameter and imports it needs.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if flagVerbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: "+config.FileName+" in the repo root)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "ledger path (default: ledger.path from the config, relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagNoLedger, "no-ledger", false, "do not record the run in the ledger")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(configCmd)
}

// resolveTargetDir returns the absolute path of the directory to rewrite.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the ledger path from the --db flag or the config.
func resolveDBPath(repoRoot string, cfg *config.Config) string {
	path := cfg.Ledger.Path
	if flagDB != "" {
		path = flagDB
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(repoRoot, path)
}

// resolveRelative makes path absolute against base unless it already is.
func resolveRelative(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// loadConfig reads the config for repoRoot, honouring --config.
func loadConfig(repoRoot string) (*config.Config, error) {
	cfg, err := config.Load(repoRoot, flagConfig)
	if err != nil {
		return nil, err
	}
	cfg.SelectScript = resolveRelative(repoRoot, cfg.SelectScript)
	return cfg, nil
}

// cliLogger returns the logger built by the root command, or a no-op logger
// when the pre-run hook did not run.
func cliLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// openEngine creates an Engine for repoRoot. The ledger is opened unless
// withLedger is false, --no-ledger is set or the config disables it.
func openEngine(repoRoot string, cfg *config.Config, withLedger bool, opts ...guardmod.Option) (*guardmod.Engine, error) {
	dbPath := ""
	if withLedger && !flagNoLedger && cfg.Ledger.Enabled {
		dbPath = resolveDBPath(repoRoot, cfg)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
		}
	}
	opts = append([]guardmod.Option{guardmod.WithConfig(cfg), guardmod.WithLogger(cliLogger())}, opts...)
	engine, err := guardmod.New(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// openLedger opens an existing ledger for the report and restore commands.
func openLedger() (*guardmod.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(repoRoot, cfg)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("ledger not found: %s (run 'guardmod add' first)", dbPath)
	}
	cfg.SelectScript = ""
	engine, err := guardmod.New(dbPath, guardmod.WithConfig(cfg), guardmod.WithLogger(cliLogger()))
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return engine, nil
}
