package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/guardmod"
	"github.com/jward/guardmod/scripts"
)

var (
	flagDryRun   bool
	flagSingle   bool
	flagFilter   string
	flagIgnore   string
	flagCount    bool
	flagNoStyle  bool
	flagSelect   string
	flagBalancer string
	flagParallel int
)

var addCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Wrap annotated declarations in the guard",
	Long:  "Rewrites every annotated declaration under path (default: current directory) in place, then runs the configured style gate.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagCount {
			return runCount(cmd, args)
		}
		return runRewrite(cmd, args, guardmod.ModeAdd)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [path]",
	Short: "Unwrap guarded declarations (not supported)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRewrite(cmd, args, guardmod.ModeRemove)
	},
}

var countCmd = &cobra.Command{
	Use:   "count [path]",
	Short: "Count the files add would rewrite",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCount,
}

func init() {
	for _, cmd := range []*cobra.Command{addCmd, removeCmd, countCmd} {
		cmd.Flags().StringVar(&flagFilter, "filter", "", "comma-separated substrings; only matching paths are processed")
		cmd.Flags().StringVar(&flagIgnore, "ignore", "", "comma-separated substrings; matching paths are skipped")
		cmd.Flags().StringVar(&flagSelect, "select", "", "Risor script deciding which files to rewrite, or builtin:<name> ("+strings.Join(scripts.Names(), ", ")+")")
		cmd.Flags().StringVar(&flagBalancer, "balancer", "", "brace balancer: braces|treesitter (default from config)")
		cmd.Flags().IntVar(&flagParallel, "parallel", 0, "files scanned at once by count (default: one per CPU)")
	}
	for _, cmd := range []*cobra.Command{addCmd, removeCmd} {
		cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print the first rewritten file instead of writing")
		cmd.Flags().BoolVar(&flagSingle, "single", false, "stop after the first rewritten file")
		cmd.Flags().BoolVar(&flagNoStyle, "no-style", false, "skip the style gate")
	}
	addCmd.Flags().BoolVar(&flagCount, "count", false, "only count the files that would be rewritten")
}

// prepare resolves the target, loads the config with flag overrides and
// discovers the candidate files.
func prepare(args []string, withLedger bool) (string, string, *guardmod.Engine, []string, error) {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return "", "", nil, nil, err
	}
	repoRoot := findRepoRoot(targetDir)
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return "", "", nil, nil, err
	}
	if flagBalancer != "" {
		cfg.Balancer = flagBalancer
	}

	var opts []guardmod.Option
	if flagParallel > 0 {
		opts = append(opts, guardmod.WithParallel(flagParallel))
	}
	if name, ok := strings.CutPrefix(flagSelect, "builtin:"); ok {
		opts = append(opts, guardmod.WithScriptsFS(scripts.FS), guardmod.WithSelectScript(scripts.Path(name)))
	} else if flagSelect != "" {
		script, err := filepath.Abs(flagSelect)
		if err != nil {
			return "", "", nil, nil, fmt.Errorf("resolving script path %q: %w", flagSelect, err)
		}
		opts = append(opts, guardmod.WithSelectScript(script))
	}
	engine, err := openEngine(repoRoot, cfg, withLedger, opts...)
	if err != nil {
		return "", "", nil, nil, err
	}

	paths, err := engine.Discover(targetDir, guardmod.DiscoverOptions{
		Include: guardmod.SplitFilter(flagFilter),
		Exclude: guardmod.SplitFilter(flagIgnore),
	})
	if err != nil {
		engine.Close()
		return "", "", nil, nil, fmt.Errorf("discovering files: %w", err)
	}
	return targetDir, repoRoot, engine, paths, nil
}

func runRewrite(cmd *cobra.Command, args []string, mode guardmod.Mode) error {
	command := string(mode)
	targetDir, repoRoot, engine, paths, err := prepare(args, true)
	if err != nil {
		return outputError(command, err)
	}
	defer engine.Close()

	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()
	summary, runErr := engine.Run(ctx, paths, guardmod.RunOptions{
		Mode:     mode,
		DryRun:   flagDryRun,
		Single:   flagSingle,
		Output:   cmd.OutOrStdout(),
		Progress: progressPrinter(stderr),
		Root:     targetDir,
	})
	if summary == nil {
		return outputError(command, runErr)
	}

	cfg := engine.Config()
	if !flagDryRun && cfg.Style.Enabled && !flagNoStyle && summary.Rewritten > 0 {
		codes, err := engine.StyleGate(repoRoot, stderr, stderr).Run(ctx)
		if err != nil {
			cliLogger().Warn("style gate failed", zap.Error(err))
		}
		for i, code := range codes {
			if code != 0 {
				fmt.Fprintf(stderr, "style gate pass %d exited with %d\n", i+1, code)
			}
		}
	}

	// A dry run's output is the rewritten file itself.
	if !flagDryRun {
		if err := outputResult(CLIResult{Command: command, Results: toCLIRunSummary(summary)}); err != nil {
			return err
		}
	}
	return runErr
}

func runCount(cmd *cobra.Command, args []string) error {
	_, _, engine, paths, err := prepare(args, false)
	if err != nil {
		return outputError("count", err)
	}
	defer engine.Close()

	res, countErr := engine.Count(cmd.Context(), paths)
	if res == nil {
		return outputError("count", countErr)
	}
	result := CLICount{ToProcess: res.ToProcess, Scanned: len(paths)}
	for i, st := range res.Statuses {
		if st == guardmod.StatusRewritten {
			result.Files = append(result.Files, paths[i])
		}
	}
	if err := outputResult(CLIResult{Command: "count", Results: result}); err != nil {
		return err
	}
	return countErr
}

// progressPrinter returns a Progress callback printing one status line per
// file to w.
func progressPrinter(w io.Writer) func(guardmod.FileOutcome) {
	process := color.New(color.FgGreen, color.Bold)
	skipping := color.New(color.FgYellow)
	failed := color.New(color.FgRed, color.Bold)

	return func(o guardmod.FileOutcome) {
		switch o.Status {
		case guardmod.StatusRewritten:
			shared := ""
			if o.Shared {
				shared = ", shared"
			}
			fmt.Fprintf(w, "%s %s (%d declarations%s)\n", process.Sprint("[process]"), o.Path, o.Declarations, shared)
		case guardmod.StatusFailed:
			fmt.Fprintf(w, "%s %s: %v\n", failed.Sprint("[failed]"), o.Path, o.Err)
		case guardmod.StatusNoMatch:
			// Most files have nothing to do; stay quiet about them.
		default:
			fmt.Fprintf(w, "%s %s (%s)\n", skipping.Sprint("[skipping]"), o.Path, o.Status)
		}
	}
}
