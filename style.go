package guardmod

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// StyleGate runs the project's external style checker after a batch. The
// checker may fix formatting on its first pass, so it is run Passes times.
// Its exit status is reported, not acted on.
type StyleGate struct {
	Command []string
	Passes  int
	Dir     string
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *zap.Logger
}

// StyleGate returns the gate configured for this Engine, run in dir.
func (e *Engine) StyleGate(dir string, stdout, stderr io.Writer) StyleGate {
	return StyleGate{
		Command: e.cfg.Style.Command,
		Passes:  e.cfg.Style.Passes,
		Dir:     dir,
		Stdout:  stdout,
		Stderr:  stderr,
		Logger:  e.logger,
	}
}

// Run executes every pass and returns the exit code of each. An error is
// returned only if the command cannot be started or ctx is cancelled.
func (g StyleGate) Run(ctx context.Context) ([]int, error) {
	if len(g.Command) == 0 {
		return nil, fmt.Errorf("style gate: no command configured")
	}
	logger := g.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	codes := make([]int, 0, g.Passes)
	for pass := 1; pass <= g.Passes; pass++ {
		cmd := exec.CommandContext(ctx, g.Command[0], g.Command[1:]...)
		cmd.Dir = g.Dir
		cmd.Stdout = g.Stdout
		cmd.Stderr = g.Stderr

		err := cmd.Run()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			codes = append(codes, 0)
		case errors.As(err, &exitErr) && ctx.Err() == nil:
			codes = append(codes, exitErr.ExitCode())
		default:
			return codes, fmt.Errorf("style gate: %s: %w", strings.Join(g.Command, " "), err)
		}
		logger.Info("style gate pass finished", zap.Int("pass", pass), zap.Int("exit_code", codes[len(codes)-1]))
	}
	return codes, nil
}
