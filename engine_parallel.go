package guardmod

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CountResult is the outcome of Count.
type CountResult struct {
	// ToProcess is the number of files Run would rewrite.
	ToProcess int
	// Statuses holds the status of each path, in input order. Files that
	// could not be read or located are StatusFailed.
	Statuses []Status
}

// Count reports how many of paths Run would rewrite, without modifying
// anything. Files are scanned concurrently; per-file errors are counted as
// failures and the first one is returned wrapped with the total.
func (e *Engine) Count(ctx context.Context, paths []string) (*CountResult, error) {
	workers := e.parallel
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	statuses := make([]Status, len(paths))
	fileErrs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				statuses[i], fileErrs[i] = StatusFailed, fmt.Errorf("read file: %w", err)
				return nil
			}
			res, err := e.Rewrite(gctx, path, string(content), ModeAdd)
			if err != nil {
				statuses[i], fileErrs[i] = StatusFailed, err
				return nil
			}
			statuses[i] = res.Status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &CountResult{Statuses: statuses}
	var errs []error
	for i, st := range statuses {
		switch st {
		case StatusRewritten:
			res.ToProcess++
		case StatusFailed:
			errs = append(errs, fmt.Errorf("count %s: %w", paths[i], fileErrs[i]))
			e.logger.Warn("count failed", zap.String("path", paths[i]), zap.Error(fileErrs[i]))
		}
	}
	if len(errs) > 0 {
		return res, fmt.Errorf("count had %d error(s): %w", len(errs), errs[0])
	}
	return res, nil
}
