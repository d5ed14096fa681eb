package guardmod

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jward/guardmod/internal/store"
)

// ErrNoLedger is returned by operations that need the run ledger when the
// Engine was created without one.
var ErrNoLedger = errors.New("run ledger disabled")

// RestoreResult lists what Restore did.
type RestoreResult struct {
	RunID    string
	Restored []string
	// Conflicts are files changed since the run wrote them; they are left
	// untouched.
	Conflicts []string
}

// Restore writes back the originals a run replaced. A file is restored only
// if its current contents are exactly what the run wrote.
func (e *Engine) Restore(ctx context.Context, runID string) (*RestoreResult, error) {
	if e.store == nil {
		return nil, ErrNoLedger
	}
	run, err := e.store.RunByID(runID)
	if err != nil {
		return nil, err
	}
	files, err := e.store.FilesByRun(run.ID)
	if err != nil {
		return nil, err
	}

	res := &RestoreResult{RunID: run.ID}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !f.HasBackup {
			continue
		}

		current, err := os.ReadFile(f.Path)
		if err != nil || store.ContentHash(current) != f.HashAfter {
			res.Conflicts = append(res.Conflicts, f.Path)
			e.logger.Warn("restore conflict", zap.String("path", f.Path), zap.Error(err))
			continue
		}

		original, err := e.store.Backup(f.ID)
		if err != nil {
			return res, fmt.Errorf("restore %s: %w", f.Path, err)
		}
		info, err := os.Stat(f.Path)
		if err != nil {
			return res, fmt.Errorf("restore %s: %w", f.Path, err)
		}
		if err := os.WriteFile(f.Path, original, info.Mode().Perm()); err != nil {
			return res, fmt.Errorf("restore %s: %w", f.Path, err)
		}
		res.Restored = append(res.Restored, f.Path)
	}
	return res, nil
}
