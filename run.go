package guardmod

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jward/guardmod/internal/store"
)

// RunOptions controls a batch run.
type RunOptions struct {
	Mode Mode
	// DryRun prints the first rewritten file to Output and stops without
	// writing anything.
	DryRun bool
	// Single stops after the first file written.
	Single bool
	// Output receives dry-run text. Nil discards it.
	Output io.Writer
	// Progress, if set, is called once per file after it is handled.
	Progress func(FileOutcome)
	// Root is recorded in the ledger as the run's root directory.
	Root string
}

// FileOutcome summarizes one file of a run.
type FileOutcome struct {
	Path         string
	Status       Status
	Declarations int
	Shared       bool
	Err          error
}

// RunSummary is the result of Run.
type RunSummary struct {
	RunID      string
	Mode       Mode
	DryRun     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Scanned    int
	Rewritten  int
	Failed     int
	Files      []FileOutcome
}

// Run rewrites the files at paths in place, in order. Per-file errors do not
// stop the batch; they are counted and the first one is returned wrapped
// once every file has been handled. ModeRemove fails before any file is
// read.
func (e *Engine) Run(ctx context.Context, paths []string, opts RunOptions) (*RunSummary, error) {
	if opts.Mode == "" {
		opts.Mode = ModeAdd
	}
	if opts.Mode == ModeRemove {
		return nil, ErrRemoveUnsupported
	}
	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	sum := &RunSummary{
		RunID:     uuid.New().String(),
		Mode:      opts.Mode,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
	}
	log := e.logger.With(zap.String("run", sum.RunID))
	if e.store != nil {
		err := e.store.InsertRun(&store.Run{
			ID: sum.RunID, Root: opts.Root, Mode: string(opts.Mode), DryRun: opts.DryRun, StartedAt: sum.StartedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("guardmod: %w", err)
		}
	}

	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res, err := e.processFile(ctx, path, opts, sum.RunID)
		sum.Scanned++
		outcome := FileOutcome{Path: path, Err: err}
		if err != nil {
			outcome.Status = StatusFailed
			sum.Failed++
			errs = append(errs, fmt.Errorf("rewrite %s: %w", path, err))
			log.Warn("rewrite failed", zap.String("path", path), zap.Error(err))
		} else {
			outcome.Status = res.Status
			outcome.Declarations = len(res.Declarations)
			outcome.Shared = res.Shared
			log.Debug("file handled", zap.String("path", path),
				zap.String("status", string(res.Status)), zap.Int("declarations", len(res.Declarations)))
		}
		sum.Files = append(sum.Files, outcome)
		if opts.Progress != nil {
			opts.Progress(outcome)
		}

		if outcome.Status != StatusRewritten {
			continue
		}
		sum.Rewritten++
		if opts.DryRun {
			fmt.Fprintln(out, res.Text)
			break
		}
		if opts.Single {
			break
		}
	}

	sum.FinishedAt = time.Now()
	if e.store != nil {
		err := e.store.FinishRun(&store.Run{
			ID: sum.RunID, FinishedAt: &sum.FinishedAt,
			FilesScanned: sum.Scanned, FilesRewritten: sum.Rewritten, FilesFailed: sum.Failed,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("guardmod: %w", err))
		}
	}
	log.Info("run finished", zap.Int("scanned", sum.Scanned),
		zap.Int("rewritten", sum.Rewritten), zap.Int("failed", sum.Failed))

	if len(errs) > 0 {
		return sum, fmt.Errorf("run had %d error(s): %w", len(errs), errs[0])
	}
	return sum, nil
}

// processFile rewrites one file, writes it back unless this is a dry run and
// records the outcome in the ledger.
func (e *Engine) processFile(ctx context.Context, path string, opts RunOptions, runID string) (*FileResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	res, err := e.Rewrite(ctx, path, string(content), opts.Mode)
	if err != nil {
		e.record(&store.FileRecord{
			RunID: runID, Path: path, Status: string(StatusFailed),
			HashBefore: store.ContentHash(content), Error: err.Error(),
		}, nil, nil)
		return nil, err
	}

	rec := &store.FileRecord{
		RunID: runID, Path: path, Status: string(res.Status),
		HashBefore: store.ContentHash(content), Shared: res.Shared,
	}
	var backup []byte
	if res.Status == StatusRewritten && !opts.DryRun {
		if err := os.WriteFile(path, []byte(res.Text), info.Mode().Perm()); err != nil {
			return nil, fmt.Errorf("write file: %w", err)
		}
		rec.HashAfter = store.ContentHash([]byte(res.Text))
		backup = content
	}
	if res.Status != StatusNoMatch {
		e.record(rec, backup, declarationRecords(res))
	}
	return res, nil
}

// record writes to the ledger. Ledger failures are logged, never fatal to
// the file being rewritten.
func (e *Engine) record(rec *store.FileRecord, backup []byte, decls []store.DeclarationRecord) {
	if e.store == nil {
		return
	}
	if _, err := e.store.RecordFile(rec, backup, decls); err != nil {
		e.logger.Error("ledger write failed", zap.String("path", rec.Path), zap.Error(err))
	}
}

func declarationRecords(res *FileResult) []store.DeclarationRecord {
	recs := make([]store.DeclarationRecord, len(res.Declarations))
	for i, d := range res.Declarations {
		recs[i] = store.DeclarationRecord{
			Name: d.Name, Start: d.Start, End: d.End, Fallback: d.Fallback, Shared: d.Shared,
		}
	}
	return recs
}
