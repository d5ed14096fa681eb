package main

import (
	"time"

	"github.com/jward/guardmod"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIRunSummary is a JSON-friendly summary of an add run.
type CLIRunSummary struct {
	RunID      string       `json:"run_id"`
	Mode       string       `json:"mode"`
	DryRun     bool         `json:"dry_run"`
	DurationMS int64        `json:"duration_ms"`
	Scanned    int          `json:"scanned"`
	Rewritten  int          `json:"rewritten"`
	Failed     int          `json:"failed"`
	Files      []CLIOutcome `json:"files"`
}

// CLIOutcome is one processed file that had declarations.
type CLIOutcome struct {
	Path         string `json:"path"`
	Status       string `json:"status"`
	Declarations int    `json:"declarations"`
	Shared       bool   `json:"shared,omitempty"`
	Error        string `json:"error,omitempty"`
}

// CLICount is the result of count.
type CLICount struct {
	ToProcess int      `json:"to_process"`
	Scanned   int      `json:"scanned"`
	Files     []string `json:"files,omitempty"`
}

// CLIRun is a JSON-friendly ledger run.
type CLIRun struct {
	ID         string     `json:"id"`
	Root       string     `json:"root"`
	Mode       string     `json:"mode"`
	DryRun     bool       `json:"dry_run"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Scanned    int        `json:"scanned"`
	Rewritten  int        `json:"rewritten"`
	Failed     int        `json:"failed"`
}

// CLIFile is a JSON-friendly ledger file record.
type CLIFile struct {
	Path       string `json:"path"`
	Status     string `json:"status"`
	HashBefore string `json:"hash_before"`
	HashAfter  string `json:"hash_after,omitempty"`
	Shared     bool   `json:"shared,omitempty"`
	HasBackup  bool   `json:"has_backup"`
	Error      string `json:"error,omitempty"`
}

// CLIRunDetail is one run with its files.
type CLIRunDetail struct {
	Run   CLIRun    `json:"run"`
	Files []CLIFile `json:"files"`
}

// CLIRestore is the result of restore.
type CLIRestore struct {
	RunID     string   `json:"run_id"`
	Restored  []string `json:"restored"`
	Conflicts []string `json:"conflicts"`
}

// --- Conversion helpers ---

func toCLIRunSummary(s *guardmod.RunSummary) CLIRunSummary {
	out := CLIRunSummary{
		RunID:      s.RunID,
		Mode:       string(s.Mode),
		DryRun:     s.DryRun,
		DurationMS: s.FinishedAt.Sub(s.StartedAt).Milliseconds(),
		Scanned:    s.Scanned,
		Rewritten:  s.Rewritten,
		Failed:     s.Failed,
		Files:      []CLIOutcome{},
	}
	for _, f := range s.Files {
		if f.Status == guardmod.StatusNoMatch {
			continue
		}
		o := CLIOutcome{Path: f.Path, Status: string(f.Status), Declarations: f.Declarations, Shared: f.Shared}
		if f.Err != nil {
			o.Error = f.Err.Error()
		}
		out.Files = append(out.Files, o)
	}
	return out
}

func toCLIRun(r *guardmod.Run) CLIRun {
	return CLIRun{
		ID:         r.ID,
		Root:       r.Root,
		Mode:       r.Mode,
		DryRun:     r.DryRun,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Scanned:    r.FilesScanned,
		Rewritten:  r.FilesRewritten,
		Failed:     r.FilesFailed,
	}
}

func toCLIFile(f *guardmod.FileRecord) CLIFile {
	return CLIFile{
		Path:       f.Path,
		Status:     f.Status,
		HashBefore: f.HashBefore,
		HashAfter:  f.HashAfter,
		Shared:     f.Shared,
		HasBackup:  f.HasBackup,
		Error:      f.Error,
	}
}
