package store

import "time"

// Run is one invocation of the rewriter over a set of files.
type Run struct {
	ID             string
	Root           string
	Mode           string
	DryRun         bool
	StartedAt      time.Time
	FinishedAt     *time.Time
	FilesScanned   int
	FilesRewritten int
	FilesFailed    int
}

// FileRecord is the outcome of one file within a run.
type FileRecord struct {
	ID          int64
	RunID       string
	Path        string
	Status      string
	HashBefore  string
	HashAfter   string
	Shared      bool
	Error       string
	HasBackup   bool
	ProcessedAt time.Time
}

// DeclarationRecord is a declaration located in a file, with offsets into
// the original text.
type DeclarationRecord struct {
	ID       int64
	FileID   int64
	Name     string
	Start    int
	End      int
	Fallback bool
	Shared   bool
}
