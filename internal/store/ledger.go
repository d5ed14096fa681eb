package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRunNotFound is returned when no run matches an ID or ID prefix.
	ErrRunNotFound = errors.New("run not found")
	// ErrNoBackup is returned for file records stored without an original.
	ErrNoBackup = errors.New("no backup recorded")
)

// --- Run operations ---

func (s *Store) InsertRun(r *Run) error {
	_, err := s.db.Exec(
		"INSERT INTO runs (id, root, mode, dry_run, started_at) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.Root, r.Mode, r.DryRun, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

// FinishRun stamps a run with its end time and file counters.
func (s *Store) FinishRun(r *Run) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, files_scanned = ?, files_rewritten = ?, files_failed = ?
		 WHERE id = ?`,
		r.FinishedAt, r.FilesScanned, r.FilesRewritten, r.FilesFailed, r.ID,
	)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: finish run %s: %w", r.ID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `id, root, mode, dry_run, started_at, finished_at,
	files_scanned, files_rewritten, files_failed`

func scanRun(scanner interface{ Scan(...any) error }) (*Run, error) {
	r := &Run{}
	var finished sql.NullTime
	if err := scanner.Scan(&r.ID, &r.Root, &r.Mode, &r.DryRun, &r.StartedAt, &finished,
		&r.FilesScanned, &r.FilesRewritten, &r.FilesFailed); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

// Runs returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) Runs(limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunByID returns the run whose ID is id or starts with id. A prefix that
// matches more than one run is an error.
func (s *Store) RunByID(id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("store: empty run id: %w", ErrRunNotFound)
	}
	rows, err := s.db.Query(
		"SELECT "+runColumns+" FROM runs WHERE id = ? OR substr(id, 1, ?) = ? ORDER BY id LIMIT 2",
		id, len(id), id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: run by id: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: run by id: %w", err)
	}

	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("store: run %q: %w", id, ErrRunNotFound)
	case 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("store: run id %q is ambiguous", id)
	}
}

// --- File operations ---

// RecordFile stores a file outcome, its declarations and, when original is
// non-nil, a compressed copy of the original contents in one transaction.
func (s *Store) RecordFile(f *FileRecord, original []byte, decls []DeclarationRecord) (int64, error) {
	var backup []byte
	if original != nil {
		var err error
		if backup, err = compress(original); err != nil {
			return 0, fmt.Errorf("store: record file %s: %w", f.Path, err)
		}
	}
	if f.ProcessedAt.IsZero() {
		f.ProcessedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: record file: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO files (run_id, path, status, hash_before, hash_after, shared, error, backup, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.RunID, f.Path, f.Status, f.HashBefore, f.HashAfter, f.Shared, f.Error, backup, f.ProcessedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("store: record file %s: %w", f.Path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: last insert id: %w", err)
	}

	for i := range decls {
		d := &decls[i]
		res, err := tx.Exec(
			`INSERT INTO declarations (file_id, name, start_offset, end_offset, fallback, shared)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, d.Name, d.Start, d.End, d.Fallback, d.Shared,
		)
		if err != nil {
			return 0, fmt.Errorf("store: record declaration %s: %w", d.Name, err)
		}
		d.FileID = id
		if d.ID, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("store: last insert id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: record file: commit: %w", err)
	}
	f.ID = id
	f.HasBackup = backup != nil
	return id, nil
}

// FilesByRun returns a run's file records in path order.
func (s *Store) FilesByRun(runID string) ([]*FileRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, path, status, hash_before, hash_after, shared, error,
			backup IS NOT NULL, processed_at
		 FROM files WHERE run_id = ? ORDER BY path`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: files by run: %w", err)
	}
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		f := &FileRecord{}
		if err := rows.Scan(&f.ID, &f.RunID, &f.Path, &f.Status, &f.HashBefore, &f.HashAfter,
			&f.Shared, &f.Error, &f.HasBackup, &f.ProcessedAt); err != nil {
			return nil, fmt.Errorf("store: scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeclarationsByFile returns the declarations recorded for a file in source
// order.
func (s *Store) DeclarationsByFile(fileID int64) ([]*DeclarationRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, file_id, name, start_offset, end_offset, fallback, shared
		 FROM declarations WHERE file_id = ? ORDER BY start_offset`, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: declarations by file: %w", err)
	}
	defer rows.Close()

	var decls []*DeclarationRecord
	for rows.Next() {
		d := &DeclarationRecord{}
		if err := rows.Scan(&d.ID, &d.FileID, &d.Name, &d.Start, &d.End, &d.Fallback, &d.Shared); err != nil {
			return nil, fmt.Errorf("store: scan declaration: %w", err)
		}
		decls = append(decls, d)
	}
	return decls, rows.Err()
}

// Backup returns the decompressed original contents recorded for a file.
func (s *Store) Backup(fileID int64) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT backup FROM files WHERE id = ?", fileID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: backup of file %d: %w", fileID, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("store: backup of file %d: %w", fileID, err)
	}
	if blob == nil {
		return nil, fmt.Errorf("store: file %d: %w", fileID, ErrNoBackup)
	}
	data, err := decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("store: backup of file %d: %w", fileID, err)
	}
	return data, nil
}
