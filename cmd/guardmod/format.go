package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// stdout receives command results. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// formatRunSummaryText formats an add or remove run.
func formatRunSummaryText(w io.Writer, s CLIRunSummary) {
	mode := s.Mode
	if s.DryRun {
		mode += ", dry run"
	}
	fmt.Fprintf(w, "Run %s (%s)\n", s.RunID, mode)
	fmt.Fprintf(w, "Scanned: %d\n", s.Scanned)
	fmt.Fprintf(w, "Rewritten: %d\n", s.Rewritten)
	fmt.Fprintf(w, "Failed: %d\n", s.Failed)
}

// formatCountText prints the number of files add would rewrite.
func formatCountText(w io.Writer, c CLICount) {
	fmt.Fprintf(w, "TO PROCESS: %d files\n", c.ToProcess)
}

// formatRunsText formats ledger runs as aligned columns.
func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTARTED\tSCANNED\tREWRITTEN\tFAILED")
	for _, r := range runs {
		mode := r.Mode
		if r.DryRun {
			mode += " (dry)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			shortID(r.ID), mode, r.StartedAt.Local().Format(time.DateTime), r.Scanned, r.Rewritten, r.Failed)
	}
	tw.Flush()
}

// formatRunDetailText formats one run and its files.
func formatRunDetailText(w io.Writer, d CLIRunDetail) {
	fmt.Fprintf(w, "Run: %s\n", d.Run.ID)
	fmt.Fprintf(w, "Root: %s\n", d.Run.Root)
	fmt.Fprintf(w, "Started: %s\n", d.Run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tPATH\tSHARED\tERROR")
	for _, f := range d.Files {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", f.Status, f.Path, f.Shared, f.Error)
	}
	tw.Flush()
}

// formatRestoreText lists restored and conflicting files.
func formatRestoreText(w io.Writer, r CLIRestore) {
	fmt.Fprintf(w, "Restored %d file(s) from run %s\n", len(r.Restored), shortID(r.RunID))
	for _, p := range r.Restored {
		fmt.Fprintf(w, "  %s\n", p)
	}
	if len(r.Conflicts) > 0 {
		fmt.Fprintf(w, "Conflicts (changed since the run, left alone):\n")
		for _, p := range r.Conflicts {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}

// shortID abbreviates a run ID the way git abbreviates hashes.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIRunSummary:
		formatRunSummaryText(w, v)
	case CLICount:
		formatCountText(w, v)
	case []CLIRun:
		formatRunsText(w, v)
	case CLIRunDetail:
		formatRunDetailText(w, v)
	case CLIRestore:
		formatRestoreText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes a result in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(stdout, result)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
