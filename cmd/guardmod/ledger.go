package main

import (
	"github.com/spf13/cobra"
)

var flagLimit int

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "List recorded runs, or the files of one run",
	Long:  "Without arguments lists the most recent runs in the ledger. With a run ID (or a unique prefix of one) lists the files that run handled.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <run-id>",
	Short: "Restore the files a run rewrote",
	Long:  "Writes back the original contents recorded for a run. Files changed since the run are reported as conflicts and left alone.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	reportCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum number of runs listed")
}

func runReport(cmd *cobra.Command, args []string) error {
	engine, err := openLedger()
	if err != nil {
		return outputError("report", err)
	}
	defer engine.Close()
	st := engine.Store()

	if len(args) == 0 {
		runs, err := st.Runs(flagLimit)
		if err != nil {
			return outputError("report", err)
		}
		out := make([]CLIRun, len(runs))
		for i, r := range runs {
			out[i] = toCLIRun(r)
		}
		return outputResult(CLIResult{Command: "report", Results: out})
	}

	run, err := st.RunByID(args[0])
	if err != nil {
		return outputError("report", err)
	}
	files, err := st.FilesByRun(run.ID)
	if err != nil {
		return outputError("report", err)
	}
	detail := CLIRunDetail{Run: toCLIRun(run), Files: make([]CLIFile, len(files))}
	for i, f := range files {
		detail.Files[i] = toCLIFile(f)
	}
	return outputResult(CLIResult{Command: "report", Results: detail})
}

func runRestore(cmd *cobra.Command, args []string) error {
	engine, err := openLedger()
	if err != nil {
		return outputError("restore", err)
	}
	defer engine.Close()

	res, err := engine.Restore(cmd.Context(), args[0])
	if err != nil {
		return outputError("restore", err)
	}
	return outputResult(CLIResult{Command: "restore", Results: CLIRestore{
		RunID:     res.RunID,
		Restored:  nonNil(res.Restored),
		Conflicts: nonNil(res.Conflicts),
	}})
}

// nonNil keeps empty lists as [] rather than null in JSON output.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
