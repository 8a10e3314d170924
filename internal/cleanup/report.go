package cleanup

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/tinyhis/regops/internal/db"
	"github.com/tinyhis/regops/internal/tally"
)

// Summary tallies one cancel run.
type Summary struct {
	Total       int
	Cancelled   int
	Failed      int
	Skipped     int
	WouldCancel int
	DryRun      bool
	Reasons     *tally.Table
}

// PurgeReport lists what a purge deleted, or would delete in a dry run.
type PurgeReport struct {
	Steps  []db.PurgeStep
	DryRun bool
}

// Rows returns the total number of rows across all steps.
func (r *PurgeReport) Rows() int64 {
	var n int64
	for _, s := range r.Steps {
		n += s.Rows
	}
	return n
}

func (s *Summary) Write(w io.Writer) {
	fmt.Fprintln(w, "--- Summary ---")
	fmt.Fprintf(w, "Total registrations: %d\n", s.Total)
	if s.DryRun {
		fmt.Fprintf(w, "Would cancel: %s\n", color.New(color.FgCyan).Sprint(s.WouldCancel))
	} else {
		fmt.Fprintf(w, "Cancelled: %s\n", color.New(color.FgGreen).Sprint(s.Cancelled))
		failed := fmt.Sprint(s.Failed)
		if s.Failed > 0 {
			failed = color.New(color.FgRed).Sprint(s.Failed)
		}
		fmt.Fprintf(w, "Failed to cancel: %s\n", failed)
	}
	fmt.Fprintf(w, "Skipped (in consultation/completed): %d\n", s.Skipped)
	if s.Reasons != nil {
		s.Reasons.Write(w, "Failure reasons")
	}
}

func (r *PurgeReport) Write(w io.Writer) {
	if r.DryRun {
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("Dry run enabled. Skipping actual deletion."))
		fmt.Fprintln(w, "Would touch:")
	} else {
		fmt.Fprintln(w, "Hard delete completed:")
	}
	for _, s := range r.Steps {
		fmt.Fprintf(w, "  %-16s %-20s %d rows\n", s.Table, s.Action, s.Rows)
	}
}
