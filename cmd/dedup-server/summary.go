package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/ehr/dedup/internal/domain/patient"
	"github.com/ehr/dedup/internal/platform/db"
)

var (
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen)
	warn  = color.New(color.FgYellow)
	faint = color.New(color.Faint)
)

func printSummary(w io.Writer, o *patient.Outcome, persisted bool) {
	run := o.Run
	bold.Fprintf(w, "Run %s", run.ID)
	faint.Fprintf(w, " (%s, %s)\n", run.Source, run.Stats.Duration.Round(time.Millisecond))

	fmt.Fprintf(w, "  %-20s %d\n", "patients read", o.Clean.Input)
	if d := o.Clean.Dropped(); d > 0 {
		warn.Fprintf(w, "  %-20s %d", "dropped", d)
		fmt.Fprintf(w, " (%d rows with a shared patient_id", o.Clean.DuplicateIDs)
		if o.Clean.InvalidIDs > 0 {
			fmt.Fprintf(w, ", %d without a usable one", o.Clean.InvalidIDs)
		}
		fmt.Fprintln(w, ")")
	} else {
		fmt.Fprintf(w, "  %-20s %d\n", "dropped", 0)
	}
	fmt.Fprintf(w, "  %-20s %d\n", "matched pairs", run.PairCount)
	green.Fprintf(w, "  %-20s %d\n", "canonical patients", run.ClusterCount)

	if run.Stats.Rounds > 1 {
		faint.Fprintf(w, "    %d matching rounds\n", run.Stats.Rounds)
	}
	for _, p := range run.Stats.Passes {
		faint.Fprintf(w, "    pass %-16s %d blocks, %d comparisons, %d matches\n",
			p.Pass, p.Blocks, p.Comparisons, p.Matches)
	}

	if o.PCR != nil {
		fmt.Fprintf(w, "  %-20s %d tested, %d positive, %d untested\n",
			"pcr", o.PCR.Tested, o.PCR.Positive, o.PCR.Untested)
		if o.PCR.Unmatched > 0 {
			warn.Fprintf(w, "  %-20s %d\n", "unmatched tests", o.PCR.Unmatched)
		}
	}

	if persisted {
		green.Fprintln(w, "  stored in result database")
	} else {
		faint.Fprintln(w, "  not stored")
	}
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := warn.Sprint("pending")
		appliedAt := ""
		if s.Applied {
			status = green.Sprint("applied")
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
