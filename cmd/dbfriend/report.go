package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dbfriend/dbfriend/internal/gio"
	"github.com/dbfriend/dbfriend/internal/sync"
)

// singleFileReport wraps one LoadFile call in the same report shape the
// directory walk produces, so rendering has one path.
func singleFileReport(ctx context.Context, loader *sync.Loader, path string) *sync.RunReport {
	report := &sync.RunReport{Started: time.Now()}
	summary, err := loader.LoadFile(ctx, path)
	if err != nil {
		report.Failures = append(report.Failures, sync.FileFailure{
			File:  path,
			Table: gio.TableName(path),
			Err:   err,
		})
	} else {
		report.Summaries = append(report.Summaries, summary)
	}
	report.Elapsed = time.Since(report.Started)
	return report
}

func renderReport(w io.Writer, report *sync.RunReport) {
	for _, s := range report.Summaries {
		backup := ""
		if s.BackupCreated {
			backup = ", backup created"
		}
		fmt.Fprintf(w, "%s: %d new, %d updated, %d identical", s.TableName, s.Inserted, s.Updated, s.Unchanged)
		if s.DuplicatesSkipped > 0 {
			fmt.Fprintf(w, ", %d duplicates skipped", s.DuplicatesSkipped)
		}
		fmt.Fprintf(w, "%s\n", backup)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "FAILED %s (%s): %v\n", f.File, f.Table, f.Err)
	}
	fmt.Fprintf(w, "Total: %d inserted, %d updated, %d unchanged in %s\n",
		report.TotalInserted(), report.TotalUpdated(), report.TotalUnchanged(),
		report.Elapsed.Round(time.Millisecond))
}
