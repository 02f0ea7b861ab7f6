// Package report renders the end-of-run summary and decides the process
// exit code. The summary goes to stdout as plain text so it survives in
// cron mail and CI logs; structured progress stays on the log stream.
package report

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"migrator/internal/migrate"
	"migrator/internal/verify"
)

// Summary is everything the reporter needs about one invocation.
type Summary struct {
	Database string
	Started  time.Time
	Duration time.Duration
	Outcomes []*migrate.TableOutcome
	Issues   []verify.Issue
	Verified bool
}

// Write renders the per-table results and the run total. Row counts are
// grouped (1,234,567) so the big ones stay readable.
func Write(w io.Writer, s Summary) {
	p := message.NewPrinter(language.English)

	fmt.Fprintf(w, "migration report: database=%s started=%s duration=%s\n",
		s.Database, s.Started.Format(time.RFC3339), s.Duration.Round(time.Millisecond))

	var totalRows int64
	failed := 0
	for _, oc := range s.Outcomes {
		totalRows += oc.RowsCopied()
		if oc.Failed() {
			failed++
			err := oc.FirstError()
			fmt.Fprintf(w, "  FAIL %-32s %s rows  [%s] %v\n",
				oc.Table, p.Sprintf("%d", oc.RowsCopied()), migrate.ErrorClass(err), err)
			for _, t := range oc.Tasks {
				if t.State() == migrate.TaskFailed && t.Err != err {
					fmt.Fprintf(w, "       %-30s [%s] %v\n", t.Label(), migrate.ErrorClass(t.Err), t.Err)
				}
			}
			continue
		}
		fmt.Fprintf(w, "  OK   %-32s %s rows  chunks=%d\n",
			oc.Table, p.Sprintf("%d", oc.RowsCopied()), len(oc.Tasks))
	}

	if s.Verified {
		if len(s.Issues) == 0 {
			fmt.Fprintf(w, "verification: clean\n")
		}
		for _, issue := range s.Issues {
			fmt.Fprintf(w, "  VERIFY %s\n", issue)
		}
	}

	fmt.Fprintf(w, "total: tables=%d failed=%d rows=%s\n",
		len(s.Outcomes), failed, p.Sprintf("%d", totalRows))
}

// ExitCode returns 0 only when every table finalized and verification, if
// run, found nothing. Anything less is a partial migration and the caller
// must not treat it as done.
func ExitCode(outcomes []*migrate.TableOutcome, issues []verify.Issue) int {
	if len(outcomes) == 0 {
		return 1
	}
	for _, oc := range outcomes {
		if oc.Failed() || !oc.Finalized {
			return 1
		}
	}
	if len(issues) > 0 {
		return 1
	}
	return 0
}
