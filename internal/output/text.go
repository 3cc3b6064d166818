package output

import (
	"fmt"
	"io"
	"time"

	"github.com/motorscan/motorscan/internal/state"
)

// FormatReport writes a human-readable rendition of a run report.
func FormatReport(w io.Writer, r *RunReport) {
	fmt.Fprintf(w, "Run:        %s\n", r.RunID)
	fmt.Fprintf(w, "Source:     %s\n", r.Source)
	fmt.Fprintf(w, "Status:     %s\n", r.Status)
	if r.Message != "" {
		fmt.Fprintf(w, "Message:    %s\n", r.Message)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", r.Error)
	}
	fmt.Fprintf(w, "Pages:      %d/%d\n", r.PagesDone, r.MaxPages)
	fmt.Fprintf(w, "Duration:   %s\n", r.Duration.Round(time.Second))
	fmt.Fprintf(w, "Created:    %d\n", r.Listings.Created)
	fmt.Fprintf(w, "Updated:    %d\n", r.Listings.Updated)
	fmt.Fprintf(w, "Unchanged:  %d\n", r.Listings.Unchanged)
	fmt.Fprintf(w, "Errors:     %d\n", r.Listings.Errors)
	fmt.Fprintf(w, "Total:      %d\n", r.Listings.Total)
	if r.Fetch.Requests > 0 {
		fmt.Fprintf(w, "Requests:   %d (%d retries)\n", r.Fetch.Requests, r.Fetch.Retries)
		fmt.Fprintf(w, "Avg fetch:  %s\n", r.Fetch.AvgResponseTime.Round(time.Millisecond))
	}
	if r.Store.Listings > 0 {
		fmt.Fprintf(w, "Database:   %d listings (%d active), %d brands, %d models\n",
			r.Store.Listings, r.Store.Active, r.Store.Brands, r.Store.Models)
	}
}

// FormatRuns writes run history as a fixed-width table, one row per run.
func FormatRuns(w io.Writer, recs []*state.RunRecord) {
	fmt.Fprintf(w, "%-36s  %-10s  %-20s  %-7s  %5s  %5s  %5s  %s\n",
		"RUN ID", "STATUS", "STARTED", "PAGES", "NEW", "UPD", "ERR", "MESSAGE")
	for _, rec := range recs {
		fmt.Fprintf(w, "%-36s  %-10s  %-20s  %3d/%-3d  %5d  %5d  %5d  %s\n",
			rec.RunID,
			rec.Status,
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.PagesDone, rec.MaxPages,
			rec.Created, rec.Updated, rec.Errors,
			truncateMessage(rec.Message, 40),
		)
	}
}

func truncateMessage(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
