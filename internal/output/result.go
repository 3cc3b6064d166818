package output

import (
	"time"

	"github.com/motorscan/motorscan/internal/metrics"
	"github.com/motorscan/motorscan/internal/registry"
	"github.com/motorscan/motorscan/internal/store"
)

// RunReport is the complete JSON document describing one scrape run.
type RunReport struct {
	Source     string        `json:"source"`
	RunID      string        `json:"run_id"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	Duration   time.Duration `json:"duration"`
	MaxPages   int           `json:"max_pages"`
	PagesDone  int           `json:"pages_done"`
	Listings   ListingStats  `json:"listings"`
	Fetch      FetchStats    `json:"fetch"`
	Store      StoreSummary  `json:"store"`
	Message    string        `json:"message,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ListingStats counts what the run did to the listing table.
type ListingStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}

// FetchStats summarizes the run's network side.
type FetchStats struct {
	Requests        int64            `json:"requests"`
	PagesFetched    int64            `json:"pages_fetched"`
	Retries         int64            `json:"retries"`
	Errors          int64            `json:"errors"`
	BytesFetched    int64            `json:"bytes_fetched"`
	AvgResponseTime time.Duration    `json:"avg_response_time"`
	StatusCodes     map[int]int64    `json:"status_codes,omitempty"`
	ErrorsByKind    map[string]int64 `json:"errors_by_kind,omitempty"`
}

// StoreSummary is the post-run state of the listing database.
type StoreSummary struct {
	Brands   int64 `json:"brands"`
	Models   int64 `json:"models"`
	Listings int64 `json:"listings"`
	Active   int64 `json:"active_listings"`
	History  int64 `json:"history_rows"`
}

// ScrapeFailure is one failure event for streaming output.
type ScrapeFailure struct {
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// BuildReport assembles a run report from the run snapshot and whatever
// metrics and store state are available. ms and st may be nil.
func BuildReport(source string, snap registry.RunSnapshot, ms *metrics.Snapshot, st *store.Stats) *RunReport {
	report := &RunReport{
		Source:     source,
		RunID:      snap.RunID,
		Status:     snap.Status,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		MaxPages:   snap.MaxPages,
		PagesDone:  snap.PagesDone,
		Listings: ListingStats{
			Created:   snap.Result.Created,
			Updated:   snap.Result.Updated,
			Unchanged: snap.Result.Unchanged,
			Errors:    snap.Result.Errors,
			Total:     snap.Result.Total,
		},
		Message: snap.Message,
		Error:   snap.Error,
	}

	if snap.FinishedAt.IsZero() {
		report.Duration = time.Since(snap.StartedAt)
	} else {
		report.Duration = snap.FinishedAt.Sub(snap.StartedAt)
	}

	if ms != nil {
		report.Fetch = FetchStats{
			Requests:        ms.RequestsTotal,
			PagesFetched:    ms.PagesFetched,
			Retries:         ms.RetriesTotal,
			Errors:          ms.ErrorsTotal,
			BytesFetched:    ms.BytesTotal,
			AvgResponseTime: ms.AverageResponseTime,
			StatusCodes:     ms.StatusCodes,
			ErrorsByKind:    ms.ErrorCounts,
		}
	}

	if st != nil {
		report.Store = StoreSummary{
			Brands:   st.Brands,
			Models:   st.Models,
			Listings: st.Listings,
			Active:   st.Active,
			History:  st.History,
		}
	}

	return report
}
