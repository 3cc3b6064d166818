package state

import (
	"time"
)

// RunRecord is the journaled snapshot of a finished scrape run. The registry
// appends one record per run when it reaches a terminal status, so run
// history survives process restarts.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	MaxPages   int       `json:"max_pages"`
	PagesDone  int       `json:"pages_done"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Errors     int       `json:"errors"`
	Total      int       `json:"total"`
	Message    string    `json:"message,omitempty"`
}
