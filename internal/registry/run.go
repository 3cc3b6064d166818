package registry

import (
	"sync"
	"time"

	scrapeerrors "github.com/motorscan/motorscan/internal/errors"
)

// Run statuses. started is transient: the orchestrator flips it to
// running as soon as the page loop is entered.
const (
	StatusStarted   = "started"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// IsTerminal reports whether a status is final.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// RunResult aggregates upsert outcomes for one run. Total counts the
// fragments that reached storage; Errors counts skipped fragments and
// skipped pages.
type RunResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}

// RunSnapshot is a value copy of a run's state, safe to hand to pollers
// while the orchestrator keeps writing.
type RunSnapshot struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	MaxPages   int       `json:"max_pages"`
	PagesDone  int       `json:"pages_done"`
	Progress   float64   `json:"progress"`
	Message    string    `json:"message,omitempty"`
	Result     RunResult `json:"result"`
	Error      string    `json:"error,omitempty"`
}

// RunListItem is the compact list form.
type RunListItem struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Done      bool   `json:"done"`
	Cancelled bool   `json:"cancelled"`
}

// Run is the live state of one scrape execution. The orchestrator
// goroutine is the sole writer of counters and status; everyone else
// reads value snapshots.
type Run struct {
	mu              sync.RWMutex
	id              string
	status          string
	startedAt       time.Time
	finishedAt      time.Time
	maxPages        int
	pagesDone       int
	result          RunResult
	message         string
	lastError       string
	cancelRequested bool

	nowFn      func() time.Time
	onTerminal func(RunSnapshot)
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// MaxPages returns the page ceiling the run was admitted with.
func (r *Run) MaxPages() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxPages
}

// MarkRunning moves a freshly admitted run into the running state.
func (r *Run) MarkRunning() {
	r.mu.Lock()
	if r.status == StatusStarted {
		r.status = StatusRunning
	}
	r.mu.Unlock()
}

// Progress records one page boundary: pages completed so far and the
// accumulated counters. pages_done never regresses and never exceeds
// max_pages.
func (r *Run) Progress(pagesDone int, result RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pagesDone > r.maxPages {
		pagesDone = r.maxPages
	}
	if pagesDone > r.pagesDone {
		r.pagesDone = pagesDone
	}
	r.result = result
}

// Cancelled reports whether cancellation has been requested. The
// orchestrator polls this at page boundaries.
func (r *Run) Cancelled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelRequested
}

// Complete marks the run completed.
func (r *Run) Complete(message string) {
	r.finish(StatusCompleted, message, "")
}

// Fail marks the run failed, keeping the failure kind as the message
// and the full error text alongside.
func (r *Run) Fail(err error) {
	message := "run failed"
	text := ""
	if err != nil {
		message = scrapeerrors.GetErrorKind(err).String()
		text = err.Error()
	}
	r.finish(StatusError, message, text)
}

// MarkCancelled acknowledges a cancel request at a page boundary.
func (r *Run) MarkCancelled() {
	r.finish(StatusCancelled, "cancelled at page boundary", "")
}

// Snapshot returns a value copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Run) snapshotLocked() RunSnapshot {
	progress := 0.0
	if r.maxPages > 0 {
		progress = float64(r.pagesDone) / float64(r.maxPages)
	}
	return RunSnapshot{
		RunID:      r.id,
		Status:     r.status,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
		MaxPages:   r.maxPages,
		PagesDone:  r.pagesDone,
		Progress:   progress,
		Message:    r.message,
		Result:     r.result,
		Error:      r.lastError,
	}
}

// finish applies a terminal status exactly once. The first terminal
// transition wins; later calls are no-ops.
func (r *Run) finish(status, message, errText string) {
	r.mu.Lock()
	if IsTerminal(r.status) {
		r.mu.Unlock()
		return
	}
	r.status = status
	r.message = message
	r.lastError = errText
	r.finishedAt = r.nowFn()
	snap := r.snapshotLocked()
	onTerminal := r.onTerminal
	r.mu.Unlock()

	if onTerminal != nil {
		onTerminal(snap)
	}
}

func (r *Run) requestCancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if IsTerminal(r.status) {
		return &AlreadyTerminalError{RunID: r.id, Status: r.status}
	}
	r.cancelRequested = true
	return nil
}

func (r *Run) terminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return IsTerminal(r.status)
}

func (r *Run) listItem() RunListItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RunListItem{
		RunID:     r.id,
		Status:    r.status,
		Done:      IsTerminal(r.status),
		Cancelled: r.cancelRequested || r.status == StatusCancelled,
	}
}
