// Package registry tracks scrape runs: atomic admission of at most one
// active run, live snapshots for pollers, cooperative cancellation, and
// bounded retention of finished runs.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	scrapeerrors "github.com/motorscan/motorscan/internal/errors"
	"github.com/motorscan/motorscan/internal/logger"
	"github.com/motorscan/motorscan/internal/state"
)

// DefaultRetention is how many runs the registry keeps in memory.
const DefaultRetention = 20

// Registry is the single-process run table.
type Registry struct {
	mu        sync.Mutex
	runs      map[string]*Run
	order     []string // insertion order, oldest first
	active    *Run
	retention int
	journal   state.Journal
	log       *logger.Logger

	now   func() time.Time
	newID func() string
}

// New creates a registry. journal may be nil to skip run journaling;
// retention <= 0 selects the default cap.
func New(journal state.Journal, retention int, log *logger.Logger) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Registry{
		runs:      make(map[string]*Run),
		retention: retention,
		journal:   journal,
		log:       log.WithComponent("registry"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Start admits a new run. The active-run check and the insertion happen
// under one lock acquisition, so two concurrent Start calls can never
// both be admitted.
func (g *Registry) Start(maxPages int) (*Run, error) {
	if maxPages <= 0 {
		return nil, scrapeerrors.NewValidationError("max_pages", "must be a positive integer")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != nil && !g.active.terminal() {
		return nil, &AlreadyRunningError{RunID: g.active.id}
	}

	run := &Run{
		id:         g.newID(),
		status:     StatusStarted,
		startedAt:  g.now(),
		maxPages:   maxPages,
		nowFn:      g.now,
		onTerminal: g.journalTerminal,
	}
	g.runs[run.id] = run
	g.order = append(g.order, run.id)
	g.active = run
	g.evictLocked()

	g.log.WithRun(run.id).WithField("max_pages", maxPages).Info("run admitted")
	return run, nil
}

// Status returns a snapshot of the identified run.
func (g *Registry) Status(runID string) (RunSnapshot, error) {
	g.mu.Lock()
	run, ok := g.runs[runID]
	g.mu.Unlock()
	if !ok {
		return RunSnapshot{}, &NotFoundError{RunID: runID}
	}
	return run.Snapshot(), nil
}

// List returns retained runs, newest first.
func (g *Registry) List() []RunListItem {
	g.mu.Lock()
	defer g.mu.Unlock()

	items := make([]RunListItem, 0, len(g.order))
	for i := len(g.order) - 1; i >= 0; i-- {
		if run, ok := g.runs[g.order[i]]; ok {
			items = append(items, run.listItem())
		}
	}
	return items
}

// Cancel requests cancellation of a live run. The flag is advisory: the
// orchestrator observes it at the next page boundary.
func (g *Registry) Cancel(runID string) error {
	g.mu.Lock()
	run, ok := g.runs[runID]
	g.mu.Unlock()
	if !ok {
		return &NotFoundError{RunID: runID}
	}
	if err := run.requestCancel(); err != nil {
		return err
	}
	g.log.WithRun(runID).Info("cancellation requested")
	return nil
}

// Active returns the live run, or nil when no run is in flight.
func (g *Registry) Active() *Run {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != nil && !g.active.terminal() {
		return g.active
	}
	return nil
}

// evictLocked drops the oldest terminal runs beyond the retention cap.
// A live run is never evicted.
func (g *Registry) evictLocked() {
	for len(g.order) > g.retention {
		evicted := false
		for i, id := range g.order {
			run := g.runs[id]
			if run == nil || run.terminal() {
				delete(g.runs, id)
				g.order = append(g.order[:i], g.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// journalTerminal appends the terminal snapshot to the run journal so
// history survives the process.
func (g *Registry) journalTerminal(snap RunSnapshot) {
	if g.journal == nil {
		return
	}
	message := snap.Message
	if snap.Error != "" {
		message = snap.Error
	}
	rec := &state.RunRecord{
		RunID:      snap.RunID,
		Status:     snap.Status,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		MaxPages:   snap.MaxPages,
		PagesDone:  snap.PagesDone,
		Created:    snap.Result.Created,
		Updated:    snap.Result.Updated,
		Unchanged:  snap.Result.Unchanged,
		Errors:     snap.Result.Errors,
		Total:      snap.Result.Total,
		Message:    message,
	}
	if err := g.journal.Append(rec); err != nil {
		g.log.WithRun(snap.RunID).WithError(err).Warn("failed to journal run")
	}
}
