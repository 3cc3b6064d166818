// Package schedule fires scrape runs on a cron spec.
package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/motorscan/motorscan/internal/logger"
	"github.com/motorscan/motorscan/internal/registry"
)

// Starter admits scrape runs. Satisfied by pipeline.Pipeline.
type Starter interface {
	Start(maxPages int) (registry.RunSnapshot, error)
}

// Scheduler triggers a run on each cron tick. A tick that lands while a
// previous run is still active is skipped, never queued: backed-up
// scrapes of the same source would only re-walk the same pages.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	log     *logger.Logger
	starter Starter

	spec     string
	maxPages int
	entryID  cron.EntryID
	running  bool
}

// New creates a scheduler from a five-field cron spec, e.g. "0 6 * * *"
// for daily at 06:00. maxPages zero lets the pipeline's configured
// default apply.
func New(spec string, maxPages int, starter Starter, log *logger.Logger) (*Scheduler, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty cron spec")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	s := &Scheduler{
		cron:     cron.New(),
		log:      log.WithComponent("schedule"),
		starter:  starter,
		spec:     spec,
		maxPages: maxPages,
	}

	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	s.entryID = id

	return s, nil
}

// tick admits one run. Start is non-blocking; the run executes on the
// pipeline's own goroutine.
func (s *Scheduler) tick() {
	snap, err := s.starter.Start(s.maxPages)
	if err != nil {
		if registry.IsAlreadyRunning(err) {
			s.log.Warn("scheduled run skipped: previous run still active")
			return
		}
		s.log.WithError(err).Error("scheduled run failed to start")
		return
	}
	s.log.WithRun(snap.RunID).Infof("scheduled run started, max_pages=%d", snap.MaxPages)
}

// Start begins firing ticks. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Infof("scheduler started, spec %q, next run %s", s.spec, s.NextRun().Format(time.RFC3339))
}

// Stop halts tick delivery and waits for an in-flight tick to return.
// Ticks only admit runs, so the wait is brief.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.log.Info("scheduler stopped")
}

// NextRun reports when the next tick fires. Zero before Start.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}
