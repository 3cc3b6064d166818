package schedule

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/motorscan/motorscan/internal/logger"
	"github.com/motorscan/motorscan/internal/registry"
)

type fakeStarter struct {
	mu    sync.Mutex
	calls []int
	snap  registry.RunSnapshot
	err   error
}

func (f *fakeStarter) Start(maxPages int) (registry.RunSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, maxPages)
	return f.snap, f.err
}

func (f *fakeStarter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func TestNew_EmptySpec(t *testing.T) {
	_, err := New("", 0, &fakeStarter{}, quietLogger())
	if err == nil {
		t.Fatal("New() should reject an empty spec")
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("not a cron spec", 0, &fakeStarter{}, quietLogger())
	if err == nil {
		t.Fatal("New() should reject a malformed spec")
	}
	if !strings.Contains(err.Error(), "invalid cron spec") {
		t.Errorf("error = %v", err)
	}
}

func TestNew_ValidSpecs(t *testing.T) {
	specs := []string{"0 6 * * *", "*/15 * * * *", "@hourly"}
	for _, spec := range specs {
		if _, err := New(spec, 0, &fakeStarter{}, quietLogger()); err != nil {
			t.Errorf("New(%q) error: %v", spec, err)
		}
	}
}

func TestTick_AdmitsRun(t *testing.T) {
	starter := &fakeStarter{
		snap: registry.RunSnapshot{RunID: "run-1", Status: registry.StatusStarted, MaxPages: 3},
	}
	s, err := New("0 6 * * *", 3, starter, quietLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	s.tick()

	if starter.callCount() != 1 {
		t.Fatalf("Start called %d times, want 1", starter.callCount())
	}
	if starter.calls[0] != 3 {
		t.Errorf("maxPages = %d, want 3", starter.calls[0])
	}
}

func TestTick_SkipsWhileRunActive(t *testing.T) {
	starter := &fakeStarter{err: &registry.AlreadyRunningError{RunID: "live"}}
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: logger.WarnLevel, Output: &buf})

	s, err := New("0 6 * * *", 0, starter, log)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	s.tick()

	if !strings.Contains(buf.String(), "skipped") {
		t.Errorf("skip not logged: %s", buf.String())
	}
}

func TestTick_LogsAdmissionFailure(t *testing.T) {
	starter := &fakeStarter{err: errors.New("storage unavailable")}
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: logger.ErrorLevel, Output: &buf})

	s, err := New("0 6 * * *", 0, starter, log)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	s.tick()

	if !strings.Contains(buf.String(), "failed to start") {
		t.Errorf("failure not logged: %s", buf.String())
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := New("0 6 * * *", 0, &fakeStarter{}, quietLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if !s.NextRun().IsZero() {
		t.Error("NextRun should be zero before Start")
	}

	s.Start()
	s.Start() // idempotent

	next := s.NextRun()
	if next.IsZero() {
		t.Fatal("NextRun should be set after Start")
	}
	if !next.After(time.Now()) {
		t.Errorf("NextRun = %v, should be in the future", next)
	}

	s.Stop()
	s.Stop() // idempotent
}
