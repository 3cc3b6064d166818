// Package pipeline orchestrates scrape runs: paged fetching through a
// headless browser, normalization, identity resolution, and idempotent
// listing upserts, with run state tracked in the registry.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/motorscan/motorscan/internal/browser"
	scrapeerrors "github.com/motorscan/motorscan/internal/errors"
	"github.com/motorscan/motorscan/internal/fetch"
	"github.com/motorscan/motorscan/internal/identity"
	"github.com/motorscan/motorscan/internal/logger"
	"github.com/motorscan/motorscan/internal/metrics"
	"github.com/motorscan/motorscan/internal/normalize"
	"github.com/motorscan/motorscan/internal/ratelimit"
	"github.com/motorscan/motorscan/internal/registry"
	"github.com/motorscan/motorscan/internal/state"
	"github.com/motorscan/motorscan/internal/store"
)

// Pipeline owns the scrape stack for one listing source.
type Pipeline struct {
	config     *Config
	log        *logger.Logger
	metrics    *metrics.Collector
	registry   *registry.Registry
	store      *store.Store
	resolver   *identity.Resolver
	normalizer *normalize.Normalizer
	journal    state.Journal

	// newFetcher builds the per-run fetch stack. The run owns the
	// returned fetcher and closes it on every exit path.
	newFetcher func() (fetch.Fetcher, error)

	// onListing, when set, observes every persisted listing. Called on
	// the run goroutine after the upsert commits.
	onListing func(outcome store.Outcome, listing *normalize.Listing)

	mu           sync.Mutex
	closed       bool
	activeCancel context.CancelFunc
	wg           sync.WaitGroup
}

// New creates a pipeline from configuration and options.
func New(cfg *Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Pipeline{config: cfg}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.log == nil {
		level := logger.WarnLevel
		if cfg.Verbose {
			level = logger.InfoLevel
		}
		if cfg.Debug {
			level = logger.DebugLevel
		}
		p.log = logger.New(logger.Config{
			Level:     level,
			Pretty:    true,
			Component: "pipeline",
		})
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}

	if p.store == nil {
		s, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		p.store = s
	}
	if cfg.Storage.Seed {
		if err := p.store.Seed(context.Background()); err != nil {
			p.store.Close()
			return nil, fmt.Errorf("failed to seed store: %w", err)
		}
	}
	p.resolver = identity.New(p.store)
	p.normalizer = normalize.New(cfg.Source)

	if p.journal == nil {
		if cfg.State.JournalPath != "" {
			j, err := state.NewBoltJournal(cfg.State.JournalPath)
			if err != nil {
				p.store.Close()
				return nil, fmt.Errorf("failed to open run journal: %w", err)
			}
			p.journal = j
		} else {
			p.journal = state.NewMemoryJournal()
		}
	}

	p.registry = registry.New(p.journal, cfg.State.Retention, p.log)

	if p.newFetcher == nil {
		p.newFetcher = p.defaultFetcherFactory
	}

	return p, nil
}

// defaultFetcherFactory launches a browser session and wraps it in the
// configured fetch stack.
func (p *Pipeline) defaultFetcherFactory() (fetch.Fetcher, error) {
	session, err := browser.New(p.config.Browser)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	limiter := ratelimit.NewSourceLimiter(p.config.RateLimit.DelayMin, p.config.RateLimit.DelayMax)
	retrier := scrapeerrors.NewRetrier(scrapeerrors.RetryConfig{
		MaxRetries:   p.config.Retry.MaxRetries,
		InitialDelay: p.config.Retry.InitialDelay,
		MaxDelay:     p.config.Retry.MaxDelay,
		Multiplier:   p.config.Retry.Multiplier,
		Jitter:       p.config.Retry.Jitter,
		RetryableKinds: []scrapeerrors.ErrorKind{
			scrapeerrors.Timeout,
			scrapeerrors.HTTPError,
		},
	})

	fetcher, err := fetch.NewBrowserFetcher(p.config.Fetch, session, limiter, retrier, p.log, p.metrics)
	if err != nil {
		session.Close()
		return nil, err
	}
	return fetcher, nil
}

// Start admits a new run and launches its orchestrator goroutine.
// maxPages <= 0 selects the configured default.
func (p *Pipeline) Start(maxPages int) (registry.RunSnapshot, error) {
	if maxPages <= 0 {
		maxPages = p.config.MaxPages
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return registry.RunSnapshot{}, fmt.Errorf("pipeline is closed")
	}
	run, err := p.registry.Start(maxPages)
	if err != nil {
		p.mu.Unlock()
		return registry.RunSnapshot{}, err
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go p.execute(run)
	return run.Snapshot(), nil
}

// Status returns a snapshot of the identified run.
func (p *Pipeline) Status(runID string) (registry.RunSnapshot, error) {
	return p.registry.Status(runID)
}

// List returns retained runs, newest first.
func (p *Pipeline) List() []registry.RunListItem {
	return p.registry.List()
}

// Cancel requests cooperative cancellation of a run.
func (p *Pipeline) Cancel(runID string) error {
	return p.registry.Cancel(runID)
}

// Active returns a snapshot of the in-flight run, if any.
func (p *Pipeline) Active() (registry.RunSnapshot, bool) {
	run := p.registry.Active()
	if run == nil {
		return registry.RunSnapshot{}, false
	}
	return run.Snapshot(), true
}

// Metrics exposes the pipeline's collector.
func (p *Pipeline) Metrics() *metrics.Collector {
	return p.metrics
}

// Store exposes the listing store for read-side consumers.
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// Close cancels any active run, waits for it to finish, and releases
// storage. The pipeline accepts no further runs.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.activeCancel
	p.mu.Unlock()

	if run := p.registry.Active(); run != nil {
		_ = p.registry.Cancel(run.ID())
	}
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	var firstErr error
	if err := p.journal.Close(); err != nil {
		firstErr = err
	}
	if err := p.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (p *Pipeline) setActiveCancel(cancel context.CancelFunc) {
	p.mu.Lock()
	p.activeCancel = cancel
	p.mu.Unlock()
}
