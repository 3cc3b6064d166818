package pipeline

import (
	"time"

	"github.com/motorscan/motorscan/internal/fetch"
	"github.com/motorscan/motorscan/internal/logger"
	"github.com/motorscan/motorscan/internal/metrics"
	"github.com/motorscan/motorscan/internal/normalize"
	"github.com/motorscan/motorscan/internal/state"
	"github.com/motorscan/motorscan/internal/store"
)

// Option is a functional option for configuring the Pipeline.
type Option func(*Pipeline) error

// WithSource sets the listing source identifier.
func WithSource(source string) Option {
	return func(p *Pipeline) error {
		p.config.Source = source
		return nil
	}
}

// WithMaxPages sets the default page ceiling for runs.
func WithMaxPages(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.config.MaxPages = n
		return nil
	}
}

// WithRunTimeout sets the wall-clock ceiling for a single run.
func WithRunTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.config.RunTimeout = d
		return nil
	}
}

// WithRateLimit sets the delay band between page fetches.
func WithRateLimit(min, max time.Duration) Option {
	return func(p *Pipeline) error {
		p.config.RateLimit.DelayMin = min
		p.config.RateLimit.DelayMax = max
		return nil
	}
}

// WithMaxRetries sets the retry budget for transient fetch failures.
func WithMaxRetries(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			n = 0
		}
		p.config.Retry.MaxRetries = n
		return nil
	}
}

// WithHeadless enables/disables headless browser mode.
func WithHeadless(headless bool) Option {
	return func(p *Pipeline) error {
		p.config.Browser.Headless = headless
		return nil
	}
}

// WithUserAgent sets a fixed user agent string.
func WithUserAgent(ua string) Option {
	return func(p *Pipeline) error {
		p.config.Browser.UserAgents = []string{ua}
		return nil
	}
}

// WithStoragePath sets the listing database path.
func WithStoragePath(path string) Option {
	return func(p *Pipeline) error {
		p.config.Storage.Path = path
		return nil
	}
}

// WithSeed enables/disables seeding of the brand and model catalog.
func WithSeed(seed bool) Option {
	return func(p *Pipeline) error {
		p.config.Storage.Seed = seed
		return nil
	}
}

// WithJournalPath sets the run journal path. Empty keeps the journal
// in memory.
func WithJournalPath(path string) Option {
	return func(p *Pipeline) error {
		p.config.State.JournalPath = path
		return nil
	}
}

// WithRetention sets how many finished runs the registry retains.
func WithRetention(n int) Option {
	return func(p *Pipeline) error {
		p.config.State.Retention = n
		return nil
	}
}

// WithVerbose enables/disables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(p *Pipeline) error {
		p.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables/disables debug mode.
func WithDebug(debug bool) Option {
	return func(p *Pipeline) error {
		p.config.Debug = debug
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) error {
		p.log = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithJournal sets a custom run journal.
func WithJournal(j state.Journal) Option {
	return func(p *Pipeline) error {
		p.journal = j
		return nil
	}
}

// WithStore sets a pre-opened listing store. The pipeline takes
// ownership and closes it on Close.
func WithStore(s *store.Store) Option {
	return func(p *Pipeline) error {
		p.store = s
		return nil
	}
}

// WithFetcherFactory sets the factory that builds the per-run fetch
// stack, replacing the browser-backed default.
func WithFetcherFactory(fn func() (fetch.Fetcher, error)) Option {
	return func(p *Pipeline) error {
		p.newFetcher = fn
		return nil
	}
}

// WithFetcher sets a fixed fetcher reused for every run. The fetcher's
// Close is still invoked after each run.
func WithFetcher(f fetch.Fetcher) Option {
	return func(p *Pipeline) error {
		p.newFetcher = func() (fetch.Fetcher, error) {
			return f, nil
		}
		return nil
	}
}

// WithListingSink registers an observer for every persisted listing,
// e.g. a streaming output writer.
func WithListingSink(fn func(outcome store.Outcome, listing *normalize.Listing)) Option {
	return func(p *Pipeline) error {
		p.onListing = fn
		return nil
	}
}
