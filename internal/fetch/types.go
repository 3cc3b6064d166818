// Package fetch retrieves result pages through a headless browser and
// extracts the raw listing fragments they contain.
package fetch

import (
	"context"
	"time"

	"github.com/motorscan/motorscan/internal/normalize"
)

// Page is one fetched result page with its extracted fragments.
type Page struct {
	Number      int // 1-based page number
	URL         string
	Fragments   []*normalize.RawFragment
	HasNext     bool
	StatusCode  int
	ElapsedTime time.Duration
}

// Fetcher retrieves result pages one at a time.
type Fetcher interface {
	// FetchPage fetches result page number and extracts its fragments.
	FetchPage(ctx context.Context, number int) (*Page, error)
	// Close releases the underlying browser session.
	Close() error
}
