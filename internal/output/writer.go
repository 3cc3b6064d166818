// Package output formats run reports and listing exports.
package output

import (
	"io"

	"github.com/motorscan/motorscan/internal/normalize"
)

// Writer defines the interface for run output writers.
type Writer interface {
	// WriteReport writes the complete run report
	WriteReport(report *RunReport) error

	// WriteListing writes a single upserted listing (for streaming)
	WriteListing(outcome string, listing *normalize.Listing) error

	// WriteFailure writes a failure event (for streaming)
	WriteFailure(failure *ScrapeFailure) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format   string
	Pretty   bool
	Stream   bool
	FilePath string
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, config Config) Writer {
	switch config.Format {
	case "json":
		return NewJSONWriter(w, config.Pretty, config.Stream)
	default:
		return NewJSONWriter(w, config.Pretty, config.Stream)
	}
}
