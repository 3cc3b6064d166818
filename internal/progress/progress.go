// Package progress renders a terminal progress line for scrape runs.
package progress

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Display manages the progress line while a run is polled.
type Display struct {
	mu      sync.Mutex
	started bool
	stopped bool

	// Counters
	pagesDone atomic.Int64
	maxPages  atomic.Int64
	created   atomic.Int64
	updated   atomic.Int64
	unchanged atomic.Int64
	errors    atomic.Int64
	total     atomic.Int64

	// Timing
	startTime time.Time
	source    string

	// Display
	lastLine string
}

// New creates a new progress display.
func New() *Display {
	return &Display{}
}

// Start begins the progress display.
func (d *Display) Start(source string, maxPages int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.startTime = time.Now()
	d.source = source
	d.maxPages.Store(int64(maxPages))
}

// Update redraws the progress line with the latest run counters.
func (d *Display) Update(pagesDone, created, updated, unchanged, errors, total int) {
	d.pagesDone.Store(int64(pagesDone))
	d.created.Store(int64(created))
	d.updated.Store(int64(updated))
	d.unchanged.Store(int64(unchanged))
	d.errors.Store(int64(errors))
	d.total.Store(int64(total))

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	maxPages := int(d.maxPages.Load())
	if maxPages < 1 {
		maxPages = 1
	}

	progress := int(float64(pagesDone) / float64(maxPages) * 100)
	if progress > 100 {
		progress = 100
	}

	// Listings per minute
	elapsed := time.Since(d.startTime)
	speed := float64(0)
	if elapsed.Minutes() > 0 {
		speed = float64(total) / elapsed.Minutes()
	}

	// Build progress bar
	barWidth := 30
	filled := int(float64(progress) / 100 * float64(barWidth))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	// Build status line
	line := fmt.Sprintf("\r[%s] %3d%% | Page %d/%d | New: %d | Updated: %d | Errors: %d | %.1f l/m | %s",
		bar, progress, pagesDone, maxPages, created, updated, errors, speed, formatDuration(elapsed))

	// Clear previous line and print new one
	if len(line) < len(d.lastLine) {
		fmt.Fprint(os.Stderr, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(os.Stderr, line)
	d.lastLine = line
}

// Stop stops the progress display.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true

	// Print newline to move past progress line
	fmt.Fprintln(os.Stderr)
}

// PrintSummary prints the final run summary.
func (d *Display) PrintSummary(status, message string) {
	duration := time.Since(d.startTime)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        Scrape Complete                        ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Source:           %s\n", d.source)
	fmt.Printf("  Status:           %s\n", status)
	if message != "" {
		fmt.Printf("  Message:          %s\n", truncate(message, 50))
	}
	fmt.Printf("  Duration:         %s\n", formatDuration(duration))
	fmt.Printf("  Pages:            %d/%d\n", d.pagesDone.Load(), d.maxPages.Load())
	fmt.Printf("  Created:          %d\n", d.created.Load())
	fmt.Printf("  Updated:          %d\n", d.updated.Load())
	fmt.Printf("  Unchanged:        %d\n", d.unchanged.Load())
	fmt.Printf("  Errors:           %d\n", d.errors.Load())
	fmt.Printf("  Total Listings:   %d\n", d.total.Load())
	fmt.Println()

	if duration.Minutes() > 0 {
		perMinute := float64(d.total.Load()) / duration.Minutes()
		fmt.Printf("  Average Speed:    %.1f listings/min\n", perMinute)
		fmt.Println()
	}
}

// Counters returns the last counters pushed to the display.
func (d *Display) Counters() (pagesDone, created, updated, unchanged, errors, total int64) {
	return d.pagesDone.Load(),
		d.created.Load(),
		d.updated.Load(),
		d.unchanged.Load(),
		d.errors.Load(),
		d.total.Load()
}

// truncate shortens a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
