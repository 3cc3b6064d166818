// Package ratelimit provides request pacing for the scrape pipeline.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default pacing band between consecutive page navigations.
const (
	DefaultDelayMin = 2 * time.Second
	DefaultDelayMax = 5 * time.Second
)

// SourceLimiter paces page navigations against a single listings source.
// The delay between requests is randomized within [DelayMin, DelayMax] and
// measured from the end of the previous request, not its start: a slow page
// load must not eat into the think-time the source observes.
type SourceLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	delayMin time.Duration
	delayMax time.Duration
	lastDone time.Time
	rng      *rand.Rand

	// Adaptive scaling: repeated errors widen the band, sustained success
	// shrinks it back toward the configured values.
	scale        float64
	maxScale     float64
	errorCount   int
	successCount int
	windowSize   int
}

// NewSourceLimiter creates a limiter with the given pacing band.
func NewSourceLimiter(delayMin, delayMax time.Duration) *SourceLimiter {
	if delayMin < 0 {
		delayMin = 0
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	return &SourceLimiter{
		// Hard ceiling of one navigation per second regardless of band.
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		delayMin:   delayMin,
		delayMax:   delayMax,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		scale:      1.0,
		maxScale:   3.0,
		windowSize: 10,
	}
}

// NewDefaultSourceLimiter creates a limiter with the default 2-5s band.
func NewDefaultSourceLimiter() *SourceLimiter {
	return NewSourceLimiter(DefaultDelayMin, DefaultDelayMax)
}

// Wait blocks until the next navigation is allowed or the context is
// cancelled. The first request goes through without a band delay.
func (l *SourceLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	last := l.lastDone
	delay := l.nextDelayLocked()
	l.mu.Unlock()

	if !last.IsZero() {
		wakeAt := last.Add(delay)
		if wait := time.Until(wakeAt); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return l.limiter.Wait(ctx)
}

// MarkDone records the end of a request. Pacing for the next request is
// measured from this instant.
func (l *SourceLimiter) MarkDone() {
	l.mu.Lock()
	l.lastDone = time.Now()
	l.mu.Unlock()
}

// nextDelayLocked picks a randomized delay within the scaled band.
func (l *SourceLimiter) nextDelayLocked() time.Duration {
	base := l.delayMin
	if span := l.delayMax - l.delayMin; span > 0 {
		base += time.Duration(l.rng.Int63n(int64(span) + 1))
	}
	return time.Duration(float64(base) * l.scale)
}

// Allow checks if a navigation is allowed by the ceiling without blocking.
func (l *SourceLimiter) Allow() bool {
	return l.limiter.Allow()
}

// SetBand updates the pacing band.
func (l *SourceLimiter) SetBand(delayMin, delayMax time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if delayMin < 0 {
		delayMin = 0
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	l.delayMin = delayMin
	l.delayMax = delayMax
}

// SetRate updates the hard navigation ceiling.
func (l *SourceLimiter) SetRate(requestsPerSecond float64, burst int) {
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
	l.limiter.SetBurst(burst)
}

// RecordSuccess records a successful request.
func (l *SourceLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.successCount++
	l.checkAndAdjustLocked()
}

// RecordError records a failed request.
func (l *SourceLimiter) RecordError() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errorCount++
	l.checkAndAdjustLocked()
}

// checkAndAdjustLocked adjusts the band scale based on the error ratio.
func (l *SourceLimiter) checkAndAdjustLocked() {
	total := l.successCount + l.errorCount
	if total < l.windowSize {
		return
	}

	errorRate := float64(l.errorCount) / float64(total)

	if errorRate > 0.2 {
		// The source is pushing back, slow down
		l.scale = l.scale * 1.25
		if l.scale > l.maxScale {
			l.scale = l.maxScale
		}
	} else if errorRate == 0 {
		l.scale = l.scale * 0.9
		if l.scale < 1.0 {
			l.scale = 1.0
		}
	}

	// Reset counters
	l.successCount = 0
	l.errorCount = 0
}

// Scale returns the current band scale factor.
func (l *SourceLimiter) Scale() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scale
}

// Stats returns limiter statistics.
func (l *SourceLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		DelayMin: l.delayMin,
		DelayMax: l.delayMax,
		Scale:    l.scale,
		LastDone: l.lastDone,
	}
}

// LimiterStats contains limiter statistics.
type LimiterStats struct {
	DelayMin time.Duration `json:"delay_min"`
	DelayMax time.Duration `json:"delay_max"`
	Scale    float64       `json:"scale"`
	LastDone time.Time     `json:"last_done"`
}
