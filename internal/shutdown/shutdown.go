// Package shutdown coordinates graceful teardown of the scrape service.
//
// A Handler listens for termination signals and runs registered release
// callbacks in reverse registration order, so the HTTP listener stops
// accepting requests before the pipeline and its stores are closed.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Callback releases one component during shutdown. The context carries
// the shutdown deadline; a callback that outlives it is abandoned.
type Callback func(ctx context.Context) error

// Config holds shutdown handler configuration.
type Config struct {
	// Timeout bounds the whole callback sequence.
	Timeout time.Duration

	// Signals that trigger shutdown. Defaults to SIGINT and SIGTERM.
	Signals []os.Signal

	// OnShutdownStart runs once when shutdown begins.
	OnShutdownStart func()

	// OnShutdownDone runs after all callbacks finished or timed out.
	OnShutdownDone func(elapsed time.Duration, errs []error)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler runs release callbacks when the process is asked to stop.
type Handler struct {
	mu sync.Mutex

	callbacks     []Callback
	callbackNames []string

	isShuttingDown atomic.Bool
	done           chan struct{}
	timeout        time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal

	onShutdownStart func()
	onShutdownDone  func(elapsed time.Duration, errs []error)
}

// New creates a shutdown handler and starts listening for signals.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Handler{
		done:            make(chan struct{}),
		timeout:         cfg.Timeout,
		ctx:             ctx,
		cancel:          cancel,
		sigChan:         make(chan os.Signal, 1),
		onShutdownStart: cfg.OnShutdownStart,
		onShutdownDone:  cfg.OnShutdownDone,
	}

	signal.Notify(h.sigChan, cfg.Signals...)

	return h
}

// NewDefault creates a handler with default configuration.
func NewDefault() *Handler {
	return New(DefaultConfig())
}

// Register adds a named release callback. Callbacks run in reverse
// registration order, so register components outermost last.
func (h *Handler) Register(name string, callback Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.callbacks = append(h.callbacks, callback)
	h.callbackNames = append(h.callbackNames, name)
}

// RegisterFunc registers a cleanup function that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// GracefulServer is anything that drains with a deadline, such as
// *http.Server.
type GracefulServer interface {
	Shutdown(ctx context.Context) error
}

// RegisterServer registers a GracefulServer for shutdown.
func (h *Handler) RegisterServer(name string, server GracefulServer) {
	h.Register(name, server.Shutdown)
}

// Context returns a context that is cancelled when shutdown begins.
// Long-running work should derive from it.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown reports whether shutdown has started.
func (h *Handler) IsShuttingDown() bool {
	return h.isShuttingDown.Load()
}

// Done returns a channel that is closed when shutdown completes.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until a shutdown signal arrives, then runs shutdown.
func (h *Handler) Wait() {
	select {
	case <-h.sigChan:
		h.Shutdown()
	case <-h.ctx.Done():
		// Shutdown already started elsewhere.
	}
}

// WaitWithContext waits for a signal or context cancellation, then runs
// shutdown. Pairs with errgroup: cancelling the group context releases
// every registered component.
func (h *Handler) WaitWithContext(ctx context.Context) {
	select {
	case <-h.sigChan:
		h.Shutdown()
	case <-ctx.Done():
		h.Shutdown()
	case <-h.ctx.Done():
		// Shutdown already started elsewhere.
	}
}

// Shutdown runs the release sequence. Safe to call from any goroutine;
// only the first call executes callbacks, later calls return at once.
func (h *Handler) Shutdown() {
	if !h.isShuttingDown.CompareAndSwap(false, true) {
		return
	}

	start := time.Now()

	if h.onShutdownStart != nil {
		h.onShutdownStart()
	}

	// Stop in-flight work before releasing components.
	h.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), h.timeout)
	defer shutdownCancel()

	h.mu.Lock()
	callbacks := make([]Callback, len(h.callbacks))
	names := make([]string, len(h.callbackNames))
	copy(callbacks, h.callbacks)
	copy(names, h.callbackNames)
	h.mu.Unlock()

	// Reverse registration order: the HTTP listener registered last
	// drains first, then the pipeline underneath it.
	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := h.executeCallback(shutdownCtx, names[i], callbacks[i]); err != nil {
			errs = append(errs, err)
		}
	}

	elapsed := time.Since(start)

	if h.onShutdownDone != nil {
		h.onShutdownDone(elapsed, errs)
	}

	close(h.done)
}

// executeCallback runs one callback, abandoning it at the deadline.
func (h *Handler) executeCallback(ctx context.Context, name string, callback Callback) error {
	done := make(chan error, 1)

	go func() {
		done <- callback(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: name}
	}
}

// Trigger injects a termination signal, as if the process had received
// SIGTERM. Used for programmatic shutdown.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
		// Signal already pending.
	}
}

// TimeoutError is returned when a callback outlives the shutdown budget.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
