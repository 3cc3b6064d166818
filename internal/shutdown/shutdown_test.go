package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	h := New(DefaultConfig())
	if h == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNewDefault(t *testing.T) {
	h := NewDefault()
	if h == nil {
		t.Fatal("NewDefault() returned nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if len(cfg.Signals) != 2 {
		t.Errorf("Signals length = %d, want 2", len(cfg.Signals))
	}
}

func TestHandler_Register(t *testing.T) {
	h := NewDefault()
	called := false

	h.Register("pipeline", func(ctx context.Context) error {
		called = true
		return nil
	})

	h.Shutdown()
	<-h.Done()

	if !called {
		t.Error("Callback was not called")
	}
}

func TestHandler_RegisterFunc(t *testing.T) {
	h := NewDefault()
	called := false

	h.RegisterFunc("progress", func() {
		called = true
	})

	h.Shutdown()
	<-h.Done()

	if !called {
		t.Error("Function was not called")
	}
}

func TestHandler_Context(t *testing.T) {
	h := NewDefault()
	ctx := h.Context()

	if ctx == nil {
		t.Fatal("Context() returned nil")
	}

	select {
	case <-ctx.Done():
		t.Error("Context should not be done before shutdown")
	default:
	}

	h.Shutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("Context should be done after shutdown")
	}
}

func TestHandler_IsShuttingDown(t *testing.T) {
	h := NewDefault()

	if h.IsShuttingDown() {
		t.Error("Should not be shutting down initially")
	}

	h.Shutdown()

	if !h.IsShuttingDown() {
		t.Error("Should be shutting down after Shutdown()")
	}
}

func TestHandler_Done(t *testing.T) {
	h := NewDefault()

	select {
	case <-h.Done():
		t.Error("Done channel should not be closed initially")
	default:
	}

	h.Shutdown()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Error("Done channel should be closed after shutdown")
	}
}

func TestHandler_Shutdown_ReverseOrder(t *testing.T) {
	h := NewDefault()
	order := make([]string, 0, 3)

	h.Register("store", func(ctx context.Context) error {
		order = append(order, "store")
		return nil
	})
	h.Register("pipeline", func(ctx context.Context) error {
		order = append(order, "pipeline")
		return nil
	})
	h.Register("http", func(ctx context.Context) error {
		order = append(order, "http")
		return nil
	})

	h.Shutdown()
	<-h.Done()

	// The listener registered last drains first, the store closes last.
	if len(order) != 3 {
		t.Fatalf("Expected 3 callbacks, got %d", len(order))
	}
	if order[0] != "http" || order[1] != "pipeline" || order[2] != "store" {
		t.Errorf("Order = %v, want [http pipeline store]", order)
	}
}

func TestHandler_Shutdown_MultipleCallsIdempotent(t *testing.T) {
	h := NewDefault()
	callCount := 0

	h.Register("pipeline", func(ctx context.Context) error {
		callCount++
		return nil
	})

	h.Shutdown()
	h.Shutdown()
	h.Shutdown()

	<-h.Done()

	if callCount != 1 {
		t.Errorf("Callback called %d times, want 1", callCount)
	}
}

func TestHandler_Shutdown_Hooks(t *testing.T) {
	startCalled := false
	doneCalled := false
	var doneElapsed time.Duration
	var doneErrs []error

	h := New(Config{
		Timeout: 5 * time.Second,
		OnShutdownStart: func() {
			startCalled = true
		},
		OnShutdownDone: func(elapsed time.Duration, errs []error) {
			doneCalled = true
			doneElapsed = elapsed
			doneErrs = errs
		},
	})

	h.Shutdown()
	<-h.Done()

	if !startCalled {
		t.Error("OnShutdownStart was not called")
	}
	if !doneCalled {
		t.Error("OnShutdownDone was not called")
	}
	if doneElapsed <= 0 {
		t.Error("Elapsed time should be positive")
	}
	if len(doneErrs) != 0 {
		t.Errorf("Expected no errors, got %v", doneErrs)
	}
}

func TestHandler_Shutdown_CollectsErrors(t *testing.T) {
	var doneErrs []error

	h := New(Config{
		Timeout: 5 * time.Second,
		OnShutdownDone: func(elapsed time.Duration, errs []error) {
			doneErrs = errs
		},
	})

	h.Register("journal", func(ctx context.Context) error {
		return errors.New("close failed")
	})

	h.Shutdown()
	<-h.Done()

	if len(doneErrs) != 1 {
		t.Errorf("Expected 1 error, got %d", len(doneErrs))
	}
}

func TestHandler_Trigger(t *testing.T) {
	h := NewDefault()

	go func() {
		time.Sleep(10 * time.Millisecond)
		h.Trigger()
	}()

	h.Wait()

	if !h.IsShuttingDown() {
		t.Error("Should be shutting down after Trigger()")
	}
}

func TestHandler_WaitWithContext(t *testing.T) {
	h := NewDefault()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	go h.WaitWithContext(ctx)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Error("Should shutdown after context timeout")
	}
}

func TestHandler_Timeout(t *testing.T) {
	h := New(Config{
		Timeout: 50 * time.Millisecond,
	})

	h.Register("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	start := time.Now()
	h.Shutdown()
	<-h.Done()
	elapsed := time.Since(start)

	if elapsed > 200*time.Millisecond {
		t.Errorf("Shutdown took %v, should timeout faster", elapsed)
	}
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{CallbackName: "browser"}

	if err.Error() != "shutdown callback timed out: browser" {
		t.Errorf("Error() = %s", err.Error())
	}
}

func TestHandler_RegisterServer(t *testing.T) {
	h := NewDefault()
	server := &mockServer{}

	h.RegisterServer("http", server)

	h.Shutdown()
	<-h.Done()

	if !server.shutdownCalled {
		t.Error("Server.Shutdown was not called")
	}
}

type mockServer struct {
	shutdownCalled bool
}

func (s *mockServer) Shutdown(ctx context.Context) error {
	s.shutdownCalled = true
	return nil
}

func TestHandler_Concurrent(t *testing.T) {
	h := NewDefault()
	var callCount atomic.Int64

	for i := 0; i < 10; i++ {
		h.Register("callback", func(ctx context.Context) error {
			callCount.Add(1)
			return nil
		})
	}

	for i := 0; i < 5; i++ {
		go h.Shutdown()
	}

	<-h.Done()

	if callCount.Load() != 10 {
		t.Errorf("CallCount = %d, want 10", callCount.Load())
	}
}
