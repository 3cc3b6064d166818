package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

// =============================================================================
// ErrorKind Tests
// =============================================================================

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{Unknown, "unknown"},
		{Timeout, "timeout"},
		{Blocked, "blocked"},
		{HTTPError, "http_error"},
		{ParseError, "parse_error"},
		{Validation, "validation"},
		{Cancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKind_IsRetryable(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
	}{
		{Timeout, true},
		{HTTPError, true},
		{Blocked, false},
		{ParseError, false},
		{Validation, false},
		{Cancelled, false},
		{Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

// =============================================================================
// ScrapeError Tests
// =============================================================================

func TestScrapeError_Error(t *testing.T) {
	err := NewScrapeError(Timeout, "https://example.com", "fetch", "navigation timed out", nil)

	errStr := err.Error()
	if errStr == "" {
		t.Error("Error() should not return empty string")
	}
	if !containsAll(errStr, "timeout", "fetch", "https://example.com", "navigation timed out") {
		t.Errorf("Error() = %s, should contain relevant info", errStr)
	}
}

func TestScrapeError_Error_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewScrapeError(Timeout, "https://example.com", "fetch", "navigation timed out", cause)

	errStr := err.Error()
	if !containsAll(errStr, "underlying error") {
		t.Errorf("Error() = %s, should contain cause", errStr)
	}
}

func TestScrapeError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewScrapeError(Timeout, "https://example.com", "fetch", "failed", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
}

func TestScrapeError_Is(t *testing.T) {
	err1 := NewScrapeError(Timeout, "https://example.com", "fetch", "failed", nil)
	err2 := NewScrapeError(Timeout, "https://other.com", "navigate", "timed out", nil)
	err3 := NewScrapeError(Blocked, "https://example.com", "fetch", "captcha", nil)

	if !errors.Is(err1, err2) {
		t.Error("Errors with same kind should match")
	}
	if errors.Is(err1, err3) {
		t.Error("Errors with different kinds should not match")
	}
}

// =============================================================================
// Error Constructor Tests
// =============================================================================

func TestNewTimeoutError(t *testing.T) {
	err := NewTimeoutError("https://example.com", "navigate", nil)

	if err.Kind != Timeout {
		t.Errorf("Kind = %v, want Timeout", err.Kind)
	}
	if !err.Retryable {
		t.Error("Timeout errors should be retryable")
	}
}

func TestNewBlockedError(t *testing.T) {
	err := NewBlockedError("https://example.com", "captcha page detected")

	if err.Kind != Blocked {
		t.Errorf("Kind = %v, want Blocked", err.Kind)
	}
	if err.Retryable {
		t.Error("Blocked errors must never be retryable")
	}
}

func TestNewHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{500, true},
		{502, true},
		{503, true},
		{408, true},
		{429, true},
		{404, false},
		{400, false},
		{410, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			err := NewHTTPError("https://example.com", tt.status)
			if err.Kind != HTTPError {
				t.Errorf("Kind = %v, want HTTPError", err.Kind)
			}
			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.status)
			}
			if err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.retryable)
			}
		})
	}
}

func TestNewParseError(t *testing.T) {
	err := NewParseError("https://example.com", "extract_listings", nil)

	if err.Kind != ParseError {
		t.Errorf("Kind = %v, want ParseError", err.Kind)
	}
	if err.Retryable {
		t.Error("Parse errors should not be retryable by the backoff loop")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("year", "out of range: 1850")

	if err.Kind != Validation {
		t.Errorf("Kind = %v, want Validation", err.Kind)
	}
	if err.Retryable {
		t.Error("Validation errors should not be retryable")
	}
	if !containsAll(err.Error(), "year", "out of range") {
		t.Errorf("Error() = %s, should name the field and reason", err.Error())
	}
}

func TestNewCancelledError(t *testing.T) {
	err := NewCancelledError("https://example.com", "fetch")

	if err.Kind != Cancelled {
		t.Errorf("Kind = %v, want Cancelled", err.Kind)
	}
	if err.Retryable {
		t.Error("Cancelled errors should not be retryable")
	}
}

// =============================================================================
// Categorize Tests
// =============================================================================

func TestCategorize_ScrapeError(t *testing.T) {
	original := NewTimeoutError("https://example.com", "fetch", nil)
	categorized := Categorize(original, "https://example.com")

	if categorized != original {
		t.Error("Should return same ScrapeError")
	}
}

func TestCategorize_Nil(t *testing.T) {
	categorized := Categorize(nil, "https://example.com")

	if categorized != nil {
		t.Error("Should return nil for nil error")
	}
}

func TestCategorize_ContextCanceled(t *testing.T) {
	categorized := Categorize(context.Canceled, "https://example.com")

	if categorized.Kind != Cancelled {
		t.Errorf("Kind = %v, want Cancelled", categorized.Kind)
	}
}

func TestCategorize_DeadlineExceeded(t *testing.T) {
	categorized := Categorize(context.DeadlineExceeded, "https://example.com")

	if categorized.Kind != Timeout {
		t.Errorf("Kind = %v, want Timeout", categorized.Kind)
	}
}

func TestCategorize_NetError(t *testing.T) {
	categorized := Categorize(&net.DNSError{Err: "no such host", Name: "example.com"}, "https://example.com")

	if categorized.Kind != HTTPError {
		t.Errorf("Kind = %v, want HTTPError", categorized.Kind)
	}
	if !categorized.Retryable {
		t.Error("Connection-level failures should be retryable")
	}
}

func TestCategorize_Unknown(t *testing.T) {
	err := errors.New("some random error")
	categorized := Categorize(err, "https://example.com")

	if categorized.Kind != Unknown {
		t.Errorf("Kind = %v, want Unknown", categorized.Kind)
	}
}

// =============================================================================
// CategorizeHTTPStatus Tests
// =============================================================================

func TestCategorizeHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantKind  ErrorKind
		wantNil   bool
		retryable bool
	}{
		{200, Unknown, true, false},
		{201, Unknown, true, false},
		{301, Unknown, true, false},
		{403, Blocked, false, false},
		{404, HTTPError, false, false},
		{408, HTTPError, false, true},
		{429, HTTPError, false, true},
		{400, HTTPError, false, false},
		{500, HTTPError, false, true},
		{502, HTTPError, false, true},
		{503, HTTPError, false, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			err := CategorizeHTTPStatus(tt.status, "https://example.com")
			if tt.wantNil {
				if err != nil {
					t.Errorf("CategorizeHTTPStatus(%d) should return nil", tt.status)
				}
				return
			}
			if err == nil {
				t.Errorf("CategorizeHTTPStatus(%d) should not return nil", tt.status)
				return
			}
			if err.Kind != tt.wantKind {
				t.Errorf("CategorizeHTTPStatus(%d).Kind = %v, want %v", tt.status, err.Kind, tt.wantKind)
			}
			if err.Retryable != tt.retryable {
				t.Errorf("CategorizeHTTPStatus(%d).Retryable = %v, want %v", tt.status, err.Retryable, tt.retryable)
			}
			if err.StatusCode != tt.status {
				t.Errorf("CategorizeHTTPStatus(%d).StatusCode = %d", tt.status, err.StatusCode)
			}
		})
	}
}

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{408, 429, 500, 501, 502, 503, 504}
	for _, status := range retryable {
		if !IsRetryableStatus(status) {
			t.Errorf("IsRetryableStatus(%d) = false, want true", status)
		}
	}

	notRetryable := []int{200, 301, 400, 401, 404, 410}
	for _, status := range notRetryable {
		if IsRetryableStatus(status) {
			t.Errorf("IsRetryableStatus(%d) = true, want false", status)
		}
	}
}

// =============================================================================
// Helper Function Tests
// =============================================================================

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"timeout error", NewTimeoutError("url", "op", nil), true},
		{"server error", NewHTTPError("url", 503), true},
		{"client error", NewHTTPError("url", 404), false},
		{"blocked", NewBlockedError("url", "captcha"), false},
		{"parse error", NewParseError("url", "op", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestIsBlocked(t *testing.T) {
	blockedErr := NewBlockedError("url", "access denied")
	timeoutErr := NewTimeoutError("url", "op", nil)

	if !IsBlocked(blockedErr) {
		t.Error("Should identify blocked error")
	}
	if IsBlocked(timeoutErr) {
		t.Error("Should not identify timeout error as blocked")
	}
	if IsBlocked(nil) {
		t.Error("Should return false for nil")
	}
}

func TestIsParseError(t *testing.T) {
	parseErr := NewParseError("url", "extract", nil)
	timeoutErr := NewTimeoutError("url", "op", nil)

	if !IsParseError(parseErr) {
		t.Error("Should identify parse error")
	}
	if IsParseError(timeoutErr) {
		t.Error("Should not identify timeout error as parse error")
	}
}

func TestIsValidation(t *testing.T) {
	validationErr := NewValidationError("price", "negative value")
	parseErr := NewParseError("url", "extract", nil)

	if !IsValidation(validationErr) {
		t.Error("Should identify validation error")
	}
	if IsValidation(parseErr) {
		t.Error("Should not identify parse error as validation")
	}
}

func TestGetStatusCode(t *testing.T) {
	err := NewHTTPError("url", 503)

	if code := GetStatusCode(err); code != 503 {
		t.Errorf("GetStatusCode() = %d, want 503", code)
	}
	if code := GetStatusCode(nil); code != 0 {
		t.Errorf("GetStatusCode(nil) = %d, want 0", code)
	}
}

func TestGetErrorKind(t *testing.T) {
	err := NewTimeoutError("url", "op", nil)

	if kind := GetErrorKind(err); kind != Timeout {
		t.Errorf("GetErrorKind() = %v, want Timeout", kind)
	}
	if kind := GetErrorKind(nil); kind != Unknown {
		t.Errorf("GetErrorKind(nil) = %v, want Unknown", kind)
	}
}

// =============================================================================
// Retry Tests
// =============================================================================

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 500*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 500ms", cfg.InitialDelay)
	}
	if len(cfg.RetryableKinds) == 0 {
		t.Error("RetryableKinds should not be empty")
	}
}

func TestRetrier_Do_Success(t *testing.T) {
	r := NewDefaultRetrier()
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		return nil
	})

	if !result.Success {
		t.Error("Should succeed")
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if calls != 1 {
		t.Errorf("Function called %d times, want 1", calls)
	}
}

func TestRetrier_Do_RetryOnError(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     2,
		InitialDelay:   1 * time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		RetryableKinds: []ErrorKind{HTTPError},
	})

	calls := 0
	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewHTTPError("url", 503)
		}
		return nil
	})

	if !result.Success {
		t.Error("Should succeed after retries")
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     2,
		InitialDelay:   1 * time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		RetryableKinds: []ErrorKind{HTTPError},
	})

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		return NewHTTPError("url", 502)
	})

	if result.Success {
		t.Error("Should fail after max retries")
	}
	if result.Attempts != 3 { // 1 initial + 2 retries
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if result.LastError == nil {
		t.Error("LastError should be set")
	}
}

func TestRetrier_Do_NoRetryForNonRetryable(t *testing.T) {
	r := NewDefaultRetrier()
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		return NewHTTPError("url", 404) // Not retryable
	})

	if result.Success {
		t.Error("Should fail")
	}
	if calls != 1 {
		t.Errorf("Function called %d times, want 1 (no retry)", calls)
	}
}

func TestRetrier_Do_NeverRetriesBlocked(t *testing.T) {
	r := NewDefaultRetrier()
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context) error {
		calls++
		return NewBlockedError("url", "captcha page detected")
	})

	if result.Success {
		t.Error("Should fail")
	}
	if calls != 1 {
		t.Errorf("Function called %d times, want 1 (blocked is never retried)", calls)
	}
	if !IsBlocked(result.LastError) {
		t.Errorf("LastError = %v, want blocked", result.LastError)
	}
}

func TestRetrier_Do_ContextCancellation(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     5,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       1 * time.Second,
		Multiplier:     2.0,
		RetryableKinds: []ErrorKind{HTTPError},
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result := r.Do(ctx, "test", "url", func(ctx context.Context) error {
		calls++
		return NewHTTPError("url", 503)
	})

	if result.Success {
		t.Error("Should fail on cancellation")
	}
	if result.LastError == nil {
		t.Error("LastError should be set")
	}
}

func TestDoWithResult(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxRetries:     2,
		InitialDelay:   1 * time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		RetryableKinds: []ErrorKind{HTTPError},
	})

	calls := 0
	value, result := DoWithResult(context.Background(), r, "test", "url", func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, NewHTTPError("url", 503)
		}
		return 42, nil
	})

	if !result.Success {
		t.Error("Should succeed after retry")
	}
	if value != 42 {
		t.Errorf("value = %d, want 42", value)
	}
}

func TestBackoffDuration(t *testing.T) {
	tests := []struct {
		attempt    int
		initial    time.Duration
		max        time.Duration
		multiplier float64
		want       time.Duration
	}{
		{0, time.Second, 10 * time.Second, 2.0, time.Second},
		{1, time.Second, 10 * time.Second, 2.0, time.Second},
		{2, time.Second, 10 * time.Second, 2.0, 2 * time.Second},
		{3, time.Second, 10 * time.Second, 2.0, 4 * time.Second},
		{4, time.Second, 10 * time.Second, 2.0, 8 * time.Second},
		{5, time.Second, 10 * time.Second, 2.0, 10 * time.Second}, // Capped at max
	}

	for _, tt := range tests {
		got := BackoffDuration(tt.attempt, tt.initial, tt.max, tt.multiplier)
		if got != tt.want {
			t.Errorf("BackoffDuration(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	delays := ExponentialBackoff(5, time.Second, 10*time.Second, 2.0)

	if len(delays) != 5 {
		t.Errorf("len(delays) = %d, want 5", len(delays))
	}

	expected := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second, // Capped
	}

	for i, d := range delays {
		if d != expected[i] {
			t.Errorf("delays[%d] = %v, want %v", i, d, expected[i])
		}
	}
}

// Helper function
func containsAll(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsAt(s, substr))
}

func containsAt(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Mock net.Error for testing
type mockNetError struct {
	timeout   bool
	temporary bool
}

func (e *mockNetError) Error() string   { return "mock net error" }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return e.temporary }

var _ net.Error = (*mockNetError)(nil)
