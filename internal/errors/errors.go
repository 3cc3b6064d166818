// Package errors provides error types and retry handling for the scrape pipeline.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorKind categorizes fetch and pipeline errors for handling decisions.
type ErrorKind int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorKind = iota
	// Timeout represents navigation or request timeouts.
	Timeout
	// Blocked represents bot detection: captcha, access denied, challenge pages.
	Blocked
	// HTTPError represents non-2xx HTTP responses.
	HTTPError
	// ParseError represents extraction failures (missing DOM structure, bad markup).
	ParseError
	// Validation represents a field value that failed normalization.
	Validation
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Blocked:
		return "blocked"
	case HTTPError:
		return "http_error"
	case ParseError:
		return "parse_error"
	case Validation:
		return "validation"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable returns whether errors of this kind are retryable by default.
// HTTPError retryability depends on the status code; constructors refine it.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case Timeout, HTTPError:
		return true
	default:
		return false
	}
}

// ScrapeError represents a categorized pipeline error.
type ScrapeError struct {
	Kind       ErrorKind
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Retryable  bool
}

// Error implements the error interface.
func (e *ScrapeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Kind.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Kind.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScrapeError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target.
func (e *ScrapeError) Is(target error) bool {
	t, ok := target.(*ScrapeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(kind ErrorKind, url, operation, message string, cause error) *ScrapeError {
	return &ScrapeError{
		Kind:      kind,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: kind.IsRetryable(),
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *ScrapeError {
	return NewScrapeError(Timeout, url, operation, "navigation timed out", cause)
}

// NewBlockedError creates a blocked error. Blocked pages are never retried:
// retrying into a block wastes the attempt budget and worsens detection.
func NewBlockedError(url, reason string) *ScrapeError {
	err := NewScrapeError(Blocked, url, "fetch", reason, nil)
	err.Retryable = false
	return err
}

// NewHTTPError creates an HTTP status error. 5xx, 408 and 429 are retryable.
func NewHTTPError(url string, statusCode int) *ScrapeError {
	message := fmt.Sprintf("server returned %d", statusCode)
	if statusCode >= 400 && statusCode < 500 {
		message = fmt.Sprintf("client error %d", statusCode)
	}
	err := NewScrapeError(HTTPError, url, "fetch", message, nil)
	err.StatusCode = statusCode
	err.Retryable = IsRetryableStatus(statusCode)
	return err
}

// NewParseError creates a parse error. The fetch layer retries it once for
// transient DOM timing, then treats the page as skipped.
func NewParseError(url, operation string, cause error) *ScrapeError {
	err := NewScrapeError(ParseError, url, operation, "extraction failed", cause)
	err.Retryable = false
	return err
}

// NewValidationError creates a field validation error.
func NewValidationError(field, message string) *ScrapeError {
	err := NewScrapeError(Validation, "", field, message, nil)
	err.Retryable = false
	return err
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *ScrapeError {
	err := NewScrapeError(Cancelled, url, operation, "operation cancelled", nil)
	err.Retryable = false
	return err
}

// Categorize determines the error kind from a generic error.
func Categorize(err error, url string) *ScrapeError {
	if err == nil {
		return nil
	}

	// Already a ScrapeError
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr
	}

	// Check for context cancellation
	if errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "context canceled") {
		return NewCancelledError(url, "fetch")
	}

	// Check for timeout
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return NewTimeoutError(url, "fetch", err)
	}

	// Connection-level failures surface as retryable HTTP errors with no status
	if isNetworkError(err) {
		netErr := NewScrapeError(HTTPError, url, "fetch", "network failure", err)
		netErr.Retryable = true
		return netErr
	}

	// Default to unknown
	return NewScrapeError(Unknown, url, "fetch", err.Error(), err)
}

// CategorizeHTTPStatus creates an error from an HTTP status code.
// 403 is treated as a block: the source refusing service, not a plain client error.
func CategorizeHTTPStatus(statusCode int, url string) *ScrapeError {
	switch {
	case statusCode == 403:
		err := NewBlockedError(url, "access denied")
		err.StatusCode = statusCode
		return err
	case statusCode >= 400:
		return NewHTTPError(url, statusCode)
	default:
		return nil
	}
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == 408 || statusCode == 429
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	// Check for net.Error timeout
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Check error message
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	// Check for specific network errors
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// Check for syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// Check error message
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Retryable
	}

	// Check for temporary errors
	var tempErr interface{ Temporary() bool }
	if errors.As(err, &tempErr) && tempErr.Temporary() {
		return true
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsBlocked checks if an error is a bot-detection block.
func IsBlocked(err error) bool {
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Kind == Blocked
	}
	return false
}

// IsParseError checks if an error is an extraction failure.
func IsParseError(err error) bool {
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Kind == ParseError
	}
	return false
}

// IsValidation checks if an error is a field validation failure.
func IsValidation(err error) bool {
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Kind == Validation
	}
	return false
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.StatusCode
	}
	return 0
}

// GetErrorKind extracts the error kind from an error.
func GetErrorKind(err error) ErrorKind {
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Kind
	}
	return Unknown
}
