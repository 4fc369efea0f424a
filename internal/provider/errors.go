package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidInput indicates the request was rejected by local validation
// before any network call was made. Never retryable.
var ErrInvalidInput = errors.New("invalid input")

// UnavailableKind classifies why the provider could not serve a request.
// Callers react differently per kind: rate-limited calls may retry after
// the provider-supplied delay, auth failures are fatal and must not retry,
// transient failures are safe to retry on the next turn.
type UnavailableKind int

const (
	// KindTransient covers network errors, timeouts, and 5xx responses.
	KindTransient UnavailableKind = iota
	// KindRateLimited covers 429 responses.
	KindRateLimited
	// KindAuth covers 401/403 responses. Non-retryable.
	KindAuth
)

// String returns the string representation of the kind.
func (k UnavailableKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// UnavailableError is returned when the provider cannot serve a request.
// Check with errors.As:
//
//	var ue *provider.UnavailableError
//	if errors.As(err, &ue) && ue.Kind == provider.KindRateLimited {
//	    time.Sleep(ue.RetryAfter)
//	}
type UnavailableError struct {
	Kind       UnavailableKind
	StatusCode int           // HTTP status, 0 for network-level failures
	RetryAfter time.Duration // Provider-supplied delay, 0 if absent
	Err        error         // Underlying cause, may be nil
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("provider unavailable (%s", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a provider availability failure,
// returning the typed error when it is.
func IsUnavailable(err error) (*UnavailableError, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// normalizeStatus maps an HTTP response status to a typed error.
// Returns nil for 2xx.
func normalizeStatus(status int, retryAfter string) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusTooManyRequests:
		return &UnavailableError{
			Kind:       KindRateLimited,
			StatusCode: status,
			RetryAfter: parseRetryAfter(retryAfter),
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &UnavailableError{Kind: KindAuth, StatusCode: status}
	case status >= 400 && status <= 499:
		// Client errors other than auth/rate mean we built a bad request.
		return fmt.Errorf("%w: provider rejected request with status %d", ErrInvalidInput, status)
	default:
		return &UnavailableError{Kind: KindTransient, StatusCode: status}
	}
}

// normalizeNetworkError maps transport-level errors to typed errors.
// Context cancellation is passed through untouched so callers can
// distinguish caller-initiated aborts from provider failures.
func normalizeNetworkError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UnavailableError{Kind: KindTransient, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &UnavailableError{Kind: KindTransient, Err: err}
	}
	return &UnavailableError{Kind: KindTransient, Err: err}
}

// parseRetryAfter parses a Retry-After header value in seconds.
// Returns a conservative default when the header is absent or malformed.
func parseRetryAfter(retryAfter string) time.Duration {
	const fallback = 500 * time.Millisecond
	s := strings.TrimSpace(retryAfter)
	if s == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(s)
	if err != nil || seconds < 1 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
