package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// FromTransport classifies an error returned while talking to an external
// service. Deadline and network timeouts become UpstreamTimeout; anything
// else is returned unchanged.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(UpstreamTimeout, "upstream request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(UpstreamTimeout, "upstream request timed out", err)
	}
	return err
}

// StatusError is a non-2xx response from an external service. Err, when
// set, is the provider's own error and supplies the message.
type StatusError struct {
	Code int
	Body string
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

// FromStatus builds an error for a non-2xx upstream response. 429 becomes
// UpstreamRateLimited and 408/504 become UpstreamTimeout.
func FromStatus(code int, body string) error {
	err := &StatusError{Code: code, Body: body}
	switch code {
	case http.StatusTooManyRequests:
		return Wrap(UpstreamRateLimited, "upstream rate limit exceeded", err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return Wrap(UpstreamTimeout, "upstream request timed out", err)
	}
	return err
}

// IsUpstream reports whether err means the external service itself is
// failing: timeouts, rate limits, transport errors and 5xx responses.
// Cancellation by the caller and 4xx responses are not upstream failures.
func IsUpstream(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if Has(err, UpstreamTimeout) || Has(err, UpstreamRateLimited) || Has(err, UpstreamUnavailable) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
