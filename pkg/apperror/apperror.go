// Package apperror defines the error taxonomy shared by the localization
// pipeline and the HTTP surface, and the mapping from error kinds to HTTP
// status codes.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	MissingInput              Kind = "missing_input"
	InvalidProfile            Kind = "invalid_profile"
	UnsupportedLanguage       Kind = "unsupported_language"
	ExtractionFailed          Kind = "extraction_failed"
	TranslationFailed         Kind = "translation_failed"
	AdaptationFailed          Kind = "adaptation_failed"
	UpstreamTimeout           Kind = "upstream_timeout"
	UpstreamRateLimited       Kind = "upstream_rate_limited"
	UpstreamUnavailable       Kind = "upstream_unavailable"
	MalformedUpstreamResponse Kind = "malformed_upstream_response"
)

// Error is a classified error. Field and Details are only set for
// validation failures and end up in the response body.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Invalid returns a validation error naming the offending field.
func Invalid(kind Kind, message, field, reason string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Field:   field,
		Details: map[string]any{field: reason},
	}
}

// KindOf returns the outermost kind in the chain, or "" if err is not
// classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Has reports whether any error in the chain has the given kind.
func Has(err error, kind Kind) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ae, ok := e.(*Error); ok && ae.Kind == kind {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a client-side input error.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case MissingInput, InvalidProfile, UnsupportedLanguage:
		return true
	}
	return false
}

// Status maps err to an HTTP status code. Upstream timeout, rate limit and
// unavailability win over the outer kind because they tell the client
// whether retrying makes sense.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case Has(err, UpstreamTimeout):
		return http.StatusGatewayTimeout
	case Has(err, UpstreamRateLimited):
		return http.StatusTooManyRequests
	case Has(err, UpstreamUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Cause returns the innermost message in the chain, used as the upstream
// error text in responses.
func Cause(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
