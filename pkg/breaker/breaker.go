// Package breaker wraps sony/gobreaker for the external service clients.
// An open breaker fails calls fast with apperror.UpstreamUnavailable
// instead of waiting for the upstream timeout on every request.
package breaker

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/dasmlab/kultura/pkg/apperror"
)

// Settings configures a Breaker.
type Settings struct {
	// Name identifies the protected service in logs.
	Name string
	// ConsecutiveFailures trips the breaker. Defaults to 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a
	// probe request through. Defaults to 30s.
	OpenTimeout time.Duration
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// Breaker guards calls to one external service.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a Breaker.
func New(s Settings) *Breaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.Logger == nil {
		s.Logger = logrus.New()
	}

	threshold := s.ConsecutiveFailures
	logger := s.Logger

	return &Breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Name,
			MaxRequests: 1,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// Cancellations and 4xx responses don't count toward tripping.
			IsSuccessful: func(err error) bool {
				return !apperror.IsUpstream(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state changed")
			},
		}),
	}
}

// Do runs fn through the breaker.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperror.Wrap(apperror.UpstreamUnavailable, b.cb.Name()+" is unavailable", err)
	}
	return err
}

// State returns the current breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
