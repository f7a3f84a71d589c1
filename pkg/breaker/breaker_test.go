package breaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dasmlab/kultura/pkg/apperror"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Settings{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Minute})
	boom := apperror.FromStatus(http.StatusServiceUnavailable, "boom")

	calls := 0
	fail := func() error {
		calls++
		return boom
	}

	for i := 0; i < 2; i++ {
		if err := b.Do(fail); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}

	err := b.Do(fail)
	if !apperror.Has(err, apperror.UpstreamUnavailable) {
		t.Fatalf("expected UpstreamUnavailable once open, got %v", err)
	}
	if calls != 2 {
		t.Errorf("open breaker should not call through, calls = %d", calls)
	}
	if b.State() != "open" {
		t.Errorf("State() = %s, want open", b.State())
	}
}

func TestBreakerPassesSuccess(t *testing.T) {
	b := New(Settings{Name: "ok"})
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("State() = %s, want closed", b.State())
	}
}

func TestBreakerIgnoresNonUpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"cancelled", context.Canceled},
		{"cancelled in transport", fmt.Errorf("translate request: %w", context.Canceled)},
		{"bad request", apperror.FromStatus(http.StatusBadRequest, "bad input")},
		{"malformed body", apperror.New(apperror.MalformedUpstreamResponse, "decode failed")},
		{"plain", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Settings{Name: "translator", ConsecutiveFailures: 2, OpenTimeout: time.Minute})

			for i := 0; i < 5; i++ {
				if err := b.Do(func() error { return tt.err }); !errors.Is(err, tt.err) {
					t.Fatalf("call %d: error = %v; want %v", i, err, tt.err)
				}
			}

			if err := b.Do(func() error { return nil }); err != nil {
				t.Fatalf("breaker rejected call: %v", err)
			}
			if b.State() != "closed" {
				t.Errorf("State() = %s, want closed", b.State())
			}
		})
	}
}

func TestBreakerCountsUpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"5xx", apperror.FromStatus(http.StatusBadGateway, "down")},
		{"timeout", apperror.FromTransport(context.DeadlineExceeded)},
		{"rate limited", apperror.FromStatus(http.StatusTooManyRequests, "slow down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Settings{Name: "translator", ConsecutiveFailures: 2, OpenTimeout: time.Minute})
			for i := 0; i < 2; i++ {
				b.Do(func() error { return tt.err })
			}
			if b.State() != "open" {
				t.Errorf("State() = %s, want open", b.State())
			}
		})
	}
}
