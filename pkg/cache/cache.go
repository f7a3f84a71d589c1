// Package cache provides the process-local, time-expiring response caches
// used by the HTTP handlers. Each namespace has a fixed TTL applied when a
// value is written; entries are never updated in place.
package cache

import (
	"context"
	"encoding/base64"
	"strconv"
	"sync"
	"time"

	"github.com/dasmlab/kultura/pkg/learning"
	"github.com/dasmlab/kultura/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// entry is an immutable cached value.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Namespace is a key/value store with a fixed TTL. It is safe for
// concurrent use; concurrent writers of the same key resolve as last write
// wins.
type Namespace[V any] struct {
	name    string
	ttl     time.Duration
	entries map[string]entry[V]
	mu      sync.RWMutex
	now     func() time.Time
}

// NewNamespace creates an empty namespace with the given TTL.
func NewNamespace[V any](name string, ttl time.Duration) *Namespace[V] {
	return &Namespace[V]{
		name:    name,
		ttl:     ttl,
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Name returns the namespace name.
func (n *Namespace[V]) Name() string { return n.name }

// TTL returns the namespace TTL.
func (n *Namespace[V]) TTL() time.Duration { return n.ttl }

// Get returns the value for key if present and not expired.
func (n *Namespace[V]) Get(key string) (V, bool) {
	n.mu.RLock()
	e, ok := n.entries[key]
	n.mu.RUnlock()

	if !ok || !n.now().Before(e.expiresAt) {
		metrics.RecordCacheLookup(n.name, false)
		var zero V
		return zero, false
	}

	metrics.RecordCacheLookup(n.name, true)
	return e.value, true
}

// Set stores value under key, replacing any previous value and resetting
// its expiry.
func (n *Namespace[V]) Set(key string, value V) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.entries[key] = entry[V]{value: value, expiresAt: n.now().Add(n.ttl)}
}

// Len returns the number of stored entries, including expired entries that
// have not been purged yet.
func (n *Namespace[V]) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.entries)
}

// Purge removes expired entries and returns how many were removed.
func (n *Namespace[V]) Purge() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	removed := 0
	for key, e := range n.entries {
		if !now.Before(e.expiresAt) {
			delete(n.entries, key)
			removed++
		}
	}

	metrics.SetCacheEntries(n.name, len(n.entries))
	return removed
}

// purger is the part of a namespace the sweeper needs.
type purger interface {
	Name() string
	Purge() int
}

// TTLs configures the namespace lifetimes of a Service.
type TTLs struct {
	Translation time.Duration
	Summary     time.Duration
	Quiz        time.Duration
	Feedback    time.Duration
	Docx        time.Duration
}

// DefaultTTLs returns one hour for everything except feedback, which
// lives ten minutes.
func DefaultTTLs() TTLs {
	return TTLs{
		Translation: time.Hour,
		Summary:     time.Hour,
		Quiz:        time.Hour,
		Feedback:    10 * time.Minute,
		Docx:        time.Hour,
	}
}

// Service owns every response cache of the process. It is constructed once
// at startup and injected into the handlers.
type Service struct {
	Translation *Namespace[string]
	Summary     *Namespace[string]
	Quiz        *Namespace[learning.Quiz]
	Feedback    *Namespace[string]
	Docx        *Namespace[[]byte]

	logger *logrus.Logger
}

// NewService creates the cache namespaces.
func NewService(ttls TTLs, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}

	return &Service{
		Translation: NewNamespace[string]("translation", ttls.Translation),
		Summary:     NewNamespace[string]("summary", ttls.Summary),
		Quiz:        NewNamespace[learning.Quiz]("quiz", ttls.Quiz),
		Feedback:    NewNamespace[string]("feedback", ttls.Feedback),
		Docx:        NewNamespace[[]byte]("docx", ttls.Docx),
		logger:      logger,
	}
}

func (s *Service) namespaces() []purger {
	return []purger{s.Translation, s.Summary, s.Quiz, s.Feedback, s.Docx}
}

// Start runs a background sweep that purges expired entries every interval
// until ctx is cancelled. Expired entries are already invisible to Get, so
// the sweep only bounds memory.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-ctx.Done():
				s.logger.Debug("Cache sweeper stopped")
				return
			}
		}
	}()

	s.logger.WithFields(logrus.Fields{
		"interval": interval.String(),
	}).Info("Started cache sweeper")
}

func (s *Service) sweep() {
	for _, ns := range s.namespaces() {
		if removed := ns.Purge(); removed > 0 {
			s.logger.WithFields(logrus.Fields{
				"namespace": ns.Name(),
				"removed":   removed,
			}).Debug("Purged expired cache entries")
		}
	}
}

// Key builds a content-addressed key: op:base64(content):lang.
// Any byte difference in content or a different language is a miss.
func Key(op string, content []byte, lang string) string {
	return op + ":" + base64.StdEncoding.EncodeToString(content) + ":" + lang
}

// ScoreKey builds the key for score based operations: op:score:lang.
func ScoreKey(op string, score float64, lang string) string {
	return op + ":" + strconv.FormatFloat(score, 'f', -1, 64) + ":" + lang
}
