// Package session keeps the in-memory bill sessions, one workflow controller
// per client, keyed by an opaque session ID.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitit/internal/metrics"
	"github.com/mmynk/splitit/internal/workflow"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// Session is one client's bill.
type Session struct {
	ID         string
	Controller *workflow.Controller
	Logger     *slog.Logger
	CreatedAt  time.Time

	lastUsed time.Time
}

// Factory builds the controller for a new session.
type Factory func(logger *slog.Logger) *workflow.Controller

// OnEvict is called, outside the registry lock, for each session removed by
// Delete or Prune.
type OnEvict func(id string)

// Registry holds the live sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	factory Factory
	metrics *metrics.Metrics
	onEvict OnEvict
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics reports the number of live sessions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithOnEvict registers a hook run when sessions are removed.
func WithOnEvict(fn OnEvict) Option {
	return func(r *Registry) { r.onEvict = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a new session in the Upload stage.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	logger := slog.With("session_id", id)
	now := r.now()
	s := &Session{
		ID:         id,
		Controller: r.factory(logger),
		Logger:     logger,
		CreatedAt:  now,
		lastUsed:   now,
	}

	r.mu.Lock()
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	logger.Info("Session created")
	return s
}

// Get returns the session and marks it used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.lastUsed = r.now()
	return s, nil
}

// Delete removes a session. Unknown IDs return ErrNotFound.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	r.metrics.SetActiveSessions(n)
	r.evicted(id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Prune removes sessions idle for longer than ttl and returns how many were
// removed. A session waiting on an extraction is never idle; it is marked
// used so it gets a full ttl once the upload returns.
func (r *Registry) Prune(ttl time.Duration) int {
	now := r.now()
	cutoff := now.Add(-ttl)

	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if s.Controller.Pending() {
			s.lastUsed = now
			continue
		}
		if s.lastUsed.Before(cutoff) {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}
	r.metrics.SetActiveSessions(n)
	for _, id := range expired {
		r.evicted(id)
	}
	slog.Info("Pruned idle sessions", "count", len(expired), "remaining", n)
	return len(expired)
}

// RunPruner calls Prune every interval until ctx is done.
func (r *Registry) RunPruner(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Prune(ttl)
		}
	}
}

func (r *Registry) evicted(id string) {
	if r.onEvict != nil {
		r.onEvict(id)
	}
}
