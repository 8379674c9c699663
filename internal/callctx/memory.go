package callctx

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/voicegate/internal/observability"
)

type session struct {
	attrs       map[string]any
	createdAt   time.Time
	lastTouched time.Time
}

// MemoryStore is an in-process Store for single-instance deployments and
// tests. Sessions idle longer than the TTL are reclaimed by a background
// reaper, which also covers calls that end abnormally without an explicit
// call-ended event.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session

	ttl     time.Duration
	nowFunc func() time.Time
	metrics *observability.Metrics

	stop     chan struct{}
	stopOnce sync.Once
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(fn func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.nowFunc = fn }
}

// WithMetrics wires session gauge updates.
func WithMetrics(metrics *observability.Metrics) MemoryOption {
	return func(m *MemoryStore) { m.metrics = metrics }
}

// NewMemoryStore creates an in-memory store. When reapInterval is positive a
// background reaper runs until Close is called.
func NewMemoryStore(ttl, reapInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
		nowFunc:  time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if reapInterval > 0 {
		go m.reapLoop(reapInterval)
	}
	return m
}

func (m *MemoryStore) Get(ctx context.Context, callID, key string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[callID]
	if !ok {
		return nil, false, nil
	}
	v, ok := s.attrs[key]
	return v, ok, nil
}

func (m *MemoryStore) GetAll(ctx context.Context, callID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[callID]
	if !ok {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Merge(ctx context.Context, callID string, attrs map[string]any) error {
	now := m.nowFunc()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		s = &session{attrs: make(map[string]any, len(attrs)), createdAt: now}
		m.sessions[callID] = s
	}
	for k, v := range attrs {
		s.attrs[k] = v
	}
	s.lastTouched = now
	m.updateGauge()
	return nil
}

func (m *MemoryStore) End(ctx context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callID)
	m.updateGauge()
	return nil
}

// Close stops the background reaper. The store remains usable afterwards
// but no longer evicts idle sessions.
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

// Reap evicts sessions idle longer than the TTL and returns how many were
// removed.
func (m *MemoryStore) Reap() int {
	cutoff := m.nowFunc().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.lastTouched.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.updateGauge()
	}
	return removed
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}

// updateGauge must be called with the mutex held.
func (m *MemoryStore) updateGauge() {
	if m.metrics != nil {
		m.metrics.ActiveCallSessions.Set(float64(len(m.sessions)))
	}
}
