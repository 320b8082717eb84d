package circuitbreaker

import (
	"sync"

	"go.uber.org/zap"
)

// Manager owns one circuit breaker per source. Breakers are created lazily on
// first use so the manager does not need the source list up front. Per-source
// state is keyed by source name, so there is no cross-source contention.
type Manager struct {
	defaults  Config
	overrides map[string]Config
	logger    *zap.Logger

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewManager creates a manager with shared defaults and optional per-source
// config overrides.
func NewManager(defaults Config, overrides map[string]Config, logger *zap.Logger) *Manager {
	return &Manager{
		defaults:  defaults,
		overrides: overrides,
		logger:    logger,
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for source, creating it on first use.
func (m *Manager) Get(source string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[source]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[source]; ok {
		return cb
	}

	cfg := m.defaults
	if override, ok := m.overrides[source]; ok {
		cfg = override
	}
	cb = New(source, cfg, m.logger)
	m.breakers[source] = cb
	registerBreakerMetrics(source, cb)
	return cb
}

// IsHealthy reports whether calls to source would currently be admitted. A
// source with no breaker yet is healthy by definition.
func (m *Manager) IsHealthy(source string) bool {
	m.mu.RLock()
	cb, ok := m.breakers[source]
	m.mu.RUnlock()
	if !ok {
		return true
	}
	return cb.IsHealthy()
}

// Status returns the status of the breaker for source.
func (m *Manager) Status(source string) Status {
	return m.Get(source).Status()
}

// Snapshot returns the status of every known breaker keyed by source.
func (m *Manager) Snapshot() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.breakers))
	for source, cb := range m.breakers {
		out[source] = cb.Status()
	}
	return out
}
