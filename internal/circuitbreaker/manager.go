package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager hands out one breaker per dependency name.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mu       sync.Mutex
	logger   *logrus.Logger
	onChange func(name string, from, to State)
}

// NewManager returns a Manager. onChange, when non-nil, is installed on every
// breaker it creates that has no callback of its own.
func NewManager(logger *logrus.Logger, onChange func(name string, from, to State)) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
		onChange: onChange,
	}
}

func (m *Manager) GetOrCreate(name string, cfg Config) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	cfg.Name = name
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = m.onChange
	}
	cb := New(cfg, m.logger)
	m.breakers[name] = cb

	m.logger.WithFields(logrus.Fields{
		"circuit_breaker": name,
		"max_failures":    cb.cfg.MaxFailures,
		"open_timeout":    cb.cfg.OpenTimeout.String(),
		"trial_calls":     cb.cfg.TrialCalls,
	}).Info("Circuit breaker created")
	return cb
}

// Stats returns every breaker's stats ordered by name.
func (m *Manager) Stats() []Stats {
	m.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	m.mu.Unlock()

	out := make([]Stats, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Healthy reports whether no breaker is open.
func (m *Manager) Healthy() bool {
	for _, s := range m.Stats() {
		if s.State == StateOpen.String() {
			return false
		}
	}
	return true
}
