// Package circuitbreaker stops calls to a failing dependency for a cool-down
// period and then lets a few trial calls through before closing again.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

const (
	defaultMaxFailures  = 5
	defaultOpenTimeout  = 30 * time.Second
	defaultTrialCalls   = 1
	maxAllowedFailures  = 1000
	maxAllowedTimeout   = 10 * time.Minute
	maxAllowedTrialCall = 100
)

type Config struct {
	Name string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int
	// OpenTimeout is how long the breaker rejects calls before letting trial calls through.
	OpenTimeout time.Duration
	// TrialCalls is how many calls may run while half-open.
	TrialCalls    int
	OnStateChange func(name string, from, to State)
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	Failures     int       `json:"consecutive_failures"`
	Calls        int64     `json:"calls"`
	Successes    int64     `json:"successes"`
	Errors       int64     `json:"errors"`
	Rejected     int64     `json:"rejected"`
	StateChanges int64     `json:"state_changes"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

type CircuitBreaker struct {
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	trials      int
	openedAt    time.Time
	lastFailure time.Time

	calls, successes, errs, rejected, stateChanges int64

	// pending holds transitions not yet handed to OnStateChange. One
	// goroutine drains it at a time so callbacks see them in order.
	pending   []transition
	notifying bool
}

type transition struct {
	from, to State
}

func New(cfg Config, logger *logrus.Logger) *CircuitBreaker {
	cfg = sanitize(cfg, logger)
	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}
}

func sanitize(cfg Config, logger *logrus.Logger) Config {
	if cfg.Name == "" {
		cfg.Name = "unnamed"
	}
	warn := func(field string, got, used interface{}) {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": cfg.Name,
			"field":           field,
			"invalid_value":   got,
			"used_value":      used,
		}).Warn("Adjusted circuit breaker setting")
	}

	switch {
	case cfg.MaxFailures <= 0:
		warn("max_failures", cfg.MaxFailures, defaultMaxFailures)
		cfg.MaxFailures = defaultMaxFailures
	case cfg.MaxFailures > maxAllowedFailures:
		warn("max_failures", cfg.MaxFailures, maxAllowedFailures)
		cfg.MaxFailures = maxAllowedFailures
	}
	switch {
	case cfg.OpenTimeout <= 0:
		warn("open_timeout", cfg.OpenTimeout, defaultOpenTimeout)
		cfg.OpenTimeout = defaultOpenTimeout
	case cfg.OpenTimeout > maxAllowedTimeout:
		warn("open_timeout", cfg.OpenTimeout, maxAllowedTimeout)
		cfg.OpenTimeout = maxAllowedTimeout
	}
	switch {
	case cfg.TrialCalls <= 0:
		warn("trial_calls", cfg.TrialCalls, defaultTrialCalls)
		cfg.TrialCalls = defaultTrialCalls
	case cfg.TrialCalls > maxAllowedTrialCall:
		warn("trial_calls", cfg.TrialCalls, maxAllowedTrialCall)
		cfg.TrialCalls = maxAllowedTrialCall
	}
	return cfg
}

// Execute runs fn unless the breaker is open. A call abandoned because ctx
// was cancelled does not count against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.successes++
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		if cb.state == StateHalfOpen {
			cb.trials--
		}
	default:
		cb.errs++
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.openedAt = cb.lastFailure
			cb.setState(StateOpen)
		}
	}
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.OpenTimeout {
			cb.rejected++
			return ErrOpen
		}
		cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.trials >= cb.cfg.TrialCalls {
			cb.rejected++
			return ErrOpen
		}
		cb.trials++
	}
	cb.calls++
	return nil
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.trials = 0
	cb.stateChanges++

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.cfg.Name,
		"from_state":      from.String(),
		"to_state":        to.String(),
		"failures":        cb.failures,
	}).Info("Circuit breaker state changed")

	if cb.cfg.OnStateChange != nil {
		cb.pending = append(cb.pending, transition{from: from, to: to})
		if !cb.notifying {
			cb.notifying = true
			go cb.drain()
		}
	}
}

// drain runs the callback outside the lock, one transition at a time.
func (cb *CircuitBreaker) drain() {
	for {
		cb.mu.Lock()
		if len(cb.pending) == 0 {
			cb.notifying = false
			cb.mu.Unlock()
			return
		}
		next := cb.pending[0]
		cb.pending = cb.pending[1:]
		cb.mu.Unlock()

		cb.notify(next.from, next.to)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	defer func() {
		if r := recover(); r != nil {
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.cfg.Name,
				"panic":           r,
			}).Error("Circuit breaker state change callback panicked")
		}
	}()
	cb.cfg.OnStateChange(cb.cfg.Name, from, to)
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:         cb.cfg.Name,
		State:        cb.state.String(),
		Failures:     cb.failures,
		Calls:        cb.calls,
		Successes:    cb.successes,
		Errors:       cb.errs,
		Rejected:     cb.rejected,
		StateChanges: cb.stateChanges,
		LastFailure:  cb.lastFailure,
	}
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failures = 0
	cb.lastFailure = time.Time{}
}

func (cb *CircuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return fmt.Sprintf("CircuitBreaker(name=%s, state=%s, failures=%d/%d)",
		cb.cfg.Name, cb.state, cb.failures, cb.cfg.MaxFailures)
}
