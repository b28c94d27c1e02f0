package breaker

import (
	"log"
	"sync"
	"time"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
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
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

type Config struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker open.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before admitting a
	// half-open trial call.
	ResetTimeout time.Duration
	// MonitoringWindow bounds the sliding outcome window kept for
	// statistics. It never drives the open/closed decision.
	MonitoringWindow time.Duration
}

type outcome struct {
	at      time.Time
	success bool
}

// CircuitBreaker guards calls to the payment gateway. One instance is shared
// by every request worker, so all counter access goes through the mutex.
type CircuitBreaker struct {
	mu              sync.Mutex
	cfg             Config
	state           State
	failureCount    int
	lastFailureTime time.Time
	window          []outcome
	trialInFlight   bool

	now func() time.Time

	// OnStateChange, when set, observes every transition. It runs with the
	// breaker lock held and must not call back into the breaker.
	OnStateChange func(from, to State)
}

func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Execute runs op under breaker protection. While the breaker is open the
// operation is rejected with a CIRCUIT_OPEN error without being invoked.
func (b *CircuitBreaker) Execute(op func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}
	err := op()
	b.afterCall(err)
	return err
}

func (b *CircuitBreaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.pruneWindow(now)

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Sub(b.lastFailureTime) > b.cfg.ResetTimeout {
			b.transition(StateHalfOpen)
			b.trialInFlight = true
			return nil
		}
		return b.rejectionError()
	case StateHalfOpen:
		if b.trialInFlight {
			return b.rejectionError()
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

func (b *CircuitBreaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.window = append(b.window, outcome{at: now, success: err == nil})
	b.pruneWindow(now)

	if err == nil {
		if b.state == StateHalfOpen {
			b.trialInFlight = false
			b.failureCount = 0
			b.transition(StateClosed)
		}
		return
	}

	switch b.state {
	case StateClosed:
		b.failureCount++
		b.lastFailureTime = now
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.trialInFlight = false
		b.lastFailureTime = now
		b.transition(StateOpen)
	}
}

func (b *CircuitBreaker) rejectionError() error {
	return domain.NewError(domain.KindCircuitOpen, "CIRCUIT_OPEN",
		"payment gateway circuit is open, retry after %s", b.cfg.ResetTimeout)
}

func (b *CircuitBreaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	log.Printf("Circuit breaker transition: %s -> %s (failures=%d)", from, to, b.failureCount)
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}

// window entries older than the monitoring window are dropped on every
// access; the window serves stats only.
func (b *CircuitBreaker) pruneWindow(now time.Time) {
	cutoff := now.Add(-b.cfg.MonitoringWindow)
	i := 0
	for ; i < len(b.window); i++ {
		if b.window[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		b.window = append(b.window[:0], b.window[i:]...)
	}
}

func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

type Snapshot struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	WindowSuccesses int       `json:"window_successes"`
	WindowFailures  int       `json:"window_failures"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// Stats reports the breaker's current state for health checks and alerting.
func (b *CircuitBreaker) Stats() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneWindow(b.now())
	snap := Snapshot{
		State:           b.state.String(),
		FailureCount:    b.failureCount,
		LastFailureTime: b.lastFailureTime,
	}
	for _, o := range b.window {
		if o.success {
			snap.WindowSuccesses++
		} else {
			snap.WindowFailures++
		}
	}
	return snap
}
