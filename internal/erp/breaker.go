package erp

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while an endpoint's breaker refuses
// requests. Callers match it with errors.Is; the concrete *OpenError carries
// the remaining cooldown.
var ErrCircuitOpen = errors.New("erp circuit breaker is open")

// OpenError reports a refused request together with how long until the
// breaker will admit a trial request.
type OpenError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("erp circuit breaker is open for %q (retry in %s)", e.Endpoint, e.RetryAfter)
}

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }

// BreakerState is the current position of a circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker protects one ERP endpoint. Consecutive failures open it; after the
// cooldown a single trial request is admitted, and its outcome decides
// between reclosing and reopening.
type Breaker struct {
	mu            sync.Mutex
	endpoint      string
	state         BreakerState
	failures      int
	threshold     int
	cooldown      time.Duration
	openedAt      time.Time
	trialInFlight bool

	clock    Clock
	onChange func(endpoint string, from, to BreakerState)
}

// NewBreaker builds a closed breaker. onChange may be nil; when set it fires
// on every state transition and must not call back into the breaker.
func NewBreaker(endpoint string, threshold int, cooldown time.Duration, clock Clock, onChange func(endpoint string, from, to BreakerState)) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		endpoint:  endpoint,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     clock,
		onChange:  onChange,
	}
}

// Allow reports whether a request may proceed. In the open state it returns
// an *OpenError until the cooldown elapses, then admits one trial request and
// moves to half-open. In half-open only the single trial is admitted.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case BreakerClosed:
		b.mu.Unlock()
		return nil
	case BreakerOpen:
		elapsed := b.clock.Now().Sub(b.openedAt)
		if elapsed < b.cooldown {
			err := &OpenError{Endpoint: b.endpoint, RetryAfter: b.cooldown - elapsed}
			b.mu.Unlock()
			return err
		}
		from := b.state
		b.state = BreakerHalfOpen
		b.trialInFlight = true
		b.mu.Unlock()
		b.notify(from, BreakerHalfOpen)
		return nil
	default: // half-open
		if b.trialInFlight {
			err := &OpenError{Endpoint: b.endpoint, RetryAfter: b.cooldown}
			b.mu.Unlock()
			return err
		}
		b.trialInFlight = true
		b.mu.Unlock()
		return nil
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	b.failures = 0
	b.trialInFlight = false
	b.state = BreakerClosed
	b.mu.Unlock()
	if from != BreakerClosed {
		b.notify(from, BreakerClosed)
	}
}

// RecordFailure counts a failed request. Reaching the threshold while closed,
// or any failure while half-open, opens the breaker and restarts the
// cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	from := b.state
	b.failures++
	b.trialInFlight = false

	opens := false
	switch b.state {
	case BreakerClosed:
		opens = b.failures >= b.threshold
	case BreakerHalfOpen:
		opens = true
	}
	if opens {
		b.state = BreakerOpen
		b.openedAt = b.clock.Now()
	}
	b.mu.Unlock()
	if opens && from != BreakerOpen {
		b.notify(from, BreakerOpen)
	}
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive-failure tally.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// RetryAfter reports how long until an open breaker admits a trial request.
// Zero when the breaker is not refusing requests.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BreakerOpen {
		return 0
	}
	remaining := b.cooldown - b.clock.Now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *Breaker) notify(from, to BreakerState) {
	if b.onChange != nil {
		b.onChange(b.endpoint, from, to)
	}
}
