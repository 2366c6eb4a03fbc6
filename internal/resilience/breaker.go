// Package resilience guards calls to external services.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	closed state = iota
	open
	halfOpen
)

func (s state) String() string {
	switch s {
	case open:
		return "open"
	case halfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker trips after maxFailures consecutive failures and rejects calls for
// cooldown. After the cooldown a single trial call decides whether it closes
// again or re-opens.
type Breaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	trial       bool
	now         func() time.Time
}

func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

// Execute runs fn unless the circuit is open. Errors for which ignore
// returns true are passed through without counting as failures.
func (b *Breaker) Execute(fn func() error, ignore ...func(error) bool) error {
	if !b.acquire() {
		return ErrCircuitOpen
	}

	err := fn()
	counted := err != nil
	for _, ig := range ignore {
		if err != nil && ig(err) {
			counted = false
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
	if counted {
		b.failures++
		if b.state == halfOpen || b.failures >= b.maxFailures {
			b.state = open
			b.openedAt = b.now()
		}
		return err
	}
	b.failures = 0
	b.state = closed
	return err
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

func (b *Breaker) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = halfOpen
		b.trial = true
		return true
	case halfOpen:
		// one trial call at a time
		if b.trial {
			return false
		}
		b.trial = true
		return true
	}
	return true
}
