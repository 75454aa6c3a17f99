package speech

import (
	"errors"
	"fmt"
	"sync"
)

// ErrEngineBusy reports that another owner currently drives the recognition engine.
var ErrEngineBusy = errors.New("recognition engine busy")

// Owner names a component that drives the recognition engine.
type Owner string

const (
	OwnerSession  Owner = "session"
	OwnerWakeWord Owner = "wake-word"
)

// Arbiter grants the recognition engine to one owner at a time.
type Arbiter struct {
	mu    sync.Mutex
	owner Owner
	epoch uint64
}

// NewArbiter constructs an idle arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// Acquire leases the engine to owner. The returned release func is idempotent
// and only releases the lease it was issued for.
func (a *Arbiter) Acquire(owner Owner) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.owner != "" && a.owner != owner {
		return nil, fmt.Errorf("%w: held by %s", ErrEngineBusy, a.owner)
	}
	a.owner = owner
	a.epoch++
	epoch := a.epoch

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.epoch == epoch {
				a.owner = ""
			}
		})
	}, nil
}

// Owner returns the current lease holder, or "" when free.
func (a *Arbiter) Owner() Owner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner
}
