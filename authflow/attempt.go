package authflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mnehpets/xummpkce/identity"
)

// Flow is the outcome of a successful sign-in.
type Flow struct {
	JWT string
	SDK *identity.SDK
	Me  *identity.Me
}

// Attempt is one run of the sign-in flow. It settles exactly once, either
// with a Flow or with an error. Later settlements are no-ops.
type Attempt struct {
	id   string
	once sync.Once
	done chan struct{}
	flow *Flow
	err  error
}

func newAttempt() *Attempt {
	return &Attempt{id: uuid.NewString(), done: make(chan struct{})}
}

// ID identifies the attempt in log records.
func (a *Attempt) ID() string {
	return a.id
}

// Done is closed once the attempt has settled.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Settled reports whether the attempt has settled.
func (a *Attempt) Settled() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the attempt settles or ctx is done.
func (a *Attempt) Wait(ctx context.Context) (*Flow, error) {
	select {
	case <-a.done:
		return a.flow, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle records the outcome and reports whether this call was the one that
// took effect.
func (a *Attempt) settle(f *Flow, err error) bool {
	won := false
	a.once.Do(func() {
		a.flow, a.err = f, err
		close(a.done)
		won = true
	})
	return won
}
