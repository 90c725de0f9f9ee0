// Package event delivers sign-in lifecycle events without losing the ones
// emitted before anybody listens.
//
// Each event kind has a readiness gate. The gate opens when a listener is
// attached for that kind and closes again whenever a listener for that kind
// is detached. Emissions made while the gate is closed are held, in order,
// and delivered once it opens. An emission is delivered once; re-attaching
// does not replay it.
package event

import "sync"

// Kind names a lifecycle event.
type Kind string

const (
	// Retrieved is emitted when a remembered or redirected session has been
	// picked up.
	Retrieved Kind = "retrieved"
	// Success is emitted when an attempt settles with a session.
	Success Kind = "success"
	// Error is emitted when an attempt settles with a failure.
	Error Kind = "error"
	// LoggedOut is emitted after the session is cleared.
	LoggedOut Kind = "loggedout"
)

// Listener receives an event. err is non-nil only for Error events.
type Listener func(err error)

// Subscription identifies an attached listener.
type Subscription struct {
	kind Kind
	fn   Listener
}

type gate struct {
	open      bool
	listeners []*Subscription
	queue     []error
	draining  bool
}

// Emitter is safe for concurrent use. Listeners run on the goroutine that
// opened the gate or emitted the event, never while the Emitter is locked.
type Emitter struct {
	mu    sync.Mutex
	gates map[Kind]*gate
}

// NewEmitter returns an Emitter with every gate closed.
func NewEmitter() *Emitter {
	return &Emitter{gates: map[Kind]*gate{}}
}

func (e *Emitter) gate(k Kind) *gate {
	g, ok := e.gates[k]
	if !ok {
		g = &gate{}
		e.gates[k] = g
	}
	return g
}

// On attaches fn for kind and opens the kind's gate, delivering anything
// held.
func (e *Emitter) On(kind Kind, fn Listener) *Subscription {
	sub := &Subscription{kind: kind, fn: fn}
	e.mu.Lock()
	g := e.gate(kind)
	g.listeners = append(g.listeners, sub)
	g.open = true
	e.drain(g)
	return sub
}

// Off detaches sub and closes the gate for its kind until the next On.
func (e *Emitter) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.gate(sub.kind)
	for i, s := range g.listeners {
		if s == sub {
			g.listeners = append(g.listeners[:i:i], g.listeners[i+1:]...)
			g.open = false
			return
		}
	}
}

// Emit queues an event of kind and delivers it if the gate is open.
func (e *Emitter) Emit(kind Kind, err error) {
	e.mu.Lock()
	g := e.gate(kind)
	g.queue = append(g.queue, err)
	e.drain(g)
}

// Pending returns the number of held emissions for kind.
func (e *Emitter) Pending(kind Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.gate(kind).queue)
}

// drain delivers held emissions in order while the gate stays open. It is
// called with e.mu held and releases it.
func (e *Emitter) drain(g *gate) {
	if g.draining {
		e.mu.Unlock()
		return
	}
	g.draining = true
	for g.open && len(g.queue) > 0 {
		err := g.queue[0]
		g.queue = g.queue[1:]
		listeners := append([]*Subscription(nil), g.listeners...)
		e.mu.Unlock()
		for _, s := range listeners {
			s.fn(err)
		}
		e.mu.Lock()
	}
	g.draining = false
	e.mu.Unlock()
}
