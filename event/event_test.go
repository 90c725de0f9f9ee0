package event

import (
	"errors"
	"sync"
	"testing"
)

type recorder struct {
	mu  sync.Mutex
	got []error
}

func (r *recorder) listen(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, err)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestEmit_HeldUntilListener(t *testing.T) {
	e := NewEmitter()
	e.Emit(Success, nil)
	if e.Pending(Success) != 1 {
		t.Fatalf("Pending: got %d want 1", e.Pending(Success))
	}
	var r recorder
	e.On(Success, r.listen)
	if r.len() != 1 {
		t.Fatalf("delivered: got %d want 1", r.len())
	}
	if e.Pending(Success) != 0 {
		t.Fatalf("Pending after delivery: got %d", e.Pending(Success))
	}
}

func TestEmit_OrderPreserved(t *testing.T) {
	e := NewEmitter()
	e1, e2, e3 := errors.New("1"), errors.New("2"), errors.New("3")
	e.Emit(Error, e1)
	e.Emit(Error, e2)
	var r recorder
	e.On(Error, r.listen)
	e.Emit(Error, e3)
	if len(r.got) != 3 || r.got[0] != e1 || r.got[1] != e2 || r.got[2] != e3 {
		t.Fatalf("order: got %v", r.got)
	}
}

func TestEmit_GatesAreIndependent(t *testing.T) {
	e := NewEmitter()
	var r recorder
	e.On(Retrieved, r.listen)
	e.Emit(Success, nil)
	if r.len() != 0 {
		t.Fatal("success delivered to a retrieved listener")
	}
	if e.Pending(Success) != 1 {
		t.Fatal("success not held")
	}
}

func TestOff_RearmsWithoutReplay(t *testing.T) {
	e := NewEmitter()
	var r1 recorder
	sub := e.On(Success, r1.listen)
	e.Emit(Success, nil)
	if r1.len() != 1 {
		t.Fatalf("first delivery: got %d", r1.len())
	}

	e.Off(sub)
	var r2 recorder
	e.On(Success, r2.listen)
	if r2.len() != 0 {
		t.Fatal("stale emission replayed after re-attach")
	}

	// Emissions made while detached are held for the next listener.
	e.Off(e.On(LoggedOut, func(error) {}))
	e.Emit(LoggedOut, nil)
	if e.Pending(LoggedOut) != 1 {
		t.Fatal("emission after Off not held")
	}
	var r3 recorder
	e.On(LoggedOut, r3.listen)
	if r3.len() != 1 {
		t.Fatalf("held emission: got %d want 1", r3.len())
	}
}

func TestOff_ClosesGateEvenWithOtherListeners(t *testing.T) {
	e := NewEmitter()
	var r1, r2 recorder
	e.On(Success, r1.listen)
	sub2 := e.On(Success, r2.listen)
	e.Off(sub2)
	e.Emit(Success, nil)
	if r1.len() != 0 {
		t.Fatal("emission delivered through a re-armed gate")
	}
	var r3 recorder
	e.On(Success, r3.listen)
	if r1.len() != 1 || r3.len() != 1 || r2.len() != 0 {
		t.Fatalf("deliveries: r1=%d r2=%d r3=%d", r1.len(), r2.len(), r3.len())
	}
}

func TestOff_Unknown(t *testing.T) {
	e := NewEmitter()
	e.Off(nil)
	e.Off(&Subscription{kind: Success})
	var r recorder
	e.On(Success, r.listen)
	e.Emit(Success, nil)
	if r.len() != 1 {
		t.Fatal("Off of an unknown subscription closed the gate")
	}
}

func TestListenerMayReenter(t *testing.T) {
	e := NewEmitter()
	var r recorder
	var sub *Subscription
	sub = e.On(Error, func(err error) {
		r.listen(err)
		e.Off(sub)
		e.Emit(Error, nil)
	})
	e.Emit(Error, errors.New("x"))
	if r.len() != 1 {
		t.Fatalf("deliveries: got %d want 1", r.len())
	}
	if e.Pending(Error) != 1 {
		t.Fatalf("re-entrant emission not held: %d", e.Pending(Error))
	}
}

func TestConcurrentEmit(t *testing.T) {
	e := NewEmitter()
	var r recorder
	e.On(Success, r.listen)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Emit(Success, nil)
		}()
	}
	wg.Wait()
	if r.len() != 50 {
		t.Fatalf("deliveries: got %d want 50", r.len())
	}
}
