package page

import (
	"sync"

	"github.com/mnehpets/xummpkce/message"
)

// Bus implements the message and load-state half of Page. The zero value is
// ready to use; embed it.
type Bus struct {
	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
	loaded    bool
	onLoad    []func()
}

func (b *Bus) AddMessageListener(l Listener) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = map[int]Listener{}
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// PostMessage delivers ev to the listeners in registration order.
func (b *Bus) PostMessage(ev message.Event) {
	b.mu.Lock()
	ls := make([]Listener, 0, len(b.listeners))
	for i := 0; i < b.nextID; i++ {
		if l, ok := b.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	b.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// Listeners returns the number of registered message listeners.
func (b *Bus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Bus) OnLoad(fn func()) {
	b.mu.Lock()
	if !b.loaded {
		b.onLoad = append(b.onLoad, fn)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	fn()
}

// Load marks the document complete and runs the pending OnLoad callbacks.
// Later calls do nothing.
func (b *Bus) Load() {
	b.mu.Lock()
	if b.loaded {
		b.mu.Unlock()
		return
	}
	b.loaded = true
	fns := b.onLoad
	b.onLoad = nil
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
