package authflow

import (
	"context"
	"sync"

	"github.com/mnehpets/xummpkce/event"
	"github.com/mnehpets/xummpkce/page"
)

// Registry keeps at most one Thread per page. Pages are compared by
// identity, so they must be comparable (in practice, pointers).
type Registry struct {
	mu      sync.Mutex
	threads map[page.Page]*Thread
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{threads: map[page.Page]*Thread{}}
}

// DefaultRegistry is the registry used by New.
var DefaultRegistry = NewRegistry()

// New returns a Client for pg using DefaultRegistry.
func New(clientID string, pg page.Page, setup Setup) *Client {
	return DefaultRegistry.New(clientID, pg, setup)
}

// New returns a Client for pg. The first call for a page starts its Thread;
// later calls share it and their arguments are ignored. A nil page yields a
// Client whose operations do nothing.
func (r *Registry) New(clientID string, pg page.Page, setup Setup) *Client {
	if pg == nil {
		return &Client{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.threads[pg]; !ok {
		r.threads[pg] = NewThread(clientID, pg, setup)
	}
	return &Client{registry: r, page: pg}
}

// Lookup returns the Thread of pg, or nil.
func (r *Registry) Lookup(pg page.Page) *Thread {
	if pg == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[pg]
}

// Release closes the Thread of pg and forgets it.
func (r *Registry) Release(pg page.Page) {
	if pg == nil {
		return
	}
	r.mu.Lock()
	t := r.threads[pg]
	delete(r.threads, pg)
	r.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

// Client is a handle on the Thread of one page.
type Client struct {
	registry *Registry
	page     page.Page
}

func (c *Client) thread() *Thread {
	if c == nil || c.registry == nil {
		return nil
	}
	return c.registry.Lookup(c.page)
}

// AuthorizeURL returns a fresh provider authorize URL.
func (c *Client) AuthorizeURL() (string, error) {
	t := c.thread()
	if t == nil {
		return "", ErrNoPage
	}
	return t.AuthorizeURL()
}

// Authorize starts or returns the sign-in attempt. See Thread.Authorize.
func (c *Client) Authorize(ctx context.Context) (*Attempt, error) {
	t := c.thread()
	if t == nil {
		return nil, ErrNoPage
	}
	return t.Authorize(ctx)
}

// State returns the current attempt, or nil.
func (c *Client) State() *Attempt {
	t := c.thread()
	if t == nil {
		return nil
	}
	return t.State()
}

// Logout forgets the signed-in session.
func (c *Client) Logout() {
	if t := c.thread(); t != nil {
		t.Logout()
	}
}

// Popup returns the last opened sign-in window, or nil.
func (c *Client) Popup() page.Popup {
	t := c.thread()
	if t == nil {
		return nil
	}
	return t.Popup()
}

// On subscribes fn to kind. It returns nil without a page.
func (c *Client) On(kind event.Kind, fn event.Listener) *event.Subscription {
	t := c.thread()
	if t == nil {
		return nil
	}
	return t.On(kind, fn)
}

// Off removes a subscription.
func (c *Client) Off(sub *event.Subscription) {
	if t := c.thread(); t != nil {
		t.Off(sub)
	}
}
