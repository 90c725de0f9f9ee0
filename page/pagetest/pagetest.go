// Package pagetest provides an in-memory page.Page for tests.
package pagetest

import (
	"errors"
	"net/url"
	"sync"

	"github.com/mnehpets/xummpkce/page"
	"github.com/mnehpets/xummpkce/storage"
)

// ErrBlocked is a convenient OpenErr value.
var ErrBlocked = errors.New("pagetest: popup blocked")

// Popup records an opened window.
type Popup struct {
	URL      string
	Features page.Features

	mu     sync.Mutex
	closed bool
}

func (p *Popup) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Popup) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Page is an in-memory page.Page. It starts out not loaded; call Load.
type Page struct {
	page.Bus

	// OpenErr, if set, is returned by Open.
	OpenErr error

	mu       sync.Mutex
	loc      *url.URL
	replaced []*url.URL
	popups   []*Popup
	storage  storage.Storage
}

// New returns a page at rawURL with empty memory storage.
func New(rawURL string) *Page {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic("pagetest: " + err.Error())
	}
	return &Page{loc: u, storage: storage.NewMemory()}
}

// WithStorage replaces the page's local storage.
func (p *Page) WithStorage(st storage.Storage) *Page {
	p.storage = st
	return p
}

func (p *Page) Location() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := *p.loc
	return &c
}

func (p *Page) ReplaceLocation(u *url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := *u
	p.loc = &c
	p.replaced = append(p.replaced, &c)
}

// Replaced returns every address passed to ReplaceLocation.
func (p *Page) Replaced() []*url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*url.URL(nil), p.replaced...)
}

func (p *Page) Open(rawURL string, f page.Features) (page.Popup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	pp := &Popup{URL: rawURL, Features: f}
	p.popups = append(p.popups, pp)
	return pp, nil
}

// Popups returns every opened popup.
func (p *Page) Popups() []*Popup {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Popup(nil), p.popups...)
}

func (p *Page) LocalStorage() storage.Storage {
	return p.storage
}

var _ page.Page = (*Page)(nil)
