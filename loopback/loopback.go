// Package loopback is a page.Page for command-line programs.
//
// The system browser plays the sign-in window. A small HTTP server on the
// redirect URL plays the page the provider sends the user back to: it posts
// the completion message the sign-in window would have posted, followed by
// a popup-closed message, and tells the user to close the tab.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mnehpets/xummpkce/message"
	"github.com/mnehpets/xummpkce/page"
	"github.com/mnehpets/xummpkce/storage"
	"github.com/pkg/browser"
)

const shutdownTimeout = 5 * time.Second

// Page is the native page.Page.
type Page struct {
	page.Bus

	redirect *url.URL
	storage  storage.Storage
	open     func(rawURL string) error
	log      *slog.Logger

	mu  sync.Mutex
	loc *url.URL
}

// Option configures a Page.
type Option func(*Page)

// WithStorage sets the page's local storage. The default keeps nothing
// across runs.
func WithStorage(st storage.Storage) Option {
	return func(p *Page) {
		p.storage = st
	}
}

// WithBrowser replaces the function that opens the sign-in URL.
func WithBrowser(open func(rawURL string) error) Option {
	return func(p *Page) {
		p.open = open
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Page) {
		p.log = l
	}
}

// New returns a Page whose address, and callback endpoint, is redirectURL.
func New(redirectURL string, opts ...Option) (*Page, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("loopback: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("loopback: redirect URL %q is not an absolute http URL", redirectURL)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	p := &Page{
		redirect: u,
		loc:      u,
		storage:  storage.NewMemory(),
		open:     browser.OpenURL,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
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
}

// Open opens rawURL in the system browser. The features are ignored.
func (p *Page) Open(rawURL string, _ page.Features) (page.Popup, error) {
	p.log.Info("opening browser", "url", rawURL)
	if err := p.open(rawURL); err != nil {
		return nil, fmt.Errorf("loopback: open browser: %w", err)
	}
	return &window{page: p}, nil
}

func (p *Page) LocalStorage() storage.Storage {
	return p.storage
}

// window stands for the browser tab. The tab itself cannot be closed from
// here; closing the handle abandons the attempt.
type window struct {
	page *Page
	once sync.Once
}

func (w *window) Close() error {
	w.once.Do(func() { w.page.PostMessage(message.PopupClosed()) })
	return nil
}

// Handler serves the callback endpoint.
func (p *Page) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+p.redirect.Path, p.callback)
	return secureHeaders(mux)
}

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em">
<h1>{{.Title}}</h1>
<p>{{.Detail}}</p>
<p>You may close this window.</p>
</body>
</html>
`))

type result struct {
	Title  string
	Detail string
}

func (p *Page) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !page.HasGrant(q) && q.Get("error") == "" && q.Get("error_description") == "" {
		p.render(w, http.StatusBadRequest, result{Title: "Nothing to do", Detail: "This address only handles sign-in redirects."})
		return
	}

	full := *p.redirect
	full.RawQuery = r.URL.RawQuery
	ev := page.RedirectMessage(&full)
	p.PostMessage(ev)
	p.PostMessage(message.PopupClosed())

	if page.HasGrant(q) {
		p.render(w, http.StatusOK, result{Title: "Signed in"})
		return
	}
	detail := q.Get("error_description")
	if detail == "" {
		detail = q.Get("error")
	}
	p.render(w, http.StatusOK, result{Title: "Sign-in failed", Detail: detail})
}

func (p *Page) render(w http.ResponseWriter, status int, res result) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := resultPage.Execute(w, res); err != nil {
		p.log.Warn("could not render callback page", "err", err)
	}
}

// Serve serves the callback endpoint on ln until ctx is done. The page
// counts as loaded once it is serving.
func (p *Page) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	p.log.Info("waiting for sign-in redirect", "addr", ln.Addr().String(), "path", p.redirect.Path)
	p.Load()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the host of the redirect URL and calls Serve.
func (p *Page) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.redirect.Host)
	if err != nil {
		return fmt.Errorf("loopback: %w", err)
	}
	return p.Serve(ctx, ln)
}

var _ page.Page = (*Page)(nil)
