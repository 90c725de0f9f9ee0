// Package authflow drives the sign-in flow: it opens the provider's sign-in
// window, listens for the window's completion messages, exchanges the
// redirect for an access token, fetches the user's profile and settles the
// current Attempt with the result.
//
// A Thread owns all of that for one page. Construct it through a Registry so
// a page never ends up with two Threads racing over the same messages.
package authflow

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"

	"github.com/mnehpets/xummpkce/event"
	"github.com/mnehpets/xummpkce/identity"
	"github.com/mnehpets/xummpkce/page"
	"github.com/mnehpets/xummpkce/pkce"
	"github.com/mnehpets/xummpkce/session"
	"golang.org/x/oauth2"
)

var (
	ErrWindowClosed = errors.New("Sign In window closed")
	ErrNoPage       = errors.New("authflow: no page")
)

// DefaultRejection is the description of a rejection message that carries
// none.
const DefaultRejection = "Payload rejected"

// ProviderError is an error reported by the provider, either through a
// rejection message or in the token response.
type ProviderError = pkce.ProviderError

// Thread is the sign-in state machine of one page.
type Thread struct {
	cfg      config
	page     page.Page
	codec    *pkce.Codec
	sessions *session.Store
	userInfo *identity.UserInfo
	events   *event.Emitter
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	detach func()

	// redirect is the page address at construction when it carried the
	// outcome of a full-page redirect.
	redirect *url.URL
	loadOnce sync.Once

	mu                   sync.Mutex
	attempt              *Attempt
	popup                page.Popup
	resolved             bool
	resolvedSuccessfully bool
	mobileRedirect       bool
	autoResolved         *Flow
	// replay is the attempt completing the construction-time redirect.
	replay *Attempt
	// probe is non-nil while the remembered-session probe runs and is
	// closed when it finishes.
	probe chan struct{}
}

// NewThread starts the state machine on pg. Most callers want
// Registry.New instead.
func NewThread(clientID string, pg page.Page, setup Setup) *Thread {
	cfg := resolve(clientID, pg, setup)
	t := &Thread{
		cfg:  cfg,
		page: pg,
		codec: pkce.New(pkce.Config{
			ClientID:    clientID,
			RedirectURL: cfg.redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.endpoints.Auth,
				TokenURL:  cfg.endpoints.Token,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Storage:    cfg.storage,
			Implicit:   cfg.implicit,
			HTTPClient: cfg.client,
		}),
		sessions: session.NewStore(cfg.storage),
		userInfo: identity.NewUserInfo(cfg.endpoints.UserInfo, cfg.client),
		events:   event.NewEmitter(),
		log:      cfg.logger.With("client_id", clientID),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	if loc := pg.Location(); page.IsRedirect(loc.Query()) {
		t.redirect = loc
	}

	if cfg.remember {
		t.remember()
	}
	if t.redirect != nil {
		t.mu.Lock()
		t.mobileRedirect = true
		t.mu.Unlock()
	}

	t.detach = pg.AddMessageListener(t.receive)

	if t.redirect != nil {
		pg.OnLoad(func() {
			t.loadOnce.Do(func() { go t.completeRedirect() })
		})
	}
	return t
}

// Close stops listening for messages and cancels in-flight requests.
func (t *Thread) Close() {
	t.cancel()
	if t.detach != nil {
		t.detach()
	}
}

// AuthorizeURL returns a fresh provider authorize URL.
func (t *Thread) AuthorizeURL() (string, error) {
	return t.codec.AuthorizeURL()
}

// Authorize starts a sign-in attempt and returns it.
//
// If the previous attempt succeeded, that attempt is returned unchanged.
// With a remembered session the returned attempt has already settled.
// Otherwise the sign-in window is opened and the attempt settles when the
// window reports back. The error is non-nil only if ctx ends while a
// remembered session is still being validated.
func (t *Thread) Authorize(ctx context.Context) (*Attempt, error) {
	t.mu.Lock()
	if t.resolvedSuccessfully && t.attempt != nil {
		a := t.attempt
		t.mu.Unlock()
		return a, nil
	}
	t.resolved = false
	probe := t.probe
	t.mu.Unlock()

	if probe != nil {
		select {
		case <-probe:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	if t.resolvedSuccessfully && t.attempt != nil {
		a := t.attempt
		t.mu.Unlock()
		return a, nil
	}
	a := newAttempt()
	t.attempt = a
	auto := t.autoResolved
	openPopup := !t.mobileRedirect && auto == nil
	if auto != nil {
		a.settle(auto, nil)
		t.resolved = true
	}
	t.mu.Unlock()

	log := t.log.With("attempt", a.ID())
	var openErr error
	if openPopup {
		openErr = t.openPopup(log)
	}
	t.page.ReplaceLocation(page.StripOAuthParams(t.page.Location()))

	switch {
	case auto != nil:
		log.Info("auto resolved remembered session")
		t.events.Emit(event.Success, nil)
	case openErr != nil:
		t.reject(a, openErr)
	}
	return a, nil
}

func (t *Thread) openPopup(log *slog.Logger) error {
	u, err := t.codec.AuthorizeURL()
	if err != nil {
		return err
	}
	p, err := t.page.Open(u, page.SignIn)
	if err != nil {
		// The attempt stays pending; the user may retry.
		log.Warn("could not open sign-in window", "err", err)
		return nil
	}
	t.mu.Lock()
	t.popup = p
	t.mu.Unlock()
	log.Info("sign-in window opened")
	return nil
}

// State returns the current attempt without starting one, or nil.
func (t *Thread) State() *Attempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempt
}

// Popup returns the last opened sign-in window, or nil.
func (t *Thread) Popup() page.Popup {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.popup
}

// Logout forgets the signed-in session, including the remembered one, and
// emits event.LoggedOut.
func (t *Thread) Logout() {
	t.mu.Lock()
	t.resolved = false
	t.resolvedSuccessfully = false
	t.autoResolved = nil
	t.mobileRedirect = false
	t.mu.Unlock()

	if err := t.sessions.Clear(); err != nil {
		t.log.Warn("could not clear remembered session", "err", err)
	}
	go t.events.Emit(event.LoggedOut, nil)
}

// On subscribes fn to kind.
func (t *Thread) On(kind event.Kind, fn event.Listener) *event.Subscription {
	return t.events.On(kind, fn)
}

// Off removes a subscription.
func (t *Thread) Off(sub *event.Subscription) {
	t.events.Off(sub)
}

func (t *Thread) current() *Attempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempt
}

// resolve settles a with f. Every successful path ends here.
func (t *Thread) resolve(a *Attempt, f *Flow) {
	if !t.settle(a, f, nil) {
		return
	}
	t.log.Info("sign-in resolved", "attempt", a.ID())
	t.events.Emit(event.Success, nil)

	t.mu.Lock()
	replayed := t.replay == a
	t.mu.Unlock()
	if replayed {
		t.events.Emit(event.Retrieved, nil)
	}
}

// reject settles a with err. Every failed path ends here.
func (t *Thread) reject(a *Attempt, err error) {
	if !t.settle(a, nil, err) {
		return
	}
	t.log.Info("sign-in rejected", "attempt", a.ID(), "err", err)
	t.events.Emit(event.Error, err)
}

// settle settles a and updates the flags in one step, so Authorize never
// sees a settled success without the short-circuit flag.
func (t *Thread) settle(a *Attempt, f *Flow, err error) bool {
	if a == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !a.settle(f, err) {
		return false
	}
	if t.attempt == a {
		t.resolved = true
		t.resolvedSuccessfully = err == nil
	}
	return true
}

func (t *Thread) newSDK(jwt string) *identity.SDK {
	return identity.New(jwt,
		identity.WithHTTPClient(t.cfg.client),
		identity.WithPingURL(t.cfg.endpoints.Ping))
}

// closeCheck rejects the current attempt unless something resolved it
// while the grace period ran.
func (t *Thread) closeCheck() {
	t.mu.Lock()
	a, resolved := t.attempt, t.resolved
	t.mu.Unlock()
	if resolved || a == nil {
		return
	}
	t.reject(a, ErrWindowClosed)
}
