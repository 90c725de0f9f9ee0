package authflow

import (
	"errors"

	"github.com/mnehpets/xummpkce/event"
	"github.com/mnehpets/xummpkce/page"
	"github.com/mnehpets/xummpkce/session"
)

// remember starts validating the remembered session, if there is one.
func (t *Thread) remember() {
	rec, err := t.sessions.Load()
	switch {
	case errors.Is(err, session.ErrUnreadable):
		t.log.Warn("ignoring remembered session", "err", err)
		return
	case err != nil:
		t.Logout()
		return
	}

	t.probe = make(chan struct{})
	go t.validate(rec)
}

// validate probes the remembered token. A usable token becomes the
// auto-resolved session and is handed straight to Authorize.
func (t *Thread) validate(rec *session.Record) {
	sdk := t.newSDK(rec.JWT)
	pong, err := sdk.Ping(t.ctx)
	if err == nil && pong.Subject() == "" {
		err = errors.New("no subject claim")
	}

	if err != nil {
		t.log.Info("remembered session is not valid", "err", err)
		t.Logout()
		t.endProbe(nil)
		return
	}
	t.endProbe(&Flow{JWT: rec.JWT, SDK: sdk, Me: rec.Me})

	a, err := t.Authorize(t.ctx)
	if err != nil {
		return
	}
	if _, err := a.Wait(t.ctx); err == nil {
		t.events.Emit(event.Retrieved, nil)
	}
}

// endProbe publishes the outcome of the probe and releases its waiters.
func (t *Thread) endProbe(auto *Flow) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.autoResolved = auto
	if t.redirect != nil {
		// Logging out a stale session must not cost the redirect its mode.
		t.mobileRedirect = true
	}
	close(t.probe)
	t.probe = nil
}

// completeRedirect handles a page that was itself the redirect target. It
// replays the redirect as the message the sign-in window would have posted.
func (t *Thread) completeRedirect() {
	// Let a running probe finish so the replay sees its outcome.
	t.mu.Lock()
	probe := t.probe
	t.mu.Unlock()
	if probe != nil {
		select {
		case <-probe:
		case <-t.ctx.Done():
			return
		}
	}
	t.mu.Lock()
	t.mobileRedirect = true
	t.mu.Unlock()

	a, err := t.Authorize(t.ctx)
	if err != nil {
		return
	}
	t.mu.Lock()
	t.replay = a
	t.mu.Unlock()
	t.log.Info("completing redirect", "attempt", a.ID())
	t.page.PostMessage(page.RedirectMessage(t.redirect))
}
