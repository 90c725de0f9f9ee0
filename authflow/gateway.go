package authflow

import (
	"errors"
	"time"

	"github.com/mnehpets/xummpkce/message"
	"github.com/mnehpets/xummpkce/session"
)

// receive is the page message listener. It never blocks on I/O.
func (t *Thread) receive(ev message.Event) {
	m, err := message.Classify(ev)
	if err != nil {
		if !errors.Is(err, message.ErrNotJSON) && !errors.Is(err, message.ErrOrigin) {
			t.log.Warn("ignoring message", "origin", ev.Origin, "err", err)
		}
		return
	}

	switch m.Kind {
	case message.KindSignRequest:
		t.log.Debug("sign-in window ready")
	case message.KindResolved:
		// Latched before the exchange starts so a close signal arriving
		// meanwhile does not reject the attempt.
		t.mu.Lock()
		t.resolved = true
		t.mu.Unlock()
		go t.exchange(m.Options.FullRedirectURI)
	case message.KindRejected:
		desc := m.Description()
		if desc == "" {
			desc = DefaultRejection
		}
		perr := &ProviderError{Description: desc}
		if m.Options != nil {
			perr.Code = string(m.Options.Error)
		}
		t.reject(t.current(), perr)
	case message.KindPopupClosed:
		time.AfterFunc(t.cfg.closeGrace, t.closeCheck)
	default:
		t.log.Debug("unexpected message, skipping", "source", m.Source)
	}
}

// exchange turns the redirect into a Flow and settles the current attempt.
func (t *Thread) exchange(redirectURI string) {
	resp, err := t.codec.Exchange(t.ctx, redirectURI)
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		t.reject(t.current(), err)
		return
	}

	me, err := t.userInfo.Fetch(t.ctx, resp.AccessToken)
	if err != nil {
		t.reject(t.current(), err)
		return
	}

	a := t.current()
	if a == nil || a.Settled() {
		t.log.Info("no pending attempt, discarding token")
		return
	}
	if t.cfg.remember {
		rec := &session.Record{JWT: resp.AccessToken, Me: me}
		if err := t.sessions.Save(rec); err != nil {
			t.log.Warn("could not remember session", "attempt", a.ID(), "err", err)
		}
	}
	t.resolve(a, &Flow{JWT: resp.AccessToken, SDK: t.newSDK(resp.AccessToken), Me: me})
}
