// Package page describes the host document the sign-in flow runs in: its
// address bar, its popups, its window-level message bus, its load state and
// its local storage.
//
// A browser document is the obvious host. loopback.Page is a native one, and
// pagetest.Page is an in-memory one for tests.
package page

import (
	"fmt"
	"net/url"

	"github.com/mnehpets/xummpkce/message"
	"github.com/mnehpets/xummpkce/storage"
)

// Popup is a handle to an opened sign-in window.
type Popup interface {
	Close() error
}

// Listener receives every message posted to the page.
type Listener func(ev message.Event)

// Page is the host document.
type Page interface {
	// Location returns a copy of the current address.
	Location() *url.URL
	// ReplaceLocation rewrites the address without navigating.
	ReplaceLocation(u *url.URL)
	// Open opens a popup window at rawURL.
	Open(rawURL string, f Features) (Popup, error)
	// AddMessageListener registers l and returns a function removing it.
	AddMessageListener(l Listener) (remove func())
	// PostMessage delivers ev to every listener before returning.
	PostMessage(ev message.Event)
	// OnLoad runs fn once the document has finished loading, immediately if
	// it already has.
	OnLoad(fn func())
	// LocalStorage returns the page's persistent key/value store.
	LocalStorage() storage.Storage
}

// Features is the window chrome of a popup.
type Features struct {
	Name       string
	Width      int
	Height     int
	Resizable  bool
	Scrollbars bool
	Toolbar    bool
	Location   bool
	Status     bool
	Menubar    bool
	Titlebar   bool
}

// SignIn is the fixed chrome of the sign-in popup.
var SignIn = Features{Name: "XummPkceLogin", Width: 600, Height: 790}

func yesno(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// String renders f as a window.open feature string.
func (f Features) String() string {
	return fmt.Sprintf("directories=no,titlebar=%s,toolbar=%s,location=%s,status=%s,menubar=%s,scrollbars=%s,resizable=%s,width=%d,height=%d",
		yesno(f.Titlebar), yesno(f.Toolbar), yesno(f.Location), yesno(f.Status),
		yesno(f.Menubar), yesno(f.Scrollbars), yesno(f.Resizable), f.Width, f.Height)
}

// OAuthParams are the query parameters removed from the address once a
// flow has consumed them.
var OAuthParams = []string{
	"authorization_code", "code", "scope", "state",
	"access_token", "refresh_token", "token_type", "expires_in",
}

// StripOAuthParams returns a copy of u without OAuthParams.
func StripOAuthParams(u *url.URL) *url.URL {
	c := *u
	q := c.Query()
	for _, k := range OAuthParams {
		q.Del(k)
	}
	c.RawQuery = q.Encode()
	c.ForceQuery = false
	return &c
}

// IsRedirect reports whether q carries the outcome of a full-page redirect
// back from the provider.
func IsRedirect(q url.Values) bool {
	return q.Get("authorization_code") != "" || q.Get("access_token") != "" || q.Get("error_description") != ""
}

// HasGrant reports whether q carries an authorization code or access token.
func HasGrant(q url.Values) bool {
	return q.Get("authorization_code") != "" || q.Get("code") != "" || q.Get("access_token") != ""
}

// RedirectMessage builds the message the sign-in window would have posted for
// a redirect to u.
func RedirectMessage(u *url.URL) message.Event {
	q := u.Query()
	if HasGrant(q) {
		return message.Resolved(u.String())
	}
	return message.Rejected(q.Get("error"), q.Get("error_code"), q.Get("error_description"))
}

