package authflow

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mnehpets/xummpkce/identity"
	"github.com/mnehpets/xummpkce/page"
	"github.com/mnehpets/xummpkce/pkce"
	"github.com/mnehpets/xummpkce/storage"
)

// DefaultCloseGrace is how long a popup-closed signal waits for a
// resolution that may still be in flight before it rejects the attempt.
const DefaultCloseGrace = 750 * time.Millisecond

// Setup is either a RedirectURL or an Options value. A nil Setup means
// defaults throughout.
type Setup interface {
	setup()
}

// RedirectURL sets only the redirect URL.
type RedirectURL string

func (RedirectURL) setup() {}

// Options sets any subset of the configuration. Zero fields take the
// default.
type Options struct {
	// RedirectURL defaults to the page location.
	RedirectURL string
	// RememberJWT controls whether a successful sign-in is persisted and
	// picked up again on the next construction. Defaults to true.
	RememberJWT *bool
	// Storage defaults to the page's local storage.
	Storage storage.Storage
	// Implicit selects the implicit grant.
	Implicit bool

	Logger     *slog.Logger
	HTTPClient *http.Client
	Endpoints  Endpoints
	// CloseGrace defaults to DefaultCloseGrace.
	CloseGrace time.Duration
}

func (Options) setup() {}

// Bool returns a pointer to b, for Options.RememberJWT.
func Bool(b bool) *bool {
	return &b
}

// Endpoints are the provider URLs. Empty fields take the provider defaults.
type Endpoints struct {
	Auth     string
	Token    string
	UserInfo string
	Ping     string
}

func (e Endpoints) withDefaults() Endpoints {
	if e.Auth == "" {
		e.Auth = pkce.DefaultAuthURL
	}
	if e.Token == "" {
		e.Token = pkce.DefaultTokenURL
	}
	if e.UserInfo == "" {
		e.UserInfo = identity.DefaultUserInfoURL
	}
	if e.Ping == "" {
		e.Ping = identity.DefaultPingURL
	}
	return e
}

type config struct {
	clientID    string
	redirectURL string
	remember    bool
	storage     storage.Storage
	implicit    bool
	logger      *slog.Logger
	client      *http.Client
	endpoints   Endpoints
	closeGrace  time.Duration
}

func resolve(clientID string, pg page.Page, s Setup) config {
	c := config{
		clientID:    clientID,
		redirectURL: pg.Location().String(),
		remember:    true,
		storage:     pg.LocalStorage(),
		logger:      slog.Default(),
		closeGrace:  DefaultCloseGrace,
	}
	switch s := s.(type) {
	case RedirectURL:
		c.redirectURL = string(s)
	case Options:
		c.apply(s)
	case *Options:
		if s != nil {
			c.apply(*s)
		}
	}
	if c.storage == nil {
		c.storage = storage.NewMemory()
	}
	c.endpoints = c.endpoints.withDefaults()
	return c
}

func (c *config) apply(o Options) {
	if o.RedirectURL != "" {
		c.redirectURL = o.RedirectURL
	}
	if o.RememberJWT != nil {
		c.remember = *o.RememberJWT
	}
	if o.Storage != nil {
		c.storage = o.Storage
	}
	c.implicit = o.Implicit
	if o.Logger != nil {
		c.logger = o.Logger
	}
	c.client = o.HTTPClient
	c.endpoints = o.Endpoints
	if o.CloseGrace > 0 {
		c.closeGrace = o.CloseGrace
	}
}
