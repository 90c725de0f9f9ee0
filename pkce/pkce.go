// Package pkce implements the client half of the OAuth2 authorization-code
// grant with PKCE (RFC 7636) against a fixed provider, plus the implicit
// grant variant.
//
// The code verifier and state generated for the authorize URL are kept in a
// storage.Storage rather than in memory, so a flow survives a full page
// redirect.
package pkce

import (
	"context"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mnehpets/xummpkce/storage"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://oauth2.xumm.app/auth"
	DefaultTokenURL = "https://oauth2.xumm.app/token"
	DefaultScope    = "XummPkce"
)

// Storage keys.
const (
	VerifierKey = "pkce_code_verifier"
	StateKey    = "pkce_state"
)

var (
	ErrStateMismatch   = errors.New("pkce: state mismatch")
	ErrMissingCode     = errors.New("pkce: redirect carries no authorization code")
	ErrMissingVerifier = errors.New("pkce: no code verifier stored")
)

// DefaultEndpoint is the provider's authorize and token endpoint pair.
var DefaultEndpoint = oauth2.Endpoint{
	AuthURL:   DefaultAuthURL,
	TokenURL:  DefaultTokenURL,
	AuthStyle: oauth2.AuthStyleInParams,
}

// ProviderError is an error reported by the identity provider.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Code != "" {
		return e.Code
	}
	return "provider error"
}

// TokenResponse is the outcome of an exchange. A response may carry an
// error even when the exchange call itself succeeded; check Err.
type TokenResponse struct {
	AccessToken      string
	TokenType        string
	ExpiresIn        int64
	Scope            string
	Error            string
	ErrorDescription string
}

// Err returns a *ProviderError if the response carries an error.
func (r *TokenResponse) Err() error {
	if r == nil {
		return errors.New("pkce: nil token response")
	}
	if r.Error == "" && r.ErrorDescription == "" {
		return nil
	}
	return &ProviderError{Code: r.Error, Description: r.ErrorDescription}
}

// Config configures a Codec.
type Config struct {
	ClientID    string
	RedirectURL string
	// Endpoint defaults to DefaultEndpoint.
	Endpoint oauth2.Endpoint
	// Scopes defaults to DefaultScope.
	Scopes []string
	// Storage holds the verifier and state between AuthorizeURL and Exchange.
	Storage storage.Storage
	// Implicit selects the implicit grant instead of the authorization code grant.
	Implicit bool
	// HTTPClient is used for the token request. nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Codec builds authorize URLs and exchanges redirects for tokens.
type Codec struct {
	config   *oauth2.Config
	storage  storage.Storage
	implicit bool
	client   *http.Client
}

// New returns a Codec. A nil Storage gets a process-local one.
func New(cfg Config) *Codec {
	ep := cfg.Endpoint
	if ep.AuthURL == "" && ep.TokenURL == "" {
		ep = DefaultEndpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}
	st := cfg.Storage
	if st == nil {
		st = storage.NewMemory()
	}
	return &Codec{
		config: &oauth2.Config{
			ClientID:    cfg.ClientID,
			Endpoint:    ep,
			RedirectURL: cfg.RedirectURL,
			Scopes:      scopes,
		},
		storage:  st,
		implicit: cfg.Implicit,
		client:   cfg.HTTPClient,
	}
}

// AuthorizeURL generates a fresh verifier and state, stores both, and
// returns the provider URL to open.
func (c *Codec) AuthorizeURL() (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("pkce: generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()
	if err := c.storage.Set(StateKey, state); err != nil {
		return "", fmt.Errorf("pkce: store state: %w", err)
	}
	if err := c.storage.Set(VerifierKey, verifier); err != nil {
		return "", fmt.Errorf("pkce: store verifier: %w", err)
	}

	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if c.implicit {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", "token"))
	}
	return c.config.AuthCodeURL(state, opts...), nil
}

// Exchange turns the full redirect URI the provider sent the user back to
// into a token response.
//
// Provider errors carried by the redirect or by the token endpoint come back
// as a TokenResponse with Err() != nil and a nil error. A non-nil error means
// the exchange could not be performed at all.
func (c *Codec) Exchange(ctx context.Context, redirectURI string) (*TokenResponse, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("pkce: parse redirect: %w", err)
	}
	q := u.Query()
	if u.Fragment != "" {
		// Implicit grants may deliver their parameters in the fragment.
		if fq, err := url.ParseQuery(u.Fragment); err == nil {
			for k, v := range fq {
				if _, ok := q[k]; !ok {
					q[k] = v
				}
			}
		}
	}

	if q.Get("error") != "" || q.Get("error_description") != "" {
		return &TokenResponse{Error: q.Get("error"), ErrorDescription: q.Get("error_description")}, nil
	}

	if state := q.Get("state"); state != "" {
		stored, err := c.storage.Get(StateKey)
		if err != nil || stored != state {
			return nil, ErrStateMismatch
		}
	}

	if tok := q.Get("access_token"); tok != "" {
		c.forget()
		expires, _ := strconv.ParseInt(q.Get("expires_in"), 10, 64)
		return &TokenResponse{
			AccessToken: tok,
			TokenType:   q.Get("token_type"),
			ExpiresIn:   expires,
			Scope:       q.Get("scope"),
		}, nil
	}

	code := q.Get("code")
	if code == "" {
		code = q.Get("authorization_code")
	}
	if code == "" {
		return nil, ErrMissingCode
	}
	verifier, err := c.storage.Get(VerifierKey)
	if err != nil {
		return nil, ErrMissingVerifier
	}

	rec := &recorder{client: c.client}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, rec.httpClient())
	tok, err := c.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.ErrorCode != "" || re.ErrorDescription != "") {
			return &TokenResponse{Error: re.ErrorCode, ErrorDescription: re.ErrorDescription}, nil
		}
		// A successful status without an access token may still describe
		// the failure in its body.
		if resp := rec.tokenError(); resp != nil {
			return resp, nil
		}
		return nil, fmt.Errorf("pkce: exchange: %w", err)
	}
	c.forget()

	resp := &TokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   tok.ExpiresIn,
	}
	if s, ok := tok.Extra("scope").(string); ok {
		resp.Scope = s
	}
	if s, ok := tok.Extra("error").(string); ok {
		resp.Error = s
	}
	if s, ok := tok.Extra("error_description").(string); ok {
		resp.ErrorDescription = s
	}
	return resp, nil
}

// forget drops the stored verifier and state once they have been used.
func (c *Codec) forget() {
	_ = c.storage.Remove(VerifierKey)
	_ = c.storage.Remove(StateKey)
}

// stateLength is the number of random bytes in the state parameter.
const stateLength = 32

// generateState creates a random, URL-safe state string.
func generateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// maxTokenBody matches the limit x/oauth2 applies to token responses.
const maxTokenBody = 1 << 20

// recorder keeps the body of the token response so errors that x/oauth2
// does not surface as a RetrieveError can still be read.
type recorder struct {
	client *http.Client
	base   http.RoundTripper
	body   []byte
}

func (r *recorder) httpClient() *http.Client {
	hc := http.Client{}
	if r.client != nil {
		hc = *r.client
	}
	r.base = hc.Transport
	if r.base == nil {
		r.base = http.DefaultTransport
	}
	hc.Transport = r
	return &hc
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	r.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// tokenError decodes an error carried by the recorded body, or returns nil.
func (r *recorder) tokenError() *TokenResponse {
	var v struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(r.body, &v); err != nil {
		if q, err := url.ParseQuery(string(r.body)); err == nil {
			v.Error, v.ErrorDescription = q.Get("error"), q.Get("error_description")
		}
	}
	if v.Error == "" && v.ErrorDescription == "" {
		return nil
	}
	return &TokenResponse{Error: v.Error, ErrorDescription: v.ErrorDescription}
}
