// Package identity is the thin client for the provider's identity API: the
// signed-in user's profile, and an SDK handle bound to an access token that
// can probe the token and expose its claims.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const (
	DefaultPingURL     = "https://xumm.app/api/v1/jwt/ping"
	DefaultUserInfoURL = "https://oauth2.xumm.app/userinfo"
)

// maxBodyBytes bounds the API responses we are willing to read.
const maxBodyBytes = 1 << 20

// Me is the user-info profile of the signed-in account.
type Me struct {
	Sub             string  `json:"sub"`
	Picture         string  `json:"picture"`
	Account         string  `json:"account"`
	Name            string  `json:"name,omitempty"`
	Domain          string  `json:"domain,omitempty"`
	Blocked         bool    `json:"blocked"`
	Source          string  `json:"source"`
	KYCApproved     bool    `json:"kycApproved"`
	ProSubscription bool    `json:"proSubscription"`
	Email           string  `json:"email,omitempty"`
	NetworkType     string  `json:"networkType,omitempty"`
	NetworkEndpoint string  `json:"networkEndpoint,omitempty"`
	NetworkID       int     `json:"networkId,omitempty"`
	Profile         *Handle `json:"profile,omitempty"`
}

// Handle is the public profile handle attached to an account, if any.
type Handle struct {
	Slug         string `json:"slug,omitempty"`
	URL          string `json:"profileUrl,omitempty"`
	AccountAlias string `json:"accountAlias,omitempty"`
	OwnerAlias   string `json:"ownerAlias,omitempty"`
}

// Claims are the decoded claims of a provider-issued access token.
type Claims struct {
	jwt.Claims
	ClientID    string `json:"client_id,omitempty"`
	Scope       string `json:"scope,omitempty"`
	State       string `json:"state,omitempty"`
	AppUUIDv4   string `json:"app_uuidv4,omitempty"`
	AppName     string `json:"app_name,omitempty"`
	PayloadUUID string `json:"payload_uuidv4,omitempty"`
	UserToken   string `json:"usertoken_uuidv4,omitempty"`
	NetworkType string `json:"network_type,omitempty"`
}

// Pong is the response of the token probe.
type Pong struct {
	Pong     bool    `json:"pong"`
	ClientID string  `json:"client_id,omitempty"`
	State    string  `json:"state,omitempty"`
	Scope    string  `json:"scope,omitempty"`
	JWTData  *Claims `json:"jwtData,omitempty"`
}

// Subject returns the subject claim reported by the probe, or "".
func (p *Pong) Subject() string {
	if p == nil || p.JWTData == nil {
		return ""
	}
	return p.JWTData.Subject
}

// APIError is a non-2xx response from the identity API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("identity: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("identity: %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

var ErrNoToken = errors.New("identity: empty access token")

// tokenAlgorithms are the signature algorithms accepted when decoding claims.
var tokenAlgorithms = []jose.SignatureAlgorithm{
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.EdDSA,
}

// SDK is a handle bound to one access token.
type SDK struct {
	jwt     string
	client  *http.Client
	pingURL string
}

// Option configures an SDK.
type Option func(*SDK)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *SDK) {
		if c != nil {
			s.client = c
		}
	}
}

// WithPingURL overrides the probe endpoint.
func WithPingURL(u string) Option {
	return func(s *SDK) {
		s.pingURL = u
	}
}

// New returns an SDK handle for token.
func New(token string, opts ...Option) *SDK {
	s := &SDK{
		jwt:     token,
		client:  http.DefaultClient,
		pingURL: DefaultPingURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JWT returns the access token the handle is bound to.
func (s *SDK) JWT() string {
	if s == nil {
		return ""
	}
	return s.jwt
}

// Claims decodes the token payload. The signature is not verified; the
// provider does that on every API call.
func (s *SDK) Claims() (*Claims, error) {
	if s == nil || s.jwt == "" {
		return nil, ErrNoToken
	}
	tok, err := jwt.ParseSigned(s.jwt, tokenAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("identity: parse token: %w", err)
	}
	var c Claims
	if err := tok.UnsafeClaimsWithoutVerification(&c); err != nil {
		return nil, fmt.Errorf("identity: decode claims: %w", err)
	}
	return &c, nil
}

// Ping asks the provider whether the token is still valid.
func (s *SDK) Ping(ctx context.Context) (*Pong, error) {
	if s == nil || s.jwt == "" {
		return nil, ErrNoToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pingURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.jwt)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: ping: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("identity: ping: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	var p Pong
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("identity: decode ping: %w", err)
	}
	return &p, nil
}
