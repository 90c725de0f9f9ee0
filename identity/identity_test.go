package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte("0123456789abcdef0123456789abcdef")}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	claims := jwt.Claims{
		Subject:  sub,
		Issuer:   "https://oauth2.xumm.app",
		Expiry:   jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	raw, err := jwt.Signed(signer).Claims(claims).Claims(map[string]interface{}{"client_id": "client-id", "app_name": "demo"}).Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return raw
}

func TestSDK_Claims(t *testing.T) {
	tok := signedToken(t, "rUser")
	c, err := New(tok).Claims()
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if c.Subject != "rUser" || c.ClientID != "client-id" || c.AppName != "demo" {
		t.Errorf("claims: got %+v", c)
	}
}

func TestSDK_Claims_Errors(t *testing.T) {
	if _, err := New("").Claims(); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty token: got %v", err)
	}
	if _, err := New("not-a-jwt").Claims(); err == nil {
		t.Error("garbage token: expected error")
	}
}

func TestSDK_Ping(t *testing.T) {
	tok := signedToken(t, "rUser")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+tok {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"bad token"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pong":      true,
			"client_id": "client-id",
			"jwtData":   map[string]interface{}{"sub": "rUser", "client_id": "client-id"},
		})
	}))
	defer srv.Close()

	p, err := New(tok, WithPingURL(srv.URL), WithHTTPClient(srv.Client())).Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !p.Pong || p.Subject() != "rUser" {
		t.Errorf("pong: got %+v", p)
	}

	_, err = New("other", WithPingURL(srv.URL)).Ping(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("Ping with wrong token: got %v want 401 APIError", err)
	}
}

func TestPong_SubjectNil(t *testing.T) {
	var p *Pong
	if p.Subject() != "" {
		t.Error("nil pong should have empty subject")
	}
	if (&Pong{Pong: true}).Subject() != "" {
		t.Error("pong without jwtData should have empty subject")
	}
}

func TestUserInfo_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"u1","account":"rAccount","picture":"https://example.com/p.png","source":"xumm","kycApproved":true,"blocked":false,"proSubscription":false,"networkType":"MAINNET","profile":{"slug":"alice"}}`))
	}))
	defer srv.Close()

	ui := NewUserInfo(srv.URL, srv.Client())
	me, err := ui.Fetch(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if me.Sub != "u1" || me.Account != "rAccount" || !me.KYCApproved || me.NetworkType != "MAINNET" {
		t.Errorf("me: got %+v", me)
	}
	if me.Profile == nil || me.Profile.Slug != "alice" {
		t.Errorf("profile: got %+v", me.Profile)
	}

	if _, err := ui.Fetch(context.Background(), "bad"); err == nil {
		t.Error("Fetch with bad token: expected error")
	}
	if _, err := ui.Fetch(context.Background(), ""); !errors.Is(err, ErrNoToken) {
		t.Errorf("Fetch with empty token: got %v", err)
	}
}
