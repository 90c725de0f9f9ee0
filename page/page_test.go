package page

import (
	"net/url"
	"testing"

	"github.com/mnehpets/xummpkce/message"
)

func TestFeatures_String(t *testing.T) {
	want := "directories=no,titlebar=no,toolbar=no,location=no,status=no,menubar=no,scrollbars=no,resizable=no,width=600,height=790"
	if got := SignIn.String(); got != want {
		t.Errorf("SignIn.String():\n got %s\nwant %s", got, want)
	}
}

func TestStripOAuthParams(t *testing.T) {
	u, _ := url.Parse("https://app.example/path?keep=1&code=abc&state=s&authorization_code=x&access_token=t&refresh_token=r&token_type=Bearer&expires_in=60&scope=XummPkce")
	got := StripOAuthParams(u)
	if got.String() != "https://app.example/path?keep=1" {
		t.Errorf("got %s", got)
	}
	if u.Query().Get("code") != "abc" {
		t.Error("input was modified")
	}

	u, _ = url.Parse("https://app.example/?code=abc")
	if got := StripOAuthParams(u).String(); got != "https://app.example/" {
		t.Errorf("no remaining params: got %s", got)
	}
}

func TestIsRedirect(t *testing.T) {
	tests := map[string]bool{
		"":                          false,
		"code=abc":                  false,
		"authorization_code=abc":    true,
		"access_token=xyz":          true,
		"error_description=nope":    true,
		"error=access_denied":       false,
		"keep=1&access_token=xyz&x": true,
	}
	for raw, want := range tests {
		q, _ := url.ParseQuery(raw)
		if got := IsRedirect(q); got != want {
			t.Errorf("IsRedirect(%q): got %v want %v", raw, got, want)
		}
	}
}

func TestRedirectMessage(t *testing.T) {
	u, _ := url.Parse("https://app.example/?access_token=xyz")
	m, err := message.Classify(RedirectMessage(u))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if m.Kind != message.KindResolved || m.Options.FullRedirectURI != u.String() {
		t.Errorf("grant: got %+v", m)
	}

	u, _ = url.Parse("https://app.example/?error=access_denied&error_code=403&error_description=Denied")
	m, err = message.Classify(RedirectMessage(u))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if m.Kind != message.KindRejected || m.Description() != "Denied" || m.Options.ErrorCode != "403" {
		t.Errorf("error: got %+v", m)
	}
}

func TestBus(t *testing.T) {
	var b Bus
	var got []string
	remove := b.AddMessageListener(func(ev message.Event) { got = append(got, "a:"+ev.Data) })
	b.AddMessageListener(func(ev message.Event) { got = append(got, "b:"+ev.Data) })
	b.PostMessage(message.Event{Data: "1"})
	remove()
	b.PostMessage(message.Event{Data: "2"})
	want := []string{"a:1", "b:1", "b:2"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if b.Listeners() != 1 {
		t.Errorf("Listeners: got %d want 1", b.Listeners())
	}
}

func TestBus_OnLoad(t *testing.T) {
	var b Bus
	n := 0
	b.OnLoad(func() { n++ })
	if n != 0 {
		t.Fatal("ran before Load")
	}
	b.Load()
	b.Load()
	if n != 1 {
		t.Fatalf("after Load: got %d want 1", n)
	}
	b.OnLoad(func() { n++ })
	if n != 2 {
		t.Fatal("did not run immediately once loaded")
	}
}
