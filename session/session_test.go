package session

import (
	"errors"
	"testing"

	"github.com/mnehpets/xummpkce/identity"
	"github.com/mnehpets/xummpkce/storage"
)

func TestStore_RoundTrip(t *testing.T) {
	st := storage.NewMemory()
	s := NewStore(st)
	if _, err := s.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load empty: got %v want ErrNoSession", err)
	}

	rec := &Record{JWT: "tok1", Me: &identity.Me{Sub: "u1", Account: "rAccount"}}
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := st.Get(Key)
	if raw != `{"jwt":"tok1","me":{"sub":"u1","picture":"","account":"rAccount","blocked":false,"source":"","kycApproved":false,"proSubscription":false}}` {
		t.Errorf("stored JSON: got %s", raw)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.JWT != "tok1" || got.Me == nil || got.Me.Sub != "u1" {
		t.Errorf("Load: got %+v", got)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load after Clear: got %v", err)
	}
}

func TestStore_LoadBadRecords(t *testing.T) {
	for _, raw := range []string{"{", "null", `{"jwt":""}`, `{"me":{"sub":"u1"}}`, `{"jwt":42}`} {
		st := storage.NewMemory()
		st.Set(Key, raw)
		if _, err := NewStore(st).Load(); !errors.Is(err, ErrNoSession) {
			t.Errorf("Load(%q): got %v want ErrNoSession", raw, err)
		}
	}
}

func TestStore_LoadUnreadable(t *testing.T) {
	for _, raw := range []string{"{", `{"jwt":42}`, "[]"} {
		st := storage.NewMemory()
		st.Set(Key, raw)
		if _, err := NewStore(st).Load(); !errors.Is(err, ErrUnreadable) {
			t.Errorf("Load(%q): got %v want ErrUnreadable", raw, err)
		}
	}
	st := storage.NewMemory()
	if _, err := NewStore(st).Load(); errors.Is(err, ErrUnreadable) {
		t.Error("missing record reported as unreadable")
	}
}
