// Package session persists the last successful sign-in.
//
// A Record is written only after both the token exchange and the profile
// fetch succeeded. It is stored JSON-encoded as {"jwt": ..., "me": ...}
// under a single fixed key.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mnehpets/xummpkce/identity"
	"github.com/mnehpets/xummpkce/storage"
)

// Key is the storage key of the remembered session.
const Key = "XummPkceJwt"

var (
	ErrNoSession = errors.New("session: no remembered session")
	// ErrUnreadable is returned for a record that exists but could not be
	// read or decoded. It wraps ErrNoSession.
	ErrUnreadable = fmt.Errorf("%w: unreadable record", ErrNoSession)
)

// Record is the persisted unit.
type Record struct {
	JWT string       `json:"jwt"`
	Me  *identity.Me `json:"me"`
}

// Store reads and writes the Record in a storage.Storage.
type Store struct {
	storage storage.Storage
}

// NewStore returns a Store over st.
func NewStore(st storage.Storage) *Store {
	return &Store{storage: st}
}

// Load returns the remembered Record. A missing or token-less record is
// reported as ErrNoSession, an unparsable one as ErrUnreadable.
func (s *Store) Load() (*Record, error) {
	raw, err := s.storage.Get(Key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if r.JWT == "" {
		return nil, ErrNoSession
	}
	return &r, nil
}

// Save persists r, replacing any previous Record.
func (s *Store) Save(r *Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.storage.Set(Key, string(b))
}

// Clear removes the Record.
func (s *Store) Clear() error {
	return s.storage.Remove(Key)
}
