package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrSealFormat  = errors.New("storage: invalid sealed value format")
	ErrSealInvalid = errors.New("storage: invalid sealed value")
	ErrSealConfig  = errors.New("storage: invalid sealed storage configuration")
)

// DefaultKeySize is the key size for the default AEAD (XChaCha20-Poly1305).
const DefaultKeySize = chacha20poly1305.KeySize

// Sealed encrypts values before handing them to an inner Storage.
//
// Format: [keyID] "." base64url(nonce || AEAD.Seal(plaintext, aad))
// with aad = "storage:" + key, so a sealed value cannot be moved to a
// different key. keys holds every accepted key; keyID selects the one used
// for sealing, which allows rotation.
type Sealed struct {
	inner   Storage
	keyID   string
	keys    map[string][]byte
	newAEAD func([]byte) (cipher.AEAD, error)
}

// SealedOption configures a Sealed store.
type SealedOption func(*Sealed)

// WithAEAD replaces the default XChaCha20-Poly1305 AEAD factory.
func WithAEAD(f func([]byte) (cipher.AEAD, error)) SealedOption {
	return func(s *Sealed) {
		s.newAEAD = f
	}
}

// NewSealed wraps inner. Every key in keys is validated against the AEAD.
func NewSealed(inner Storage, keyID string, keys map[string][]byte, opts ...SealedOption) (*Sealed, error) {
	s := &Sealed{
		inner:   inner,
		keyID:   keyID,
		keys:    keys,
		newAEAD: chacha20poly1305.NewX,
	}
	for _, opt := range opts {
		opt(s)
	}
	if inner == nil || s.newAEAD == nil {
		return nil, ErrSealConfig
	}
	if keys == nil {
		return nil, errors.New("storage: keys must not be nil")
	}
	if _, ok := keys[keyID]; !ok {
		return nil, errors.New("storage: keyID not found in keys")
	}
	for id, k := range keys {
		if _, err := s.newAEAD(k); err != nil {
			return nil, fmt.Errorf("storage: invalid key %s: %w", id, err)
		}
	}
	return s, nil
}

func aad(key string) []byte {
	return []byte("storage:" + key)
}

func (s *Sealed) Get(key string) (string, error) {
	v, err := s.inner.Get(key)
	if err != nil {
		return "", err
	}
	return s.open(key, v)
}

func (s *Sealed) Set(key, value string) error {
	v, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.Set(key, v)
}

func (s *Sealed) Remove(key string) error {
	return s.inner.Remove(key)
}

func (s *Sealed) seal(key, plain string) (string, error) {
	aead, err := s.newAEAD(s.keys[s.keyID])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), aad(key))
	return s.keyID + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *Sealed) open(key, value string) (string, error) {
	keyID, encB64, ok := strings.Cut(value, ".")
	if !ok || keyID == "" || encB64 == "" {
		return "", ErrSealFormat
	}
	k, ok := s.keys[keyID]
	if !ok {
		return "", ErrSealInvalid
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encB64)
	if err != nil {
		return "", ErrSealFormat
	}
	aead, err := s.newAEAD(k)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return "", ErrSealFormat
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, aad(key))
	if err != nil {
		return "", ErrSealInvalid
	}
	return string(plain), nil
}

var _ Storage = (*Sealed)(nil)
