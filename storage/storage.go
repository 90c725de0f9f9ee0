// Package storage provides the string key/value stores that hold the
// remembered session and the in-flight PKCE verifier.
//
// Every implementation satisfies Storage. Get returns ErrNotFound for a
// missing key; Remove of a missing key is not an error.
package storage

import (
	"errors"

	gocache "github.com/patrickmn/go-cache"
)

var ErrNotFound = errors.New("storage: key not found")

// Storage is a string key/value store in the shape of browser local storage.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// Memory is a process-local Storage. Entries never expire.
type Memory struct {
	c *gocache.Cache
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, 0)}
}

func (m *Memory) Get(key string) (string, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *Memory) Set(key, value string) error {
	m.c.Set(key, value, gocache.NoExpiration)
	return nil
}

func (m *Memory) Remove(key string) error {
	m.c.Delete(key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	return m.c.ItemCount()
}

var _ Storage = (*Memory)(nil)
