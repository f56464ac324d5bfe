// Package store is the durable side of the session: a small key-value
// abstraction with an in-memory and a bbolt implementation, and the
// TokenStore adapter that mirrors the bearer token into it.
package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has never been written or was purged.
var ErrNotFound = errors.New("key not found")

// Well-known keys.
const (
	KeyAccessToken      = "access_token"
	KeyFederatedSession = "federated_session"
)

// Store is durable client-side key-value storage.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(key string) (string, error)

	// Put creates or replaces the value for key.
	Put(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Clear removes every key.
	Clear() error

	Close() error
}

// TokenStore mirrors the session's bearer token into a Store.
type TokenStore struct {
	store Store
}

func NewTokenStore(s Store) *TokenStore {
	return &TokenStore{store: s}
}

// Load returns the persisted token, or "" with ErrNotFound when there is none.
func (t *TokenStore) Load() (string, error) {
	value, err := t.store.Get(KeyAccessToken)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

func (t *TokenStore) Save(token string) error {
	if token == "" {
		return errors.New("[TokenStore Save] token cannot be empty")
	}
	if err := t.store.Put(KeyAccessToken, token); err != nil {
		return fmt.Errorf("[TokenStore Save] %w", err)
	}
	return nil
}

// Remove deletes only the token.
func (t *TokenStore) Remove() error {
	if err := t.store.Delete(KeyAccessToken); err != nil {
		return fmt.Errorf("[TokenStore Remove] %w", err)
	}
	return nil
}

// Purge drops the token together with every other locally cached value.
func (t *TokenStore) Purge() error {
	if err := t.store.Clear(); err != nil {
		return fmt.Errorf("[TokenStore Purge] %w", err)
	}
	return nil
}
