package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrNotFound indicates no bearer token is stored.
	ErrNotFound = errors.New("credential not found")
	// ErrEmptyToken is returned when asked to store a blank token.
	ErrEmptyToken = errors.New("token must not be empty")
)

// TokenStore holds at most one bearer token.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

// NewMemoryStore returns a TokenStore that lives for the duration of the process.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// MemoryStore implements TokenStore for tests and one-shot commands.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// Token returns the stored token or ErrNotFound.
func (s *MemoryStore) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNotFound
	}
	return s.token, nil
}

// SetToken replaces any previously stored token.
func (s *MemoryStore) SetToken(_ context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// DeleteToken clears the stored token. Deleting an absent token is not an error.
func (s *MemoryStore) DeleteToken(context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}
