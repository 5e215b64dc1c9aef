// Package creds defines the boundary to the external credential store.
// gridhost never persists secret values itself; widget definitions carry
// credential *requirements* and this interface resolves them at run time.
package creds

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound indicates the provider has no stored credential.
var ErrNotFound = errors.New("credential not found")

// Store resolves a provider id to its secret value.
type Store interface {
	// GetCredential returns the secret for a provider, or ErrNotFound.
	GetCredential(ctx context.Context, providerID string) (string, error)
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore creates a MemoryStore seeded with the given secrets.
func NewMemoryStore(secrets map[string]string) *MemoryStore {
	s := &MemoryStore{secrets: make(map[string]string, len(secrets))}
	for k, v := range secrets {
		s.secrets[k] = v
	}
	return s
}

// GetCredential implements Store.
func (s *MemoryStore) GetCredential(_ context.Context, providerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[providerID]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

// Set stores or replaces a provider's secret.
func (s *MemoryStore) Set(providerID, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[providerID] = secret
}
