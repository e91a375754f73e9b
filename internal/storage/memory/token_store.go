package memory

import (
	"context"
	"sort"
	"sync"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TokenDefinition // keyed by symbol
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[string]*domain.TokenDefinition),
	}
}

// Insert adds a new definition. Returns ErrDuplicateKey if symbol exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.TokenDefinition) error {
	if t == nil || t.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.Symbol]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	tokenCopy := *t
	s.data[t.Symbol] = &tokenCopy
	return nil
}

// GetBySymbol retrieves a definition. Returns ErrNotFound if not exists.
func (s *TokenStore) GetBySymbol(_ context.Context, symbol string) (*domain.TokenDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[symbol]
	if !exists {
		return nil, storage.ErrNotFound
	}

	tokenCopy := *t
	return &tokenCopy, nil
}

// List retrieves all definitions ordered by symbol.
func (s *TokenStore) List(_ context.Context) ([]*domain.TokenDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TokenDefinition, 0, len(s.data))
	for _, t := range s.data {
		tokenCopy := *t
		result = append(result, &tokenCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TokenStore = (*TokenStore)(nil)
