package memory

import (
	"context"
	"sort"
	"sync"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Account // keyed by name
	shares map[string][]*domain.Share // keyed by account name
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data:   make(map[string]*domain.Account),
		shares: make(map[string][]*domain.Share),
	}
}

// Insert adds a new account. Returns ErrDuplicateKey if name exists.
func (s *AccountStore) Insert(_ context.Context, a *domain.Account) error {
	if a == nil || a.Name == "" || a.Principal == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.Name]; exists {
		return storage.ErrDuplicateKey
	}

	accountCopy := *a
	s.data[a.Name] = &accountCopy
	return nil
}

// GetByName retrieves an account. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByName(_ context.Context, name string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[name]
	if !exists {
		return nil, storage.ErrNotFound
	}

	accountCopy := *a
	return &accountCopy, nil
}

// List retrieves all accounts ordered by name.
func (s *AccountStore) List(_ context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Account, 0, len(s.data))
	for _, a := range s.data {
		accountCopy := *a
		result = append(result, &accountCopy)
	}
	sortAccounts(result)
	return result, nil
}

// ListByHost retrieves accounts hosted by a principal, ordered by name.
func (s *AccountStore) ListByHost(_ context.Context, host domain.Principal) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, a := range s.data {
		if a.Host == host {
			accountCopy := *a
			result = append(result, &accountCopy)
		}
	}
	sortAccounts(result)
	return result, nil
}

// InsertShare records a share. Sharing twice with the same counterparty is a no-op.
func (s *AccountStore) InsertShare(_ context.Context, sh *domain.Share) error {
	if sh == nil || sh.AccountName == "" || sh.Counterparty == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sh.AccountName]; !exists {
		return storage.ErrNotFound
	}

	for _, existing := range s.shares[sh.AccountName] {
		if existing.Counterparty == sh.Counterparty {
			return nil
		}
	}

	shareCopy := *sh
	s.shares[sh.AccountName] = append(s.shares[sh.AccountName], &shareCopy)
	return nil
}

// GetShares retrieves all shares of an account ordered by shared_at ASC.
func (s *AccountStore) GetShares(_ context.Context, accountName string) ([]*domain.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Share, 0, len(s.shares[accountName]))
	for _, sh := range s.shares[accountName] {
		shareCopy := *sh
		result = append(result, &shareCopy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SharedAt < result[j].SharedAt
	})
	return result, nil
}

func sortAccounts(accounts []*domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Name < accounts[j].Name
	})
}

var _ storage.AccountStore = (*AccountStore)(nil)
