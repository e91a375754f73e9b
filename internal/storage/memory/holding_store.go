package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

// HoldingStore is an in-memory implementation of storage.HoldingStore.
// A single RWMutex guards all state so readers never observe a commit
// half-applied.
type HoldingStore struct {
	mu       sync.RWMutex
	seq      int64
	holdings map[string]*domain.Holding            // all holdings ever produced, keyed by id
	live     map[string]map[string]*domain.Holding // symbol|owner -> id -> live holding
	commits  map[string]*domain.Commit             // keyed by commit id
	order    []string                              // commit ids in commit order
}

// NewHoldingStore creates a new in-memory holding store.
func NewHoldingStore() *HoldingStore {
	return &HoldingStore{
		holdings: make(map[string]*domain.Holding),
		live:     make(map[string]map[string]*domain.Holding),
		commits:  make(map[string]*domain.Commit),
	}
}

// liveKey generates the index key for (symbol, owner).
func liveKey(symbol, owner string) string {
	return symbol + "|" + owner
}

// Apply atomically consumes c.Consumed, inserts c.Produced and records c.
func (s *HoldingStore) Apply(_ context.Context, c *domain.Commit) error {
	if c == nil || c.ID == "" || c.Symbol == "" {
		return storage.ErrInvalidInput
	}
	if len(c.Consumed) == 0 && len(c.Produced) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: validate everything before mutating
	if _, exists := s.commits[c.ID]; exists {
		return storage.ErrDuplicateKey
	}

	seen := make(map[string]struct{}, len(c.Consumed))
	for _, id := range c.Consumed {
		if _, dup := seen[id]; dup {
			return storage.ErrInvalidInput
		}
		seen[id] = struct{}{}

		h, exists := s.holdings[id]
		if !exists {
			return storage.ErrConflict
		}
		if h.Symbol != c.Symbol {
			return storage.ErrInvalidInput
		}
		if _, isLive := s.live[liveKey(h.Symbol, h.Owner)][id]; !isLive {
			return storage.ErrConflict
		}
	}

	batch := make(map[string]struct{}, len(c.Produced))
	for _, h := range c.Produced {
		if h == nil || h.ID == "" || h.Owner == "" || h.Symbol != c.Symbol || !h.Amount.IsPositive() {
			return storage.ErrInvalidInput
		}
		if _, exists := s.holdings[h.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[h.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batch[h.ID] = struct{}{}
	}

	// Second pass: mutate
	for _, id := range c.Consumed {
		h := s.holdings[id]
		key := liveKey(h.Symbol, h.Owner)
		delete(s.live[key], id)
		if len(s.live[key]) == 0 {
			delete(s.live, key)
		}
	}

	for _, h := range c.Produced {
		s.seq++
		h.Seq = s.seq
		h.CommitID = c.ID

		holdingCopy := *h
		s.holdings[h.ID] = &holdingCopy

		key := liveKey(h.Symbol, h.Owner)
		if s.live[key] == nil {
			s.live[key] = make(map[string]*domain.Holding)
		}
		s.live[key][h.ID] = &holdingCopy
	}

	s.commits[c.ID] = copyCommit(c)
	s.order = append(s.order, c.ID)
	return nil
}

// GetLive retrieves unconsumed holdings for (symbol, owner), ordered by seq ASC.
func (s *HoldingStore) GetLive(_ context.Context, symbol, owner string) ([]*domain.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.live[liveKey(symbol, owner)]
	result := make([]*domain.Holding, 0, len(idx))
	for _, h := range idx {
		holdingCopy := *h
		result = append(result, &holdingCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// SumLive returns the total of unconsumed holdings for (symbol, owner).
func (s *HoldingStore) SumLive(_ context.Context, symbol, owner string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, h := range s.live[liveKey(symbol, owner)] {
		total = total.Add(h.Amount)
	}
	return total, nil
}

// SumSupply returns the total of unconsumed holdings for symbol.
func (s *HoldingStore) SumSupply(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, idx := range s.live {
		for _, h := range idx {
			if h.Symbol == symbol {
				total = total.Add(h.Amount)
			}
		}
	}
	return total, nil
}

// BalancesBySymbol returns owner -> live total for symbol.
func (s *HoldingStore) BalancesBySymbol(_ context.Context, symbol string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]decimal.Decimal)
	for _, idx := range s.live {
		for _, h := range idx {
			if h.Symbol == symbol {
				result[h.Owner] = result[h.Owner].Add(h.Amount)
			}
		}
	}
	return result, nil
}

// GetCommit retrieves a commit by id. Returns ErrNotFound if not exists.
func (s *HoldingStore) GetCommit(_ context.Context, commitID string) (*domain.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.commits[commitID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyCommit(c), nil
}

// ListCommits retrieves all commits for symbol in commit order.
func (s *HoldingStore) ListCommits(_ context.Context, symbol string) ([]*domain.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Commit
	for _, id := range s.order {
		c := s.commits[id]
		if c.Symbol == symbol {
			result = append(result, copyCommit(c))
		}
	}
	return result, nil
}

// copyCommit deep-copies a commit so callers cannot mutate stored state.
func copyCommit(c *domain.Commit) *domain.Commit {
	out := *c
	out.Consumed = append([]string(nil), c.Consumed...)
	out.Produced = make([]*domain.Holding, 0, len(c.Produced))
	for _, h := range c.Produced {
		holdingCopy := *h
		out.Produced = append(out.Produced, &holdingCopy)
	}
	return &out
}

var _ storage.HoldingStore = (*HoldingStore)(nil)
