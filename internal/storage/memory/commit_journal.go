package memory

import (
	"context"
	"sort"
	"sync"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

// CommitJournal is an in-memory implementation of storage.CommitJournal.
type CommitJournal struct {
	mu   sync.RWMutex
	data map[string]*domain.Commit // keyed by commit id
}

// NewCommitJournal creates a new in-memory commit journal.
func NewCommitJournal() *CommitJournal {
	return &CommitJournal{
		data: make(map[string]*domain.Commit),
	}
}

// Append records a commit. Returns ErrDuplicateKey if commit id exists.
func (j *CommitJournal) Append(_ context.Context, c *domain.Commit) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}
	j.data[c.ID] = copyCommit(c)
	return nil
}

// GetBySymbol retrieves journaled commits for symbol ordered by created_at ASC.
func (j *CommitJournal) GetBySymbol(_ context.Context, symbol string) ([]*domain.Commit, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.Commit
	for _, c := range j.data {
		if c.Symbol == symbol {
			result = append(result, copyCommit(c))
		}
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt != result[k].CreatedAt {
			return result[i].CreatedAt < result[k].CreatedAt
		}
		return result[i].ID < result[k].ID
	})
	return result, nil
}

var _ storage.CommitJournal = (*CommitJournal)(nil)
