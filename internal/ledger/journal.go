package ledger

import (
	"context"
	"errors"
	"fmt"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

// JournalObserver replicates committed changes into a CommitJournal.
type JournalObserver struct {
	journal storage.CommitJournal
}

// NewJournalObserver creates a JournalObserver.
func NewJournalObserver(journal storage.CommitJournal) *JournalObserver {
	return &JournalObserver{journal: journal}
}

// OnCommit appends c. A commit already journaled is not an error.
func (o *JournalObserver) OnCommit(ctx context.Context, c *domain.Commit) error {
	if err := o.journal.Append(ctx, c); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("journal commit %s: %w", c.ID, err)
	}
	return nil
}

var _ CommitObserver = (*JournalObserver)(nil)
