package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
)

// TokenStore provides access to token_definitions storage.
type TokenStore interface {
	// Insert adds a new definition. Returns ErrDuplicateKey if symbol exists.
	Insert(ctx context.Context, t *domain.TokenDefinition) error

	// GetBySymbol retrieves a definition. Returns ErrNotFound if not exists.
	GetBySymbol(ctx context.Context, symbol string) (*domain.TokenDefinition, error)

	// List retrieves all definitions ordered by symbol.
	List(ctx context.Context) ([]*domain.TokenDefinition, error)
}

// AccountStore provides access to accounts and account_shares storage.
type AccountStore interface {
	// Insert adds a new account. Returns ErrDuplicateKey if name exists.
	Insert(ctx context.Context, a *domain.Account) error

	// GetByName retrieves an account. Returns ErrNotFound if not exists.
	GetByName(ctx context.Context, name string) (*domain.Account, error)

	// List retrieves all accounts ordered by name.
	List(ctx context.Context) ([]*domain.Account, error)

	// ListByHost retrieves accounts hosted by a principal, ordered by name.
	ListByHost(ctx context.Context, host domain.Principal) ([]*domain.Account, error)

	// InsertShare records a share. Sharing twice with the same counterparty is a no-op.
	// Returns ErrNotFound if the account does not exist.
	InsertShare(ctx context.Context, s *domain.Share) error

	// GetShares retrieves all shares of an account ordered by shared_at ASC.
	GetShares(ctx context.Context, accountName string) ([]*domain.Share, error)
}

// HoldingStore provides access to holdings and commits storage.
// It is the commit service of the ledger: Apply is the only mutation.
type HoldingStore interface {
	// Apply atomically consumes c.Consumed, inserts c.Produced and records c.
	// Returns ErrConflict if any consumed holding is missing or already consumed,
	// ErrDuplicateKey if a produced holding or the commit id exists.
	// On success the produced holdings carry their assigned Seq.
	Apply(ctx context.Context, c *domain.Commit) error

	// GetLive retrieves unconsumed holdings for (symbol, owner), ordered by seq ASC.
	GetLive(ctx context.Context, symbol, owner string) ([]*domain.Holding, error)

	// SumLive returns the total of unconsumed holdings for (symbol, owner).
	SumLive(ctx context.Context, symbol, owner string) (decimal.Decimal, error)

	// SumSupply returns the total of unconsumed holdings for symbol.
	SumSupply(ctx context.Context, symbol string) (decimal.Decimal, error)

	// BalancesBySymbol returns owner -> live total for symbol, omitting zero owners.
	BalancesBySymbol(ctx context.Context, symbol string) (map[string]decimal.Decimal, error)

	// GetCommit retrieves a commit by id. Returns ErrNotFound if not exists.
	GetCommit(ctx context.Context, commitID string) (*domain.Commit, error)

	// ListCommits retrieves all commits for symbol in commit order.
	ListCommits(ctx context.Context, symbol string) ([]*domain.Commit, error)
}

// CommitJournal is an append-only replica of committed commits used for audit
// and supply analytics. It is written after the commit is durable.
type CommitJournal interface {
	// Append records a commit. Returns ErrDuplicateKey if commit id exists.
	Append(ctx context.Context, c *domain.Commit) error

	// GetBySymbol retrieves journaled commits for symbol ordered by created_at ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.Commit, error)
}
