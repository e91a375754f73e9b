package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

const accountColumns = `name, account_id::text, principal, host, created_at`

// Insert adds a new account. Returns ErrDuplicateKey if name or principal exists.
func (s *AccountStore) Insert(ctx context.Context, a *domain.Account) error {
	if a == nil || a.Name == "" || a.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO accounts (name, account_id, principal, host, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query, a.Name, a.ID, string(a.Principal), string(a.Host), a.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByName retrieves an account. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByName(ctx context.Context, name string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE name = $1`

	a, err := scanAccount(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account by name: %w", err)
	}
	return a, nil
}

// List retrieves all accounts ordered by name.
func (s *AccountStore) List(ctx context.Context) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY name ASC`
	return s.queryAccounts(ctx, query)
}

// ListByHost retrieves accounts hosted by a principal, ordered by name.
func (s *AccountStore) ListByHost(ctx context.Context, host domain.Principal) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE host = $1 ORDER BY name ASC`
	return s.queryAccounts(ctx, query, string(host))
}

// InsertShare records a share. Sharing twice with the same counterparty is a no-op.
func (s *AccountStore) InsertShare(ctx context.Context, sh *domain.Share) error {
	if sh == nil || sh.AccountName == "" || sh.Counterparty == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO account_shares (account_name, counterparty, shared_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_name, counterparty) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query, sh.AccountName, string(sh.Counterparty), sh.SharedAt)
	if err != nil {
		if isInvalidReferenceError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert account share: %w", err)
	}
	return nil
}

// GetShares retrieves all shares of an account ordered by shared_at ASC.
func (s *AccountStore) GetShares(ctx context.Context, accountName string) ([]*domain.Share, error) {
	query := `
		SELECT account_name, counterparty, shared_at
		FROM account_shares
		WHERE account_name = $1
		ORDER BY shared_at ASC, counterparty ASC
	`

	rows, err := s.pool.Query(ctx, query, accountName)
	if err != nil {
		return nil, fmt.Errorf("query account shares: %w", err)
	}
	defer rows.Close()

	var result []*domain.Share
	for rows.Next() {
		var (
			sh           domain.Share
			counterparty string
		)
		if err := rows.Scan(&sh.AccountName, &counterparty, &sh.SharedAt); err != nil {
			return nil, fmt.Errorf("scan account share: %w", err)
		}
		sh.Counterparty = domain.Principal(counterparty)
		result = append(result, &sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account shares: %w", err)
	}
	return result, nil
}

func (s *AccountStore) queryAccounts(ctx context.Context, query string, args ...any) ([]*domain.Account, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return result, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a         domain.Account
		principal string
		host      string
	)
	if err := row.Scan(&a.Name, &a.ID, &principal, &host, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Principal = domain.Principal(principal)
	a.Host = domain.Principal(host)
	return &a, nil
}
