package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a new definition. Returns ErrDuplicateKey if symbol exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.TokenDefinition) error {
	if t == nil || t.Symbol == "" || t.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_definitions (
			symbol, token_id, issuer, fraction_digits, valuation_amount, valuation_currency, created_at
		) VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		t.Symbol,
		t.ID,
		string(t.Issuer),
		t.FractionDigits,
		t.Valuation.Amount.String(),
		t.Valuation.Currency,
		t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isInvalidReferenceError(err) {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("insert token definition: %w", err)
	}
	return nil
}

// GetBySymbol retrieves a definition. Returns ErrNotFound if not exists.
func (s *TokenStore) GetBySymbol(ctx context.Context, symbol string) (*domain.TokenDefinition, error) {
	query := `
		SELECT symbol, token_id::text, issuer, fraction_digits, valuation_amount::text, valuation_currency, created_at
		FROM token_definitions
		WHERE symbol = $1
	`

	t, err := scanToken(s.pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token definition: %w", err)
	}
	return t, nil
}

// List retrieves all definitions ordered by symbol.
func (s *TokenStore) List(ctx context.Context) ([]*domain.TokenDefinition, error) {
	query := `
		SELECT symbol, token_id::text, issuer, fraction_digits, valuation_amount::text, valuation_currency, created_at
		FROM token_definitions
		ORDER BY symbol ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list token definitions: %w", err)
	}
	defer rows.Close()

	var result []*domain.TokenDefinition
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token definition: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token definitions: %w", err)
	}
	return result, nil
}

func scanToken(row pgx.Row) (*domain.TokenDefinition, error) {
	var (
		t         domain.TokenDefinition
		issuer    string
		valuation string
	)
	err := row.Scan(
		&t.Symbol,
		&t.ID,
		&issuer,
		&t.FractionDigits,
		&valuation,
		&t.Valuation.Currency,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Issuer = domain.Principal(issuer)
	t.Valuation.Amount, err = decimal.NewFromString(valuation)
	if err != nil {
		return nil, fmt.Errorf("parse valuation %q: %w", valuation, err)
	}
	return &t, nil
}
