package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/observability"
	"ztoken-ledger/internal/storage"
)

// HoldingStore implements storage.HoldingStore using PostgreSQL.
// Apply runs in a single transaction; consumption is a compare-and-set on
// consumed_by so concurrent commits over the same holding cannot both win.
type HoldingStore struct {
	pool *Pool
}

// NewHoldingStore creates a new HoldingStore.
func NewHoldingStore(pool *Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HoldingStore = (*HoldingStore)(nil)

const holdingColumns = `holding_id, seq, symbol, owner, amount::text, commit_id, created_at`

// Apply atomically consumes c.Consumed, inserts c.Produced and records c.
func (s *HoldingStore) Apply(ctx context.Context, c *domain.Commit) error {
	if err := validateCommit(c); err != nil {
		return err
	}

	start := time.Now()
	err := s.apply(ctx, c)

	// A lost compare-and-set is an expected outcome, not a query failure
	recorded := err
	if errors.Is(err, storage.ErrConflict) {
		recorded = nil
	}
	observability.RecordDBQuery("postgres", "apply_commit", time.Since(start).Seconds(), recorded)
	return err
}

func (s *HoldingStore) apply(ctx context.Context, c *domain.Commit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO commits (commit_id, kind, symbol, caller, consumed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, string(c.Kind), c.Symbol, string(c.Caller), c.Consumed, c.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isInvalidReferenceError(err) {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("insert commit: %w", err)
	}

	for _, id := range c.Consumed {
		tag, err := tx.Exec(ctx, `
			UPDATE holdings SET consumed_by = $1
			WHERE holding_id = $2 AND symbol = $3 AND consumed_by IS NULL
		`, c.ID, id, c.Symbol)
		if err != nil {
			return fmt.Errorf("consume holding %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrConflict
		}
	}

	seqs := make([]int64, len(c.Produced))
	for i, h := range c.Produced {
		err := tx.QueryRow(ctx, `
			INSERT INTO holdings (holding_id, symbol, owner, amount, commit_id, created_at)
			VALUES ($1, $2, $3, $4::text::numeric, $5, $6)
			RETURNING seq
		`, h.ID, h.Symbol, h.Owner, h.Amount.String(), c.ID, h.CreatedAt).Scan(&seqs[i])
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			if isInvalidReferenceError(err) {
				return storage.ErrInvalidInput
			}
			return fmt.Errorf("insert holding %s: %w", h.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	for i, h := range c.Produced {
		h.Seq = seqs[i]
		h.CommitID = c.ID
	}
	return nil
}

// validateCommit rejects malformed commits before any round trip.
func validateCommit(c *domain.Commit) error {
	if c == nil || c.ID == "" || c.Symbol == "" {
		return storage.ErrInvalidInput
	}
	if len(c.Consumed) == 0 && len(c.Produced) == 0 {
		return storage.ErrInvalidInput
	}

	seen := make(map[string]struct{}, len(c.Consumed))
	for _, id := range c.Consumed {
		if _, dup := seen[id]; dup {
			return storage.ErrInvalidInput
		}
		seen[id] = struct{}{}
	}

	batch := make(map[string]struct{}, len(c.Produced))
	for _, h := range c.Produced {
		if h == nil || h.ID == "" || h.Owner == "" || h.Symbol != c.Symbol || !h.Amount.IsPositive() {
			return storage.ErrInvalidInput
		}
		if _, dup := batch[h.ID]; dup {
			return storage.ErrDuplicateKey
		}
		batch[h.ID] = struct{}{}
	}
	return nil
}

// GetLive retrieves unconsumed holdings for (symbol, owner), ordered by seq ASC.
func (s *HoldingStore) GetLive(ctx context.Context, symbol, owner string) ([]*domain.Holding, error) {
	query := `
		SELECT ` + holdingColumns + `
		FROM holdings
		WHERE symbol = $1 AND owner = $2 AND consumed_by IS NULL
		ORDER BY seq ASC
	`
	return s.queryHoldings(ctx, query, symbol, owner)
}

// SumLive returns the total of unconsumed holdings for (symbol, owner).
func (s *HoldingStore) SumLive(ctx context.Context, symbol, owner string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM holdings
		WHERE symbol = $1 AND owner = $2 AND consumed_by IS NULL
	`
	return s.querySum(ctx, query, symbol, owner)
}

// SumSupply returns the total of unconsumed holdings for symbol.
func (s *HoldingStore) SumSupply(ctx context.Context, symbol string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM holdings
		WHERE symbol = $1 AND consumed_by IS NULL
	`
	return s.querySum(ctx, query, symbol)
}

// BalancesBySymbol returns owner -> live total for symbol.
func (s *HoldingStore) BalancesBySymbol(ctx context.Context, symbol string) (map[string]decimal.Decimal, error) {
	query := `
		SELECT owner, SUM(amount)::text
		FROM holdings
		WHERE symbol = $1 AND consumed_by IS NULL
		GROUP BY owner
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	result := make(map[string]decimal.Decimal)
	for rows.Next() {
		var owner, total string
		if err := rows.Scan(&owner, &total); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		amount, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("parse balance %q: %w", total, err)
		}
		result[owner] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return result, nil
}

// GetCommit retrieves a commit by id. Returns ErrNotFound if not exists.
func (s *HoldingStore) GetCommit(ctx context.Context, commitID string) (*domain.Commit, error) {
	query := `
		SELECT commit_id, kind, symbol, caller, consumed, created_at
		FROM commits
		WHERE commit_id = $1
	`

	c, err := scanCommit(s.pool.QueryRow(ctx, query, commitID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get commit: %w", err)
	}

	produced, err := s.queryHoldings(ctx, `
		SELECT `+holdingColumns+`
		FROM holdings
		WHERE commit_id = $1
		ORDER BY seq ASC
	`, commitID)
	if err != nil {
		return nil, err
	}
	c.Produced = produced
	return c, nil
}

// ListCommits retrieves all commits for symbol in commit order.
func (s *HoldingStore) ListCommits(ctx context.Context, symbol string) ([]*domain.Commit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT commit_id, kind, symbol, caller, consumed, created_at
		FROM commits
		WHERE symbol = $1
		ORDER BY seq ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	var commits []*domain.Commit
	byID := make(map[string]*domain.Commit)
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	if len(commits) == 0 {
		return nil, nil
	}

	holdings, err := s.queryHoldings(ctx, `
		SELECT `+holdingColumns+`
		FROM holdings
		WHERE symbol = $1
		ORDER BY seq ASC
	`, symbol)
	if err != nil {
		return nil, err
	}
	for _, h := range holdings {
		if c, ok := byID[h.CommitID]; ok {
			c.Produced = append(c.Produced, h)
		}
	}
	return commits, nil
}

func (s *HoldingStore) queryHoldings(ctx context.Context, query string, args ...any) ([]*domain.Holding, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var result []*domain.Holding
	for rows.Next() {
		var (
			h      domain.Holding
			amount string
		)
		if err := rows.Scan(&h.ID, &h.Seq, &h.Symbol, &h.Owner, &amount, &h.CommitID, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		h.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse holding amount %q: %w", amount, err)
		}
		result = append(result, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}
	return result, nil
}

func (s *HoldingStore) querySum(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var total string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("query sum: %w", err)
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse sum %q: %w", total, err)
	}
	return amount, nil
}

func scanCommit(row pgx.Row) (*domain.Commit, error) {
	var (
		c      domain.Commit
		kind   string
		caller string
	)
	if err := row.Scan(&c.ID, &kind, &c.Symbol, &caller, &c.Consumed, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Kind = domain.CommitKind(kind)
	c.Caller = domain.Principal(caller)
	return &c, nil
}
