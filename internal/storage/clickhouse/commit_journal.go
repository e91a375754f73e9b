package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/observability"
	"ztoken-ledger/internal/storage"
)

// CommitJournal implements storage.CommitJournal using ClickHouse.
// Produced holdings are flattened into parallel arrays, one row per commit.
type CommitJournal struct {
	conn *Conn
}

// NewCommitJournal creates a new CommitJournal.
func NewCommitJournal(conn *Conn) *CommitJournal {
	return &CommitJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.CommitJournal = (*CommitJournal)(nil)

// Append records a commit. Returns ErrDuplicateKey if commit id exists.
func (j *CommitJournal) Append(ctx context.Context, c *domain.Commit) error {
	if c == nil || c.ID == "" || c.Symbol == "" {
		return storage.ErrInvalidInput
	}

	// MergeTree does not enforce uniqueness; keep append-only semantics explicitly
	exists, err := j.exists(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	ids := make([]string, len(c.Produced))
	owners := make([]string, len(c.Produced))
	amounts := make([]string, len(c.Produced))
	seqs := make([]int64, len(c.Produced))
	for i, h := range c.Produced {
		ids[i] = h.ID
		owners[i] = h.Owner
		amounts[i] = h.Amount.String()
		seqs[i] = h.Seq
	}

	consumed := c.Consumed
	if consumed == nil {
		consumed = []string{}
	}

	query := `
		INSERT INTO ledger_commits (
			commit_id, kind, symbol, caller, consumed,
			produced_ids, produced_owners, produced_amounts, produced_seqs, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	start := time.Now()
	err = j.conn.Exec(ctx, query,
		c.ID, string(c.Kind), c.Symbol, string(c.Caller), consumed,
		ids, owners, amounts, seqs, c.CreatedAt,
	)
	observability.RecordDBQuery("clickhouse", "append_commit", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("insert ledger commit: %w", err)
	}
	return nil
}

// GetBySymbol retrieves journaled commits for symbol ordered by created_at ASC.
func (j *CommitJournal) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Commit, error) {
	query := `
		SELECT commit_id, kind, symbol, caller, consumed,
			produced_ids, produced_owners, produced_amounts, produced_seqs, created_at
		FROM ledger_commits
		WHERE symbol = ?
		ORDER BY created_at ASC, commit_id ASC
	`

	rows, err := j.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query ledger commits: %w", err)
	}
	defer rows.Close()

	var result []*domain.Commit
	for rows.Next() {
		var (
			c                    domain.Commit
			kind, caller         string
			ids, owners, amounts []string
			seqs                 []int64
		)
		err := rows.Scan(&c.ID, &kind, &c.Symbol, &caller, &c.Consumed,
			&ids, &owners, &amounts, &seqs, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger commit: %w", err)
		}
		if len(owners) != len(ids) || len(amounts) != len(ids) || len(seqs) != len(ids) {
			return nil, fmt.Errorf("ledger commit %s: mismatched produced arrays", c.ID)
		}

		c.Kind = domain.CommitKind(kind)
		c.Caller = domain.Principal(caller)
		c.Produced = make([]*domain.Holding, len(ids))
		for i := range ids {
			amount, err := decimal.NewFromString(amounts[i])
			if err != nil {
				return nil, fmt.Errorf("parse amount %q: %w", amounts[i], err)
			}
			c.Produced[i] = &domain.Holding{
				ID:        ids[i],
				Seq:       seqs[i],
				Symbol:    c.Symbol,
				Owner:     owners[i],
				Amount:    amount,
				CommitID:  c.ID,
				CreatedAt: c.CreatedAt,
			}
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger commits: %w", err)
	}
	return result, nil
}

func (j *CommitJournal) exists(ctx context.Context, commitID string) (bool, error) {
	var count uint64
	err := j.conn.QueryRow(ctx, `SELECT count(*) FROM ledger_commits WHERE commit_id = ?`, commitID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
