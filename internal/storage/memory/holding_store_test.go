package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

func issueCommit(id, symbol, owner, amount string) *domain.Commit {
	return &domain.Commit{
		ID:     id,
		Kind:   domain.CommitKindIssue,
		Symbol: symbol,
		Caller: "ZCentral",
		Produced: []*domain.Holding{
			{ID: id + "-0", Symbol: symbol, Owner: owner, Amount: decimal.RequireFromString(amount)},
		},
		CreatedAt: 1704067200000,
	}
}

func TestHoldingStore_ApplyIssue(t *testing.T) {
	store := NewHoldingStore()
	ctx := context.Background()

	c := issueCommit("c1", "USD-C", "alice", "100.00")
	require.NoError(t, store.Apply(ctx, c))

	// Seq and commit id are assigned on the caller's holdings
	assert.Equal(t, int64(1), c.Produced[0].Seq)
	assert.Equal(t, "c1", c.Produced[0].CommitID)

	live, err := store.GetLive(ctx, "USD-C", "alice")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "c1-0", live[0].ID)

	bal, err := store.SumLive(ctx, "USD-C", "alice")
	require.NoError(t, err)
	assert.Equal(t, "100.00", bal.StringFixed(2))
}

func TestHoldingStore_ApplyTransfer(t *testing.T) {
	store := NewHoldingStore()
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, issueCommit("c1", "USD-C", "alice", "30")))
	require.NoError(t, store.Apply(ctx, issueCommit("c2", "USD-C", "alice", "70")))

	transfer := &domain.Commit{
		ID:       "c3",
		Kind:     domain.CommitKindTransfer,
		Symbol:   "USD-C",
		Consumed: []string{"c1-0", "c2-0"},
		Produced: []*domain.Holding{
			{ID: "c3-0", Symbol: "USD-C", Owner: "bob", Amount: decimal.RequireFromString("40")},
			{ID: "c3-1", Symbol: "USD-C", Owner: "alice", Amount: decimal.RequireFromString("60")},
		},
	}
	require.NoError(t, store.Apply(ctx, transfer))

	aliceLive, _ := store.GetLive(ctx, "USD-C", "alice")
	require.Len(t, aliceLive, 1)
	assert.Equal(t, "c3-1", aliceLive[0].ID)

	bob, _ := store.SumLive(ctx, "USD-C", "bob")
	assert.True(t, bob.Equal(decimal.NewFromInt(40)))

	supply, _ := store.SumSupply(ctx, "USD-C")
	assert.True(t, supply.Equal(decimal.NewFromInt(100)))

	balances, _ := store.BalancesBySymbol(ctx, "USD-C")
	assert.Len(t, balances, 2)
	assert.True(t, balances["alice"].Equal(decimal.NewFromInt(60)))
}

func TestHoldingStore_DoubleSpendConflict(t *testing.T) {
	store := NewHoldingStore()
	ctx := context.Background()
	require.NoError(t, store.Apply(ctx, issueCommit("c1", "USD-C", "alice", "10")))

	spend := func(id string) *domain.Commit {
		return &domain.Commit{
			ID:       id,
			Kind:     domain.CommitKindTransfer,
			Symbol:   "USD-C",
			Consumed: []string{"c1-0"},
			Produced: []*domain.Holding{
				{ID: id + "-0", Symbol: "USD-C", Owner: "bob", Amount: decimal.NewFromInt(10)},
			},
		}
	}

	require.NoError(t, store.Apply(ctx, spend("s1")))
	err := store.Apply(ctx, spend("s2"))
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Failed commit left nothing behind
	_, err = store.GetCommit(ctx, "s2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	bob, _ := store.SumLive(ctx, "USD-C", "bob")
	assert.True(t, bob.Equal(decimal.NewFromInt(10)))
}

func TestHoldingStore_ApplyIsAllOrNothing(t *testing.T) {
	store := NewHoldingStore()
	ctx := context.Background()
	require.NoError(t, store.Apply(ctx, issueCommit("c1", "USD-C", "alice", "10")))

	bad := &domain.Commit{
		ID:       "c2",
		Kind:     domain.CommitKindTransfer,
		Symbol:   "USD-C",
		Consumed: []string{"c1-0", "missing"},
		Produced: []*domain.Holding{
			{ID: "c2-0", Symbol: "USD-C", Owner: "bob", Amount: decimal.NewFromInt(10)},
		},
	}
	assert.ErrorIs(t, store.Apply(ctx, bad), storage.ErrConflict)

	live, _ := store.GetLive(ctx, "USD-C", "alice")
	assert.Len(t, live, 1, "valid input must not be consumed when the commit fails")
}

func TestHoldingStore_InvalidCommits(t *testing.T) {
	store := NewHoldingStore()
	ctx := context.Background()
	require.NoError(t, store.Apply(ctx, issueCommit("c1", "USD-C", "alice", "10")))

	tests := []struct {
		name   string
		commit *domain.Commit
		want   error
	}{
		{"nil", nil, storage.ErrInvalidInput},
		{"empty", &domain.Commit{ID: "x", Symbol: "USD-C"}, storage.ErrInvalidInput},
		{"duplicate commit id", issueCommit("c1", "USD-C", "bob", "1"), storage.ErrDuplicateKey},
		{"zero amount", issueCommit("c9", "USD-C", "bob", "0"), storage.ErrInvalidInput},
		{"symbol mismatch", &domain.Commit{
			ID: "c8", Symbol: "EUR-C", Consumed: []string{"c1-0"},
		}, storage.ErrInvalidInput},
		{"duplicate input", &domain.Commit{
			ID: "c7", Symbol: "USD-C", Consumed: []string{"c1-0", "c1-0"},
		}, storage.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Apply(ctx, tt.commit)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestHoldingStore_ListCommits(t *testing.T) {
	store := NewHoldingStore()
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, issueCommit("c1", "USD-C", "alice", "1")))
	require.NoError(t, store.Apply(ctx, issueCommit("c2", "EUR-C", "alice", "1")))
	require.NoError(t, store.Apply(ctx, issueCommit("c3", "USD-C", "bob", "1")))

	commits, err := store.ListCommits(ctx, "USD-C")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "c1", commits[0].ID)
	assert.Equal(t, "c3", commits[1].ID)

	got, err := store.GetCommit(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "EUR-C", got.Symbol)
}

func TestHoldingStore_ConcurrentApply(t *testing.T) {
	store := NewHoldingStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			_ = store.Apply(ctx, issueCommit(id, "USD-C", "alice", "1"))
		}(i)
	}
	wg.Wait()

	live, _ := store.GetLive(ctx, "USD-C", "alice")
	require.Len(t, live, 50)
	for i := 1; i < len(live); i++ {
		assert.Less(t, live[i-1].Seq, live[i].Seq)
	}
}

func TestCommitJournal_AppendAndGet(t *testing.T) {
	j := NewCommitJournal()
	ctx := context.Background()

	first := issueCommit("c1", "USD-C", "alice", "1")
	first.CreatedAt = 2
	second := issueCommit("c2", "USD-C", "bob", "1")
	second.CreatedAt = 1

	require.NoError(t, j.Append(ctx, first))
	require.NoError(t, j.Append(ctx, second))
	assert.ErrorIs(t, j.Append(ctx, first), storage.ErrDuplicateKey)

	got, err := j.GetBySymbol(ctx, "USD-C")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].ID)
}
