package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

func TestHoldingStore_ApplyAndGetLive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestToken(t, ctx, pool, "ZUSD")
	store := NewHoldingStore(pool)

	first := issueCommit("c1", "ZUSD", "alice", "100.00")
	second := issueCommit("c2", "ZUSD", "alice", "20.50")
	require.NoError(t, store.Apply(ctx, first))
	require.NoError(t, store.Apply(ctx, second))

	assert.Positive(t, first.Produced[0].Seq)
	assert.Greater(t, second.Produced[0].Seq, first.Produced[0].Seq)
	assert.Equal(t, "c1", first.Produced[0].CommitID)

	live, err := store.GetLive(ctx, "ZUSD", "alice")
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "c1-0", live[0].ID)
	assert.Equal(t, "c2-0", live[1].ID)
	assert.True(t, decimal.RequireFromString("100").Equal(live[0].Amount))

	total, err := store.SumLive(ctx, "ZUSD", "alice")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("120.5").Equal(total), "got %s", total)
}

func TestHoldingStore_ConsumeAndProduce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestToken(t, ctx, pool, "ZUSD")
	store := NewHoldingStore(pool)

	require.NoError(t, store.Apply(ctx, issueCommit("c1", "ZUSD", "alice", "100")))

	transfer := &domain.Commit{
		ID:       "t1",
		Kind:     domain.CommitKindTransfer,
		Symbol:   "ZUSD",
		Caller:   "Bank",
		Consumed: []string{"c1-0"},
		Produced: []*domain.Holding{
			{ID: "t1-0", Symbol: "ZUSD", Owner: "bob", Amount: decimal.RequireFromString("30")},
			{ID: "t1-1", Symbol: "ZUSD", Owner: "alice", Amount: decimal.RequireFromString("70")},
		},
		CreatedAt: 1700000000500,
	}
	require.NoError(t, store.Apply(ctx, transfer))

	alice, err := store.SumLive(ctx, "ZUSD", "alice")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(70).Equal(alice))

	bob, err := store.SumLive(ctx, "ZUSD", "bob")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(bob))

	supply, err := store.SumSupply(ctx, "ZUSD")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(supply))

	balances, err := store.BalancesBySymbol(ctx, "ZUSD")
	require.NoError(t, err)
	assert.Len(t, balances, 2)
	assert.True(t, decimal.NewFromInt(30).Equal(balances["bob"]))

	got, err := store.GetCommit(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.CommitKindTransfer, got.Kind)
	assert.Equal(t, []string{"c1-0"}, got.Consumed)
	require.Len(t, got.Produced, 2)
	assert.Equal(t, "bob", got.Produced[0].Owner)

	commits, err := store.ListCommits(ctx, "ZUSD")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "c1", commits[0].ID)
	assert.Equal(t, "t1", commits[1].ID)
	assert.Len(t, commits[0].Produced, 1)
}

func TestHoldingStore_DoubleSpendConflict(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestToken(t, ctx, pool, "ZUSD")
	store := NewHoldingStore(pool)

	require.NoError(t, store.Apply(ctx, issueCommit("c1", "ZUSD", "alice", "100")))

	spend := func(id string) *domain.Commit {
		return &domain.Commit{
			ID:       id,
			Kind:     domain.CommitKindConsume,
			Symbol:   "ZUSD",
			Caller:   "Bank",
			Consumed: []string{"c1-0"},
			Produced: []*domain.Holding{
				{ID: id + "-0", Symbol: "ZUSD", Owner: "bob", Amount: decimal.NewFromInt(100)},
			},
		}
	}

	require.NoError(t, store.Apply(ctx, spend("s1")))
	assert.ErrorIs(t, store.Apply(ctx, spend("s2")), storage.ErrConflict)

	// Failed commit leaves no trace
	_, err := store.GetCommit(ctx, "s2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	bob, err := store.SumLive(ctx, "ZUSD", "bob")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(bob))
}

func TestHoldingStore_ConcurrentSpendOneWinner(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestToken(t, ctx, pool, "ZUSD")
	store := NewHoldingStore(pool)

	require.NoError(t, store.Apply(ctx, issueCommit("c1", "ZUSD", "alice", "100")))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a'+i)) + "-spend"
			err := store.Apply(ctx, &domain.Commit{
				ID:       id,
				Kind:     domain.CommitKindTransfer,
				Symbol:   "ZUSD",
				Caller:   "Bank",
				Consumed: []string{"c1-0"},
				Produced: []*domain.Holding{
					{ID: id + "-0", Symbol: "ZUSD", Owner: "bob", Amount: decimal.NewFromInt(100)},
				},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, storage.ErrConflict) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)

	supply, err := store.SumSupply(ctx, "ZUSD")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(supply))
}

func TestHoldingStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createTestToken(t, ctx, pool, "ZUSD")
	store := NewHoldingStore(pool)

	// Unknown symbol violates the foreign key
	assert.ErrorIs(t, store.Apply(ctx, issueCommit("c1", "NOPE", "alice", "1")), storage.ErrInvalidInput)

	// Non-positive amount
	assert.ErrorIs(t, store.Apply(ctx, issueCommit("c2", "ZUSD", "alice", "0")), storage.ErrInvalidInput)

	// Duplicate commit id
	require.NoError(t, store.Apply(ctx, issueCommit("c3", "ZUSD", "alice", "1")))
	dup := issueCommit("c3", "ZUSD", "alice", "1")
	dup.Produced[0].ID = "other"
	assert.ErrorIs(t, store.Apply(ctx, dup), storage.ErrDuplicateKey)
}
