package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

func newTestAccount(name string, host domain.Principal) *domain.Account {
	return &domain.Account{
		ID:        uuid.NewString(),
		Name:      name,
		Principal: domain.Principal("key-" + name),
		Host:      host,
		CreatedAt: 1700000000000,
	}
}

func TestAccountStore_InsertAndGetByName(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	acct := newTestAccount("alice", "Bank")
	require.NoError(t, store.Insert(ctx, acct))

	got, err := store.GetByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, acct.Principal, got.Principal)
	assert.Equal(t, domain.Principal("Bank"), got.Host)

	_, err = store.GetByName(ctx, "bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountStore_DuplicateName(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newTestAccount("alice", "Bank")))

	dup := newTestAccount("alice", "Other")
	dup.Principal = "another-key"
	assert.ErrorIs(t, store.Insert(ctx, dup), storage.ErrDuplicateKey)
}

func TestAccountStore_ListByHost(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newTestAccount("carol", "Bank")))
	require.NoError(t, store.Insert(ctx, newTestAccount("alice", "Bank")))
	require.NoError(t, store.Insert(ctx, newTestAccount("bob", "Broker")))

	hosted, err := store.ListByHost(ctx, "Bank")
	require.NoError(t, err)
	require.Len(t, hosted, 2)
	assert.Equal(t, "alice", hosted[0].Name)
	assert.Equal(t, "carol", hosted[1].Name)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAccountStore_Shares(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewAccountStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newTestAccount("alice", "Bank")))

	share := &domain.Share{AccountName: "alice", Counterparty: "Broker", SharedAt: 1700000000100}
	require.NoError(t, store.InsertShare(ctx, share))
	// Second share with the same counterparty is a no-op
	require.NoError(t, store.InsertShare(ctx, &domain.Share{AccountName: "alice", Counterparty: "Broker", SharedAt: 1700000000200}))
	require.NoError(t, store.InsertShare(ctx, &domain.Share{AccountName: "alice", Counterparty: "Exchange", SharedAt: 1700000000300}))

	shares, err := store.GetShares(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, domain.Principal("Broker"), shares[0].Counterparty)
	assert.Equal(t, int64(1700000000100), shares[0].SharedAt)
	assert.Equal(t, domain.Principal("Exchange"), shares[1].Counterparty)

	err = store.InsertShare(ctx, &domain.Share{AccountName: "ghost", Counterparty: "Broker", SharedAt: 1})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
