package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/identity"
	"ztoken-ledger/internal/storage/memory"
)

const (
	central = domain.Principal("ZCentral")
	bankA   = domain.Principal("BankA")
	bankB   = domain.Principal("BankB")
)

var usd = domain.Valuation{Amount: decimal.NewFromInt(1), Currency: "USD"}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{
		Issuer:       central,
		TokenStore:   memory.NewTokenStore(),
		AccountStore: memory.NewAccountStore(),
		HoldingStore: memory.NewHoldingStore(),
		Parties:      identity.NewStaticResolver("ZCentral", "BankA", "BankB"),
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return e
}

// scenarioSetup defines USD-C, creates BankA's "treasury" shared with the
// issuer and BankA's "bob", and issues 100.00 into treasury.
func scenarioSetup(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()

	_, err := e.CreateToken(ctx, domain.Caller{Principal: central}, "USD-C", usd, 2)
	require.NoError(t, err)

	_, err = e.CreateAccount(ctx, domain.Caller{Principal: bankA}, "treasury")
	require.NoError(t, err)
	_, err = e.CreateAccount(ctx, domain.Caller{Principal: bankA}, "bob")
	require.NoError(t, err)
	require.NoError(t, e.ShareAccount(ctx, domain.Caller{Principal: bankA}, "treasury", central))

	r, err := e.IssueToken(ctx, domain.Caller{Principal: central, Account: "treasury"}, "USD-C", dec("100.00"))
	require.NoError(t, err)
	require.True(t, dec("100").Equal(r.Balance))
}

func balance(t *testing.T, e *Engine, caller domain.Principal, account string) decimal.Decimal {
	t.Helper()
	b, err := e.QueryBalance(context.Background(), domain.Caller{Principal: caller}, "USD-C", account)
	require.NoError(t, err)
	return b.Amount
}

func TestNew_RequiresIssuerAndStores(t *testing.T) {
	_, err := New(Options{TokenStore: memory.NewTokenStore()})
	assert.Error(t, err)

	_, err = New(Options{Issuer: central})
	assert.Error(t, err)
}

func TestEngine_ConcreteScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scenarioSetup(t, e)

	r, err := e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("40.00"), "treasury", "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.CommitKindTransfer, r.Kind)
	assert.Equal(t, "treasury", r.Account)
	assert.Equal(t, "bob", r.Counterparty)
	assert.True(t, dec("60").Equal(r.Balance))
	assert.True(t, dec("60").Equal(r.Change))
	assert.Equal(t, 1, r.ConsumedCount)
	assert.Equal(t, "60.00", domain.FormatAmount(r.Balance, r.FractionDigits))

	assert.True(t, dec("60.00").Equal(balance(t, e, bankA, "treasury")))
	assert.True(t, dec("40.00").Equal(balance(t, e, bankA, "bob")))

	_, err = e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("1000.00"), "treasury", "bob")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.True(t, dec("60.00").Equal(balance(t, e, bankA, "treasury")))
	assert.True(t, dec("40.00").Equal(balance(t, e, bankA, "bob")))
}

func TestEngine_CreateTokenPolicy(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.CreateToken(ctx, domain.Caller{Principal: bankA}, "USD-C", usd, 2)
	assert.ErrorIs(t, err, domain.ErrIssuerPolicyViolation)

	_, err = e.CreateToken(ctx, domain.Caller{Principal: central}, "USD-C", usd, 2)
	require.NoError(t, err)

	_, err = e.CreateToken(ctx, domain.Caller{Principal: central}, "USD-C", usd, 4)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	def, err := e.Registry().Lookup(ctx, "USD-C")
	require.NoError(t, err)
	assert.Equal(t, int32(2), def.FractionDigits)
}

func TestEngine_UnknownPartyRejected(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.CreateAccount(ctx, domain.Caller{Principal: "Mallory"}, "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.CreateAccount(ctx, domain.Caller{}, "m2")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEngine_PolicyUsesResolvedPrincipal(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	// A case variant resolves to the issuer and may create tokens
	def, err := e.CreateToken(ctx, domain.Caller{Principal: "zcentral"}, "USD-C", usd, 2)
	require.NoError(t, err)
	assert.Equal(t, central, def.Issuer)

	acct, err := e.CreateAccount(ctx, domain.Caller{Principal: "banka"}, "treasury")
	require.NoError(t, err)
	assert.Equal(t, bankA, acct.Host)
	_, err = e.CreateAccount(ctx, domain.Caller{Principal: bankA}, "bob")
	require.NoError(t, err)
	require.NoError(t, e.ShareAccount(ctx, domain.Caller{Principal: "BANKA"}, "treasury", "zCentral"))

	_, err = e.IssueToken(ctx, domain.Caller{Principal: central, Account: "treasury"}, "USD-C", dec("10"))
	require.NoError(t, err)

	// ...and is still the issuer when transferring
	_, err = e.TransferToken(ctx, domain.Caller{Principal: "zcentral"}, "USD-C", dec("1"), "treasury", "bob")
	assert.ErrorIs(t, err, domain.ErrIssuerPolicyViolation)

	_, err = e.DistributeToken(ctx, domain.Caller{Principal: "ZCENTRAL"}, "USD-C", dec("1"), "banka", "bob")
	require.NoError(t, err)

	r, err := e.TransferToken(ctx, domain.Caller{Principal: "banka"}, "USD-C", dec("1"), "treasury", "bob")
	require.NoError(t, err)
	assert.True(t, dec("9").Equal(r.Balance))
}

func TestNew_ResolvesIssuer(t *testing.T) {
	e, err := New(Options{
		Issuer:       "zcentral",
		TokenStore:   memory.NewTokenStore(),
		AccountStore: memory.NewAccountStore(),
		HoldingStore: memory.NewHoldingStore(),
		Parties:      identity.NewStaticResolver("ZCentral", "BankA"),
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Equal(t, central, e.Issuer())

	_, err = New(Options{
		Issuer:       "Nobody",
		TokenStore:   memory.NewTokenStore(),
		AccountStore: memory.NewAccountStore(),
		HoldingStore: memory.NewHoldingStore(),
		Parties:      identity.NewStaticResolver("ZCentral"),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_DistributeToken(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scenarioSetup(t, e)

	_, err := e.CreateAccount(ctx, domain.Caller{Principal: bankB}, "carol")
	require.NoError(t, err)

	before, err := e.TokenSupply(ctx, "USD-C")
	require.NoError(t, err)

	// Only the issuer distributes
	_, err = e.DistributeToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("5"), bankB, "carol")
	assert.ErrorIs(t, err, domain.ErrIssuerPolicyViolation)

	r, err := e.DistributeToken(ctx, domain.Caller{Principal: central}, "USD-C", dec("25.5"), bankB, "carol")
	require.NoError(t, err)
	assert.Equal(t, domain.CommitKindDistribute, r.Kind)
	assert.True(t, dec("25.50").Equal(r.Balance))

	// Distribution is new issuance
	after, err := e.TokenSupply(ctx, "USD-C")
	require.NoError(t, err)
	assert.True(t, before.Amount.Add(dec("25.5")).Equal(after.Amount))

	// carol is not visible to BankA
	_, err = e.DistributeToken(ctx, domain.Caller{Principal: central}, "USD-C", dec("1"), bankA, "carol")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.DistributeToken(ctx, domain.Caller{Principal: central}, "USD-C", dec("1"), "Nobody", "carol")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_TransferPolicy(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scenarioSetup(t, e)

	// The issuer never transfers, even from an account it can see
	_, err := e.TransferToken(ctx, domain.Caller{Principal: central}, "USD-C", dec("1"), "treasury", "bob")
	assert.ErrorIs(t, err, domain.ErrIssuerPolicyViolation)

	_, err = e.CreateAccount(ctx, domain.Caller{Principal: bankB}, "carol")
	require.NoError(t, err)

	// carol is hidden from BankA
	_, err = e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("1"), "treasury", "carol")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, e.ShareAccount(ctx, domain.Caller{Principal: bankB}, "carol", bankA))
	_, err = e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("1"), "treasury", "carol")
	require.NoError(t, err)

	// BankA can see carol but does not host her
	_, err = e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("1"), "carol", "treasury")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("1"), "treasury", "treasury")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEngine_AmountValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scenarioSetup(t, e)

	tests := []struct {
		name     string
		quantity string
	}{
		{"too precise", "1.001"},
		{"zero", "0"},
		{"negative", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec(tt.quantity), "treasury", "bob")
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)

			_, err = e.IssueToken(ctx, domain.Caller{Principal: central, Account: "treasury"}, "USD-C", dec(tt.quantity))
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}

	// Trailing zeros beyond the precision are accepted
	r, err := e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("1.500"), "treasury", "bob")
	require.NoError(t, err)
	assert.True(t, dec("1.5").Equal(r.Amount))
}

func TestEngine_QueryBalance(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scenarioSetup(t, e)

	_, err := e.CreateAccount(ctx, domain.Caller{Principal: bankA}, "empty")
	require.NoError(t, err)
	assert.True(t, balance(t, e, bankA, "empty").IsZero())

	_, err = e.QueryBalance(ctx, domain.Caller{Principal: bankA}, "NOPE", "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.QueryBalance(ctx, domain.Caller{Principal: bankA}, "USD-C", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.QueryBalance(ctx, domain.Caller{Principal: bankB}, "USD-C", "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_AccountsAndHoldings(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scenarioSetup(t, e)

	_, err := e.CreateAccount(ctx, domain.Caller{Principal: bankB}, "bob")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	acct, err := e.LookupAccount(ctx, domain.Caller{Principal: central}, "treasury")
	require.NoError(t, err)
	assert.Equal(t, bankA, acct.Host)
	assert.True(t, identity.IsAccountKey(acct.Principal))

	_, err = e.LookupAccount(ctx, domain.Caller{Principal: bankB}, "treasury")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Only the host may share
	err = e.ShareAccount(ctx, domain.Caller{Principal: central}, "treasury", bankB)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	hosted, err := e.ListAccounts(ctx, domain.Caller{Principal: bankA})
	require.NoError(t, err)
	assert.Len(t, hosted, 2)

	_, err = e.IssueToken(ctx, domain.Caller{Principal: central, Account: "treasury"}, "USD-C", dec("5"))
	require.NoError(t, err)

	view, err := e.ListHoldings(ctx, domain.Caller{Principal: bankA}, "USD-C", "treasury")
	require.NoError(t, err)
	require.Len(t, view.Holdings, 2)
	assert.True(t, dec("105").Equal(view.Total))
	assert.Less(t, view.Holdings[0].Seq, view.Holdings[1].Seq)

	tokens, err := e.ListTokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestEngine_TransferConservesSupply(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scenarioSetup(t, e)

	sumBalances := func() decimal.Decimal {
		balances, err := e.Ledger().Balances(ctx, "USD-C")
		require.NoError(t, err)
		total := decimal.Zero
		for _, b := range balances {
			total = total.Add(b)
		}
		return total
	}

	before := sumBalances()
	amounts := []string{"10", "0.01", "33.33", "7"}
	for _, a := range amounts {
		_, err := e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec(a), "treasury", "bob")
		require.NoError(t, err)
	}
	for _, a := range []string{"5", "20"} {
		_, err := e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec(a), "bob", "treasury")
		require.NoError(t, err)
	}

	assert.True(t, before.Equal(sumBalances()))
	supply, err := e.TokenSupply(ctx, "USD-C")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(supply.Amount))
}

func TestEngine_ConcurrentTransfersExhaustBalance(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	scenarioSetup(t, e)

	const workers = 30
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("15"), "treasury", "bob")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)
	assert.Equal(t, workers-6, insufficient)
	assert.True(t, dec("10").Equal(balance(t, e, bankA, "treasury")))
	assert.True(t, dec("90").Equal(balance(t, e, bankA, "bob")))
}

type countingObserver struct {
	mu    sync.Mutex
	kinds []domain.CommitKind
}

func (o *countingObserver) OnCommit(_ context.Context, c *domain.Commit) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, c.Kind)
	return nil
}

func TestEngine_ObserverSeesEveryCommit(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	obs := &countingObserver{}
	e.AddObserver(obs)
	scenarioSetup(t, e)

	_, err := e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("1"), "treasury", "bob")
	require.NoError(t, err)

	assert.Equal(t, []domain.CommitKind{domain.CommitKindIssue, domain.CommitKindTransfer}, obs.kinds)
}

// flakySumStore fails balance reads while armed.
type flakySumStore struct {
	*memory.HoldingStore
	armed atomic.Bool
}

func (s *flakySumStore) SumLive(ctx context.Context, symbol, owner string) (decimal.Decimal, error) {
	if s.armed.Load() {
		return decimal.Zero, errors.New("connection reset")
	}
	return s.HoldingStore.SumLive(ctx, symbol, owner)
}

func TestEngine_ReceiptSurvivesBalanceReadFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakySumStore{HoldingStore: memory.NewHoldingStore()}
	e, err := New(Options{
		Issuer:       central,
		TokenStore:   memory.NewTokenStore(),
		AccountStore: memory.NewAccountStore(),
		HoldingStore: store,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	scenarioSetup(t, e)

	store.armed.Store(true)
	r, err := e.TransferToken(ctx, domain.Caller{Principal: bankA}, "USD-C", dec("40"), "treasury", "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, r.CommitID)
	assert.False(t, r.BalanceKnown)
	assert.True(t, dec("60").Equal(r.Change))

	r, err = e.IssueToken(ctx, domain.Caller{Principal: central, Account: "treasury"}, "USD-C", dec("5"))
	require.NoError(t, err)
	assert.NotEmpty(t, r.CommitID)
	assert.False(t, r.BalanceKnown)

	store.armed.Store(false)
	assert.True(t, dec("65").Equal(balance(t, e, bankA, "treasury")))
	assert.True(t, dec("40").Equal(balance(t, e, bankA, "bob")))
}
