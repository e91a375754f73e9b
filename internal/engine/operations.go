package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/ledger"
)

// CreateToken defines symbol with the caller as issuer.
// Only the designated issuer may create tokens.
func (e *Engine) CreateToken(
	ctx context.Context,
	caller domain.Caller,
	symbol string,
	valuation domain.Valuation,
	fractionDigits int32,
) (def *domain.TokenDefinition, err error) {
	start := time.Now()
	defer func() { e.observe(OpCreateToken, caller, start, err) }()

	if caller, err = e.resolveCaller(caller); err != nil {
		return nil, err
	}
	return e.registry.Define(ctx, symbol, caller.Principal, fractionDigits, valuation)
}

// IssueToken credits quantity of symbol to the caller's home account.
func (e *Engine) IssueToken(
	ctx context.Context,
	caller domain.Caller,
	symbol string,
	quantity decimal.Decimal,
) (r *Receipt, err error) {
	start := time.Now()
	defer func() { e.observe(OpIssueToken, caller, start, err) }()

	if caller, err = e.resolveCaller(caller); err != nil {
		return nil, err
	}
	def, err := e.registry.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	amount, err := domain.Rescale(quantity, def.FractionDigits)
	if err != nil {
		return nil, err
	}
	if caller.Account == "" {
		return nil, fmt.Errorf("issue %s: caller has no home account: %w", def.Symbol, domain.ErrInvalidArgument)
	}
	acct, err := e.accounts.ResolveVisible(ctx, caller.Account, caller.Principal)
	if err != nil {
		return nil, err
	}

	res, err := e.ledger.Issue(ctx, ledger.Meta{Kind: domain.CommitKindIssue, Caller: caller.Principal},
		def.Symbol, acct.Name, amount)
	if err != nil {
		return nil, err
	}
	return e.receipt(ctx, def, res, acct.Name, "", amount), nil
}

// DistributeToken issues quantity of symbol directly to toAccount, which must
// be hosted by or shared with recipient. Only the designated issuer may
// distribute; distribution is net new issuance.
func (e *Engine) DistributeToken(
	ctx context.Context,
	caller domain.Caller,
	symbol string,
	quantity decimal.Decimal,
	recipient domain.Principal,
	toAccount string,
) (r *Receipt, err error) {
	start := time.Now()
	defer func() { e.observe(OpDistributeToken, caller, start, err) }()

	if caller, err = e.resolveCaller(caller); err != nil {
		return nil, err
	}
	if caller.Principal != e.issuer {
		return nil, fmt.Errorf("distribute by %s: %w", caller.Principal, domain.ErrIssuerPolicyViolation)
	}
	if recipient, err = e.resolveParty(recipient); err != nil {
		return nil, err
	}
	def, err := e.registry.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	amount, err := domain.Rescale(quantity, def.FractionDigits)
	if err != nil {
		return nil, err
	}
	acct, err := e.accounts.ResolveVisible(ctx, toAccount, recipient)
	if err != nil {
		return nil, err
	}

	res, err := e.ledger.Issue(ctx, ledger.Meta{Kind: domain.CommitKindDistribute, Caller: caller.Principal},
		def.Symbol, acct.Name, amount)
	if err != nil {
		return nil, err
	}
	return e.receipt(ctx, def, res, acct.Name, "", amount), nil
}

// TransferToken moves quantity of symbol from fromAccount, which the caller
// must host, to toAccount, which the caller must be able to see. The
// designated issuer may not transfer.
func (e *Engine) TransferToken(
	ctx context.Context,
	caller domain.Caller,
	symbol string,
	quantity decimal.Decimal,
	fromAccount, toAccount string,
) (r *Receipt, err error) {
	start := time.Now()
	defer func() { e.observe(OpTransferToken, caller, start, err) }()

	if caller, err = e.resolveCaller(caller); err != nil {
		return nil, err
	}
	if caller.Principal == e.issuer {
		return nil, fmt.Errorf("transfer by %s: %w", caller.Principal, domain.ErrIssuerPolicyViolation)
	}
	def, err := e.registry.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	amount, err := domain.Rescale(quantity, def.FractionDigits)
	if err != nil {
		return nil, err
	}
	from, err := e.accounts.ResolveHosted(ctx, fromAccount, caller.Principal)
	if err != nil {
		return nil, err
	}
	to, err := e.accounts.ResolveVisible(ctx, toAccount, caller.Principal)
	if err != nil {
		return nil, err
	}
	if from.Name == to.Name {
		return nil, fmt.Errorf("transfer %s to itself: %w", from.Name, domain.ErrInvalidArgument)
	}

	res, err := e.ledger.SelectAndConsume(ctx,
		ledger.Meta{Kind: domain.CommitKindTransfer, Caller: caller.Principal},
		def.Symbol, from.Name, amount,
		ledger.Payee{Owner: to.Name, Amount: amount},
	)
	if err != nil {
		return nil, err
	}
	return e.receipt(ctx, def, res, from.Name, to.Name, amount), nil
}

// QueryBalance returns the live balance of symbol held by account.
func (e *Engine) QueryBalance(ctx context.Context, caller domain.Caller, symbol, account string) (b *Balance, err error) {
	start := time.Now()
	defer func() { e.observe(OpQueryBalance, caller, start, err) }()

	caller = e.viewer(caller)
	def, err := e.registry.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	acct, err := e.accounts.ResolveVisible(ctx, account, caller.Principal)
	if err != nil {
		return nil, err
	}
	amount, err := e.ledger.BalanceOf(ctx, def.Symbol, acct.Name)
	if err != nil {
		return nil, err
	}
	return &Balance{
		Symbol:         def.Symbol,
		FractionDigits: def.FractionDigits,
		Account:        acct.Name,
		Amount:         amount,
	}, nil
}

// CreateAccount registers name hosted by the caller.
func (e *Engine) CreateAccount(ctx context.Context, caller domain.Caller, name string) (a *domain.Account, err error) {
	start := time.Now()
	defer func() { e.observe(OpCreateAccount, caller, start, err) }()

	if caller, err = e.resolveCaller(caller); err != nil {
		return nil, err
	}
	return e.accounts.Register(ctx, name, caller.Principal)
}

// LookupAccount returns name if it is visible to the caller.
func (e *Engine) LookupAccount(ctx context.Context, caller domain.Caller, name string) (a *domain.Account, err error) {
	start := time.Now()
	defer func() { e.observe(OpLookupAccount, caller, start, err) }()

	caller = e.viewer(caller)
	return e.accounts.ResolveVisible(ctx, name, caller.Principal)
}

// ShareAccount lets counterparty observe and address name. Only the host may share.
func (e *Engine) ShareAccount(ctx context.Context, caller domain.Caller, name string, counterparty domain.Principal) (err error) {
	start := time.Now()
	defer func() { e.observe(OpShareAccount, caller, start, err) }()

	if caller, err = e.resolveCaller(caller); err != nil {
		return err
	}
	if counterparty, err = e.resolveParty(counterparty); err != nil {
		return err
	}
	if _, err = e.accounts.ResolveHosted(ctx, name, caller.Principal); err != nil {
		return err
	}
	return e.accounts.Share(ctx, name, counterparty)
}

// ListAccounts returns the accounts hosted by the caller.
func (e *Engine) ListAccounts(ctx context.Context, caller domain.Caller) ([]*domain.Account, error) {
	return e.accounts.ListHosted(ctx, e.viewer(caller).Principal)
}

// ListTokens returns all token definitions.
func (e *Engine) ListTokens(ctx context.Context) ([]*domain.TokenDefinition, error) {
	return e.registry.List(ctx)
}

// ListHoldings returns the live holdings of symbol in account.
func (e *Engine) ListHoldings(ctx context.Context, caller domain.Caller, symbol, account string) (v *HoldingsView, err error) {
	start := time.Now()
	defer func() { e.observe(OpListHoldings, caller, start, err) }()

	caller = e.viewer(caller)
	def, err := e.registry.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	acct, err := e.accounts.ResolveVisible(ctx, account, caller.Principal)
	if err != nil {
		return nil, err
	}
	holdings, err := e.ledger.Holdings(ctx, def.Symbol, acct.Name)
	if err != nil {
		return nil, err
	}
	return &HoldingsView{
		Symbol:         def.Symbol,
		FractionDigits: def.FractionDigits,
		Account:        acct.Name,
		Holdings:       holdings,
		Total:          domain.SumHoldings(holdings),
	}, nil
}

// TokenSupply returns the total live amount of symbol.
func (e *Engine) TokenSupply(ctx context.Context, symbol string) (s *Supply, err error) {
	start := time.Now()
	defer func() { e.observe(OpTokenSupply, domain.Caller{}, start, err) }()

	def, err := e.registry.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	amount, err := e.ledger.Supply(ctx, def.Symbol)
	if err != nil {
		return nil, err
	}
	return &Supply{Token: def, Amount: amount}, nil
}

// receipt builds the result of a committed operation. The commit is durable
// by now, so a failed balance read leaves BalanceKnown false instead of
// failing the operation.
func (e *Engine) receipt(
	ctx context.Context,
	def *domain.TokenDefinition,
	res *ledger.Result,
	account, counterparty string,
	amount decimal.Decimal,
) *Receipt {
	r := &Receipt{
		CommitID:       res.Commit.ID,
		Kind:           res.Commit.Kind,
		Symbol:         def.Symbol,
		FractionDigits: def.FractionDigits,
		Amount:         amount,
		Account:        account,
		Counterparty:   counterparty,
		Change:         decimal.Zero,
		ConsumedCount:  res.Commit.ConsumedCount(),
	}
	if res.Change != nil {
		r.Change = res.Change.Amount
	}

	balance, err := e.ledger.BalanceOf(ctx, def.Symbol, account)
	if err != nil {
		e.logger.Error().
			Err(err).
			Str("commit_id", res.Commit.ID).
			Str("symbol", def.Symbol).
			Str("account", account).
			Msg("balance read after commit failed")
		return r
	}
	r.Balance = balance
	r.BalanceKnown = true
	return r
}
