// Package engine provides the TransferEngine: the callable operations of the
// ledger, each executed as one all-or-nothing unit.
package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/accounts"
	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/identity"
	"ztoken-ledger/internal/ledger"
	"ztoken-ledger/internal/observability"
	"ztoken-ledger/internal/registry"
	"ztoken-ledger/internal/storage"
)

// Operation names used in logs and metrics.
const (
	OpCreateToken     = "create_token"
	OpIssueToken      = "issue_token"
	OpDistributeToken = "distribute_token"
	OpTransferToken   = "transfer_token"
	OpQueryBalance    = "query_balance"
	OpCreateAccount   = "create_account"
	OpLookupAccount   = "lookup_account"
	OpShareAccount    = "share_account"
	OpListHoldings    = "list_holdings"
	OpTokenSupply     = "token_supply"
)

// Engine coordinates the registry, the account directory and the ledger.
type Engine struct {
	registry *registry.Registry
	accounts *accounts.Directory
	ledger   *ledger.Ledger
	parties  identity.Resolver
	issuer   domain.Principal
	logger   zerolog.Logger
}

// Options for creating an Engine.
type Options struct {
	// Required
	Issuer       domain.Principal // designated central issuer
	TokenStore   storage.TokenStore
	AccountStore storage.AccountStore
	HoldingStore storage.HoldingStore

	// Optional
	Keys       identity.KeySource // nil uses crypto/rand Ed25519 keys
	Parties    identity.Resolver  // when set, caller and counterparty principals must resolve
	MaxRetries int                // 0 uses ledger.DefaultMaxRetries
	Observers  []ledger.CommitObserver
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("issuer principal is required")
	}
	if opts.TokenStore == nil || opts.AccountStore == nil || opts.HoldingStore == nil {
		return nil, fmt.Errorf("token, account and holding stores are required")
	}

	keys := opts.Keys
	if keys == nil {
		keys = identity.NewEd25519KeySource(nil)
	}

	issuer := opts.Issuer
	if opts.Parties != nil {
		p, err := opts.Parties.Resolve(issuer.String())
		if err != nil {
			return nil, fmt.Errorf("issuer %s: %w", issuer, err)
		}
		issuer = p
	}

	return &Engine{
		registry: registry.New(opts.TokenStore, issuer, opts.Logger),
		accounts: accounts.New(opts.AccountStore, keys, opts.Logger),
		ledger: ledger.New(ledger.Options{
			Store:      opts.HoldingStore,
			MaxRetries: opts.MaxRetries,
			Observers:  opts.Observers,
			Logger:     opts.Logger,
			Clock:      opts.Clock,
		}),
		parties: opts.Parties,
		issuer:  issuer,
		logger:  opts.Logger.With().Str("component", "engine").Logger(),
	}, nil
}

// Issuer returns the designated issuer principal.
func (e *Engine) Issuer() domain.Principal {
	return e.issuer
}

// Registry returns the token registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Accounts returns the account directory.
func (e *Engine) Accounts() *accounts.Directory {
	return e.accounts
}

// Ledger returns the underlying ledger.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// AddObserver registers a commit observer. Call before serving traffic.
func (e *Engine) AddObserver(o ledger.CommitObserver) {
	e.ledger.AddObserver(o)
}

// Receipt is the structured result of a mutating operation.
type Receipt struct {
	CommitID       string
	Kind           domain.CommitKind
	Symbol         string
	FractionDigits int32
	Amount         decimal.Decimal
	Account        string          // account whose balance is reported
	Counterparty   string          // recipient account of a transfer
	Balance        decimal.Decimal // Account's balance after the commit
	BalanceKnown   bool            // false if the balance read after the commit failed
	Change         decimal.Decimal // change returned to the source, zero if none
	ConsumedCount  int
}

// Balance is the result of a balance query.
type Balance struct {
	Symbol         string
	FractionDigits int32
	Account        string
	Amount         decimal.Decimal
}

// HoldingsView lists an account's live holdings of one symbol.
type HoldingsView struct {
	Symbol         string
	FractionDigits int32
	Account        string
	Holdings       []*domain.Holding
	Total          decimal.Decimal
}

// Supply is the total live amount of a symbol.
type Supply struct {
	Token  *domain.TokenDefinition
	Amount decimal.Decimal
}

// observe records the outcome of an operation started at start.
func (e *Engine) observe(op string, caller domain.Caller, start time.Time, err error) {
	observability.RecordOperation(op, time.Since(start).Seconds(), err)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("operation", op).
			Str("caller", caller.Principal.String()).
			Msg("operation failed")
	}
}

// resolveParty returns the principal p resolves to when a resolver is
// configured, and p itself otherwise. Policy checks use the returned value.
func (e *Engine) resolveParty(p domain.Principal) (domain.Principal, error) {
	if p == "" {
		return "", fmt.Errorf("principal: %w", domain.ErrInvalidArgument)
	}
	if e.parties == nil {
		return p, nil
	}
	return e.parties.Resolve(p.String())
}

// resolveCaller replaces caller.Principal with its resolved principal.
func (e *Engine) resolveCaller(caller domain.Caller) (domain.Caller, error) {
	p, err := e.resolveParty(caller.Principal)
	if err != nil {
		return caller, err
	}
	caller.Principal = p
	return caller, nil
}

// viewer resolves caller for read-only operations. A principal that does not
// resolve is kept as given, so it only sees what it hosts or was shared.
func (e *Engine) viewer(caller domain.Caller) domain.Caller {
	if resolved, err := e.resolveCaller(caller); err == nil {
		return resolved
	}
	return caller
}
