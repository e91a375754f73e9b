// Package ledger implements the LedgerStore operations over a HoldingStore:
// issuance, deterministic input selection with change, and balances.
//
// Every mutation is a single domain.Commit applied atomically by the store.
// Select-consume-produce for one (symbol, owner) pair is serialised in-process;
// the store's compare-and-set on consumed holdings covers other processes, and
// conflicts are retried a bounded number of times.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/idhash"
	"ztoken-ledger/internal/observability"
	"ztoken-ledger/internal/storage"
)

// DefaultMaxRetries bounds selection retries after a commit conflict.
const DefaultMaxRetries = 3

// CommitObserver is notified after a commit is durable.
// Errors are logged and counted; they never undo the commit.
type CommitObserver interface {
	OnCommit(ctx context.Context, c *domain.Commit) error
}

// Payee is a recipient output produced in the same commit as a consumption.
type Payee struct {
	Owner  string
	Amount decimal.Decimal
}

// Meta describes who proposes a commit and why.
type Meta struct {
	Kind   domain.CommitKind
	Caller domain.Principal
}

// Result describes a committed change.
type Result struct {
	Commit   *domain.Commit
	Consumed []*domain.Holding // selected inputs in Seq order
	Outputs  []*domain.Holding // payee or issued holdings in request order
	Change   *domain.Holding   // nil when inputs matched the amount exactly
}

// Options configures a Ledger.
type Options struct {
	Store      storage.HoldingStore
	MaxRetries int // 0 uses DefaultMaxRetries
	Observers  []CommitObserver
	Logger     zerolog.Logger
	Clock      func() time.Time
	Nonce      func() string
}

// Ledger is the LedgerStore.
type Ledger struct {
	store      storage.HoldingStore
	maxRetries int
	observers  []CommitObserver
	logger     zerolog.Logger
	clock      func() time.Time
	nonce      func() string
	locks      *keyedMutex
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	l := &Ledger{
		store:      opts.Store,
		maxRetries: opts.MaxRetries,
		observers:  opts.Observers,
		logger:     opts.Logger.With().Str("component", "ledger").Logger(),
		clock:      opts.Clock,
		nonce:      opts.Nonce,
		locks:      newKeyedMutex(),
	}
	if l.maxRetries <= 0 {
		l.maxRetries = DefaultMaxRetries
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.nonce == nil {
		l.nonce = uuid.NewString
	}
	return l
}

// AddObserver registers an observer. Not safe for use concurrently with commits.
func (l *Ledger) AddObserver(o CommitObserver) {
	l.observers = append(l.observers, o)
}

// Issue credits owner with one new holding of amount. Nothing is consumed.
func (l *Ledger) Issue(ctx context.Context, meta Meta, symbol, owner string, amount decimal.Decimal) (*Result, error) {
	if owner == "" {
		return nil, fmt.Errorf("issue %s: owner: %w", symbol, domain.ErrInvalidArgument)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("issue %s %s: %w", amount.String(), symbol, domain.ErrInvalidAmount)
	}
	if meta.Kind == "" {
		meta.Kind = domain.CommitKindIssue
	}

	c := l.buildCommit(meta, symbol, nil, []Payee{{Owner: owner, Amount: amount}})
	if err := l.store.Apply(ctx, c); err != nil {
		return nil, fmt.Errorf("apply issue commit: %w", err)
	}

	l.committed(ctx, c)
	return &Result{Commit: c, Outputs: c.Produced}, nil
}

// SelectAndConsume consumes the shortest Seq-ordered prefix of owner's live
// holdings covering amount, returns any excess to owner as change and
// produces the payee outputs, all in one commit. Payee amounts must sum to
// amount; with no payees the amount leaves the ledger's view of owner.
func (l *Ledger) SelectAndConsume(
	ctx context.Context,
	meta Meta,
	symbol, owner string,
	amount decimal.Decimal,
	payees ...Payee,
) (*Result, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("consume %s %s: %w", amount.String(), symbol, domain.ErrInvalidAmount)
	}
	if len(payees) > 0 {
		total := decimal.Zero
		for _, p := range payees {
			if p.Owner == "" {
				return nil, fmt.Errorf("payee owner: %w", domain.ErrInvalidArgument)
			}
			if !p.Amount.IsPositive() {
				return nil, fmt.Errorf("payee %s amount %s: %w", p.Owner, p.Amount.String(), domain.ErrInvalidAmount)
			}
			total = total.Add(p.Amount)
		}
		if !total.Equal(amount) {
			return nil, fmt.Errorf("payees total %s != %s: %w", total.String(), amount.String(), domain.ErrInvalidAmount)
		}
	}
	if meta.Kind == "" {
		meta.Kind = domain.CommitKindConsume
		if len(payees) > 0 {
			meta.Kind = domain.CommitKindTransfer
		}
	}

	unlock := l.locks.Lock(symbol + "|" + owner)
	defer unlock()

	for attempt := 0; ; attempt++ {
		res, err := l.trySelectAndConsume(ctx, meta, symbol, owner, amount, payees)
		if err == nil {
			l.committed(ctx, res.Commit)
			return res, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		if attempt >= l.maxRetries {
			l.logger.Warn().
				Str("symbol", symbol).
				Str("account", owner).
				Int("attempts", attempt+1).
				Msg("selection retries exhausted")
			return nil, fmt.Errorf("consume %s from %s after %d attempts: %w",
				symbol, owner, attempt+1, domain.ErrConcurrentModification)
		}

		observability.RecordConflictRetry()
		l.logger.Debug().
			Str("symbol", symbol).
			Str("account", owner).
			Int("attempt", attempt+1).
			Msg("commit conflict, reselecting")
	}
}

func (l *Ledger) trySelectAndConsume(
	ctx context.Context,
	meta Meta,
	symbol, owner string,
	amount decimal.Decimal,
	payees []Payee,
) (*Result, error) {
	live, err := l.store.GetLive(ctx, symbol, owner)
	if err != nil {
		return nil, fmt.Errorf("get live holdings: %w", err)
	}

	selected, sum := selectPrefix(live, amount)
	if sum.LessThan(amount) {
		return nil, fmt.Errorf("%s has %s %s, needs %s: %w",
			owner, sum.String(), symbol, amount.String(), domain.ErrInsufficientBalance)
	}

	consumed := make([]string, len(selected))
	for i, h := range selected {
		consumed[i] = h.ID
	}

	outputs := append([]Payee(nil), payees...)
	change := sum.Sub(amount)
	if change.IsPositive() {
		outputs = append(outputs, Payee{Owner: owner, Amount: change})
	}

	c := l.buildCommit(meta, symbol, consumed, outputs)
	if err := l.store.Apply(ctx, c); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("apply %s commit: %w", meta.Kind, err)
	}

	res := &Result{
		Commit:   c,
		Consumed: selected,
		Outputs:  c.Produced[:len(payees)],
	}
	if change.IsPositive() {
		res.Change = c.Produced[len(payees)]
	}
	return res, nil
}

// selectPrefix returns the shortest prefix of holdings whose sum reaches
// amount, or all holdings when they do not.
func selectPrefix(holdings []*domain.Holding, amount decimal.Decimal) ([]*domain.Holding, decimal.Decimal) {
	sum := decimal.Zero
	for i, h := range holdings {
		sum = sum.Add(h.Amount)
		if sum.GreaterThanOrEqual(amount) {
			return holdings[:i+1], sum
		}
	}
	return holdings, sum
}

// BalanceOf returns the sum of owner's live holdings of symbol.
func (l *Ledger) BalanceOf(ctx context.Context, symbol, owner string) (decimal.Decimal, error) {
	total, err := l.store.SumLive(ctx, symbol, owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s %s: %w", owner, symbol, err)
	}
	return total, nil
}

// Holdings returns owner's live holdings of symbol in Seq order.
func (l *Ledger) Holdings(ctx context.Context, symbol, owner string) ([]*domain.Holding, error) {
	live, err := l.store.GetLive(ctx, symbol, owner)
	if err != nil {
		return nil, fmt.Errorf("holdings of %s %s: %w", owner, symbol, err)
	}
	return live, nil
}

// Supply returns the total live amount of symbol.
func (l *Ledger) Supply(ctx context.Context, symbol string) (decimal.Decimal, error) {
	total, err := l.store.SumSupply(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("supply of %s: %w", symbol, err)
	}
	return total, nil
}

// Balances returns owner -> live total for symbol.
func (l *Ledger) Balances(ctx context.Context, symbol string) (map[string]decimal.Decimal, error) {
	balances, err := l.store.BalancesBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("balances of %s: %w", symbol, err)
	}
	return balances, nil
}

// Commits returns the commit log for symbol in commit order.
func (l *Ledger) Commits(ctx context.Context, symbol string) ([]*domain.Commit, error) {
	commits, err := l.store.ListCommits(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("commits of %s: %w", symbol, err)
	}
	return commits, nil
}

func (l *Ledger) buildCommit(meta Meta, symbol string, consumed []string, outputs []Payee) *domain.Commit {
	now := l.clock().UnixMilli()

	legs := make([]idhash.CommitOutput, len(outputs))
	for i, o := range outputs {
		legs[i] = idhash.CommitOutput{Owner: o.Owner, Amount: o.Amount.String()}
	}
	commitID := idhash.ComputeCommitID(string(meta.Kind), symbol, consumed, legs, l.nonce())

	produced := make([]*domain.Holding, len(outputs))
	for i, o := range outputs {
		produced[i] = &domain.Holding{
			ID:        idhash.ComputeHoldingID(commitID, i),
			Symbol:    symbol,
			Owner:     o.Owner,
			Amount:    o.Amount,
			CommitID:  commitID,
			CreatedAt: now,
		}
	}

	return &domain.Commit{
		ID:        commitID,
		Kind:      meta.Kind,
		Symbol:    symbol,
		Caller:    meta.Caller,
		Consumed:  consumed,
		Produced:  produced,
		CreatedAt: now,
	}
}

// committed logs the commit and notifies observers.
func (l *Ledger) committed(ctx context.Context, c *domain.Commit) {
	l.logger.Info().
		Str("commit_id", c.ID).
		Str("kind", string(c.Kind)).
		Str("symbol", c.Symbol).
		Int("consumed", len(c.Consumed)).
		Int("produced", len(c.Produced)).
		Msg("commit applied")

	for _, o := range l.observers {
		if err := o.OnCommit(ctx, c); err != nil {
			name := fmt.Sprintf("%T", o)
			observability.RecordObserverFailure(name)
			l.logger.Error().
				Err(err).
				Str("commit_id", c.ID).
				Str("observer", name).
				Msg("commit observer failed")
		}
	}
}
