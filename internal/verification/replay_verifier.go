package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/registry"
	"ztoken-ledger/internal/storage"
)

// LedgerSource is the read side of a holding store needed for replay.
type LedgerSource interface {
	ListCommits(ctx context.Context, symbol string) ([]*domain.Commit, error)
	BalancesBySymbol(ctx context.Context, symbol string) (map[string]decimal.Decimal, error)
	SumSupply(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// ReplayVerifier implements Verifier by replaying the commit log.
type ReplayVerifier struct {
	tokenStore storage.TokenStore
	ledger     LedgerSource
	journal    storage.CommitJournal // optional
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	TokenStore storage.TokenStore
	Ledger     LedgerSource
	Journal    storage.CommitJournal // when set, journaled commits are compared with the ledger
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		tokenStore: opts.TokenStore,
		ledger:     opts.Ledger,
		journal:    opts.Journal,
	}
}

// replayed is the state rebuilt for one holding.
type replayed struct {
	holding    *domain.Holding
	consumedBy string
}

// VerifySymbol replays the commits of symbol in commit order.
func (v *ReplayVerifier) VerifySymbol(ctx context.Context, symbol string) (*SymbolResult, error) {
	symbol = registry.NormalizeSymbol(symbol)
	if _, err := v.tokenStore.GetBySymbol(ctx, symbol); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("token %s: %w", symbol, domain.ErrNotFound)
		}
		return nil, err
	}

	commits, err := v.ledger.ListCommits(ctx, symbol)
	if err != nil {
		return nil, err
	}

	res := &SymbolResult{
		Symbol:   symbol,
		Commits:  len(commits),
		Issued:   decimal.Zero,
		Burned:   decimal.Zero,
		Replayed: decimal.Zero,
	}

	holdings := make(map[string]*replayed)
	for _, c := range commits {
		v.replayCommit(res, holdings, c)
	}

	// Rebuild live balances
	live := make(map[string]decimal.Decimal)
	for _, r := range holdings {
		if r.consumedBy != "" {
			continue
		}
		live[r.holding.Owner] = live[r.holding.Owner].Add(r.holding.Amount)
		res.Replayed = res.Replayed.Add(r.holding.Amount)
	}

	expected := res.Issued.Sub(res.Burned)
	if !res.Replayed.Equal(expected) {
		res.fail(CheckConservation, symbol, "replayed supply %s != issued %s - burned %s",
			res.Replayed, res.Issued, res.Burned)
	}

	res.Supply, err = v.ledger.SumSupply(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !res.Supply.Equal(res.Replayed) {
		res.fail(CheckSupplyMismatch, symbol, "store supply %s != replayed %s", res.Supply, res.Replayed)
	}

	balances, err := v.ledger.BalancesBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	compareBalances(res, live, balances)

	if v.journal != nil {
		if err := v.compareJournal(ctx, res, commits); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// replayCommit applies c to holdings, recording violations on res.
func (v *ReplayVerifier) replayCommit(res *SymbolResult, holdings map[string]*replayed, c *domain.Commit) {
	consumed := decimal.Zero
	for _, id := range c.Consumed {
		r, ok := holdings[id]
		if !ok {
			res.fail(CheckUnknownHolding, c.ID, "consumes holding %s that no earlier commit produced", id)
			continue
		}
		if r.consumedBy != "" {
			res.fail(CheckDoubleConsumption, id, "consumed by %s and %s", r.consumedBy, c.ID)
			continue
		}
		r.consumedBy = c.ID
		consumed = consumed.Add(r.holding.Amount)
	}

	produced := decimal.Zero
	for _, h := range c.Produced {
		if !h.Amount.IsPositive() {
			res.fail(CheckNonPositiveHolding, h.ID, "amount %s", h.Amount)
		}
		if h.Symbol != "" && h.Symbol != c.Symbol {
			res.fail(CheckSymbolMismatch, h.ID, "holding symbol %s in %s commit", h.Symbol, c.Symbol)
		}
		holdings[h.ID] = &replayed{holding: h}
		produced = produced.Add(h.Amount)
	}

	switch c.Kind {
	case domain.CommitKindIssue, domain.CommitKindDistribute:
		if len(c.Consumed) > 0 {
			res.fail(CheckConservation, c.ID, "%s commit consumes holdings", c.Kind)
		}
		res.Issued = res.Issued.Add(produced)
	case domain.CommitKindTransfer:
		if !produced.Equal(consumed) {
			res.fail(CheckConservation, c.ID, "transfer produced %s from %s", produced, consumed)
		}
	case domain.CommitKindConsume:
		if produced.GreaterThan(consumed) {
			res.fail(CheckConservation, c.ID, "consume produced %s from %s", produced, consumed)
		}
		res.Burned = res.Burned.Add(consumed.Sub(produced))
	default:
		res.fail(CheckUnknownKind, c.ID, "unknown commit kind %q", c.Kind)
	}
}

func compareBalances(res *SymbolResult, replayed, stored map[string]decimal.Decimal) {
	owners := make(map[string]struct{}, len(replayed)+len(stored))
	for o := range replayed {
		owners[o] = struct{}{}
	}
	for o := range stored {
		owners[o] = struct{}{}
	}

	names := make([]string, 0, len(owners))
	for o := range owners {
		names = append(names, o)
	}
	sort.Strings(names)

	for _, o := range names {
		want, got := replayed[o], stored[o]
		if !want.Equal(got) {
			res.fail(CheckBalanceMismatch, o, "store balance %s != replayed %s", got, want)
		}
		if got.IsNegative() {
			res.fail(CheckBalanceMismatch, o, "negative balance %s", got)
		}
	}
}

// compareJournal matches ledger commits with journaled commits by id.
func (v *ReplayVerifier) compareJournal(ctx context.Context, res *SymbolResult, commits []*domain.Commit) error {
	journaled, err := v.journal.GetBySymbol(ctx, res.Symbol)
	if err != nil {
		return err
	}

	byID := make(map[string]*domain.Commit, len(journaled))
	for _, c := range journaled {
		byID[c.ID] = c
	}

	for _, c := range commits {
		j, ok := byID[c.ID]
		if !ok {
			res.fail(CheckJournalMissing, c.ID, "commit not journaled")
			continue
		}
		delete(byID, c.ID)
		for _, d := range CompareCommits(c, j) {
			res.fail(CheckJournalDivergence, c.ID, "%s: ledger %v, journal %v", d.Field, d.Expected, d.Actual)
		}
	}

	orphans := make([]string, 0, len(byID))
	for id := range byID {
		orphans = append(orphans, id)
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		res.fail(CheckJournalOrphan, id, "journaled commit missing from ledger")
	}
	return nil
}

// VerifyAll verifies symbols, or every defined token when none are given.
func (v *ReplayVerifier) VerifyAll(ctx context.Context, symbols ...string) (*Report, error) {
	if len(symbols) == 0 {
		defs, err := v.tokenStore.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range defs {
			symbols = append(symbols, d.Symbol)
		}
	}

	report := &Report{Results: make([]SymbolResult, 0, len(symbols))}
	for _, s := range symbols {
		res, err := v.VerifySymbol(ctx, s)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, *res)
		report.TotalCommits += res.Commits
		report.TotalViolations += len(res.Violations)
	}
	return report, nil
}

var _ Verifier = (*ReplayVerifier)(nil)
