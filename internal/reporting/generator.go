package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/registry"
	"ztoken-ledger/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Generator produces supply reports from stored data.
type Generator struct {
	tokenStore   storage.TokenStore
	accountStore storage.AccountStore
	holdingStore storage.HoldingStore
	now          func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	tokenStore storage.TokenStore,
	accountStore storage.AccountStore,
	holdingStore storage.HoldingStore,
) *Generator {
	return &Generator{
		tokenStore:   tokenStore,
		accountStore: accountStore,
		holdingStore: holdingStore,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report for symbols, or for every token when symbols is empty.
func (g *Generator) Generate(ctx context.Context, symbols ...string) (*Report, error) {
	defs, err := g.selectTokens(ctx, symbols)
	if err != nil {
		return nil, err
	}

	hosts, err := g.accountHosts(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{GeneratedAt: g.now()}
	for _, def := range defs {
		section, err := g.generateSection(ctx, def, hosts)
		if err != nil {
			return nil, err
		}
		report.Tokens = append(report.Tokens, *section)
	}
	return report, nil
}

func (g *Generator) selectTokens(ctx context.Context, symbols []string) ([]*domain.TokenDefinition, error) {
	if len(symbols) == 0 {
		return g.tokenStore.List(ctx)
	}

	defs := make([]*domain.TokenDefinition, 0, len(symbols))
	for _, s := range symbols {
		def, err := g.tokenStore.GetBySymbol(ctx, registry.NormalizeSymbol(s))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("token %s: %w", s, domain.ErrNotFound)
			}
			return nil, err
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Symbol < defs[j].Symbol })
	return defs, nil
}

// accountHosts maps account name to hosting principal.
func (g *Generator) accountHosts(ctx context.Context) (map[string]string, error) {
	accts, err := g.accountStore.List(ctx)
	if err != nil {
		return nil, err
	}
	hosts := make(map[string]string, len(accts))
	for _, a := range accts {
		hosts[a.Name] = a.Host.String()
	}
	return hosts, nil
}

// generateSection computes supply, issuance and holder rows for one token.
func (g *Generator) generateSection(ctx context.Context, def *domain.TokenDefinition, hosts map[string]string) (*TokenSection, error) {
	supply, err := g.holdingStore.SumSupply(ctx, def.Symbol)
	if err != nil {
		return nil, err
	}

	commits, err := g.holdingStore.ListCommits(ctx, def.Symbol)
	if err != nil {
		return nil, err
	}

	issued := decimal.Zero
	counts := make(map[string]int)
	for _, c := range commits {
		counts[string(c.Kind)]++
		if c.Kind == domain.CommitKindIssue || c.Kind == domain.CommitKindDistribute {
			issued = issued.Add(domain.SumHoldings(c.Produced))
		}
	}

	balances, err := g.holdingStore.BalancesBySymbol(ctx, def.Symbol)
	if err != nil {
		return nil, err
	}

	holders := make([]HolderRow, 0, len(balances))
	for owner, balance := range balances {
		live, err := g.holdingStore.GetLive(ctx, def.Symbol, owner)
		if err != nil {
			return nil, err
		}
		row := HolderRow{
			Symbol:       def.Symbol,
			Account:      owner,
			Host:         hosts[owner],
			Balance:      balance,
			HoldingCount: len(live),
			SharePct:     decimal.Zero,
		}
		if supply.IsPositive() {
			row.SharePct = balance.Div(supply).Mul(hundred).Round(2)
		}
		holders = append(holders, row)
	}
	sortHolders(holders)

	return &TokenSection{
		Symbol:            def.Symbol,
		Issuer:            def.Issuer.String(),
		FractionDigits:    def.FractionDigits,
		ValuationAmount:   def.Valuation.Amount,
		ValuationCurrency: def.Valuation.Currency,
		Supply:            supply,
		Issued:            issued,
		CommitCount:       len(commits),
		KindCounts:        sortedKindCounts(counts),
		Holders:           holders,
	}, nil
}

// sortHolders sorts by balance DESC, then account ASC.
func sortHolders(rows []HolderRow) {
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Balance.Cmp(rows[j].Balance); c != 0 {
			return c > 0
		}
		return rows[i].Account < rows[j].Account
	})
}

func sortedKindCounts(counts map[string]int) []KindCountRow {
	rows := make([]KindCountRow, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, KindCountRow{Kind: k, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Kind < rows[j].Kind })
	return rows
}
