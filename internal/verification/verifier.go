// Package verification audits the ledger by replaying its commit log.
// A replay rebuilds every holding from commits alone and checks the result
// against the live state and, when configured, the commit journal.
package verification

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
)

// Check names.
const (
	CheckUnknownHolding     = "unknown_holding"
	CheckDoubleConsumption  = "double_consumption"
	CheckNonPositiveHolding = "non_positive_holding"
	CheckSymbolMismatch     = "symbol_mismatch"
	CheckUnknownKind        = "unknown_kind"
	CheckConservation       = "conservation"
	CheckBalanceMismatch    = "balance_mismatch"
	CheckSupplyMismatch     = "supply_mismatch"
	CheckJournalMissing     = "journal_missing"
	CheckJournalOrphan      = "journal_orphan"
	CheckJournalDivergence  = "journal_divergence"
)

// FieldDivergence represents a mismatch between stored and journaled values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // ledger value
	Actual   interface{} // journal value
}

// Violation is one failed check.
type Violation struct {
	Check  string
	Symbol string
	Ref    string // commit id, holding id or account name
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s [%s]: %s", v.Symbol, v.Check, v.Ref, v.Detail)
}

// SymbolResult contains the audit of one token.
type SymbolResult struct {
	Symbol     string
	Commits    int
	Issued     decimal.Decimal // produced by ISSUE and DISTRIBUTE
	Burned     decimal.Decimal // consumed minus produced by CONSUME
	Replayed   decimal.Decimal // live supply rebuilt from commits
	Supply     decimal.Decimal // live supply reported by the store
	Violations []Violation
}

// OK reports whether every check passed.
func (r *SymbolResult) OK() bool {
	return len(r.Violations) == 0
}

func (r *SymbolResult) fail(check, ref, format string, args ...interface{}) {
	r.Violations = append(r.Violations, Violation{
		Check:  check,
		Symbol: r.Symbol,
		Ref:    ref,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Report contains results for every audited token.
type Report struct {
	Results         []SymbolResult
	TotalCommits    int
	TotalViolations int
}

// OK reports whether every token passed.
func (r *Report) OK() bool {
	return r.TotalViolations == 0
}

// Verifier audits ledger state.
type Verifier interface {
	// VerifySymbol replays the commits of one token.
	VerifySymbol(ctx context.Context, symbol string) (*SymbolResult, error)

	// VerifyAll replays every token, or the given symbols.
	VerifyAll(ctx context.Context, symbols ...string) (*Report, error)
}

// CompareCommits compares a ledger commit with its journaled copy.
func CompareCommits(stored, journaled *domain.Commit) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.Kind != journaled.Kind {
		divergences = append(divergences, FieldDivergence{Field: "Kind", Expected: stored.Kind, Actual: journaled.Kind})
	}
	if stored.Symbol != journaled.Symbol {
		divergences = append(divergences, FieldDivergence{Field: "Symbol", Expected: stored.Symbol, Actual: journaled.Symbol})
	}
	if stored.Caller != journaled.Caller {
		divergences = append(divergences, FieldDivergence{Field: "Caller", Expected: stored.Caller, Actual: journaled.Caller})
	}
	if !equalStrings(stored.Consumed, journaled.Consumed) {
		divergences = append(divergences, FieldDivergence{Field: "Consumed", Expected: stored.Consumed, Actual: journaled.Consumed})
	}

	if len(stored.Produced) != len(journaled.Produced) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Produced",
			Expected: len(stored.Produced),
			Actual:   len(journaled.Produced),
		})
		return divergences
	}

	// Produced order is not significant; match by holding id
	journaledByID := make(map[string]*domain.Holding, len(journaled.Produced))
	for _, h := range journaled.Produced {
		journaledByID[h.ID] = h
	}
	for _, h := range stored.Produced {
		j, ok := journaledByID[h.ID]
		if !ok {
			divergences = append(divergences, FieldDivergence{Field: "Produced", Expected: h.ID, Actual: nil})
			continue
		}
		if j.Owner != h.Owner {
			divergences = append(divergences, FieldDivergence{Field: "Produced[" + h.ID + "].Owner", Expected: h.Owner, Actual: j.Owner})
		}
		if !j.Amount.Equal(h.Amount) {
			divergences = append(divergences, FieldDivergence{Field: "Produced[" + h.ID + "].Amount", Expected: h.Amount.String(), Actual: j.Amount.String()})
		}
	}

	return divergences
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
