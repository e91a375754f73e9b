package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report represents the supply report structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Tokens sorted by symbol
	Tokens []TokenSection
}

// TokenSection summarises one token.
type TokenSection struct {
	Symbol            string
	Issuer            string
	FractionDigits    int32
	ValuationAmount   decimal.Decimal
	ValuationCurrency string

	Supply      decimal.Decimal // sum of live holdings
	Issued      decimal.Decimal // sum of ISSUE and DISTRIBUTE outputs
	CommitCount int
	KindCounts  []KindCountRow

	// Holders sorted by balance DESC, then account
	Holders []HolderRow
}

// KindCountRow counts commits of one kind.
type KindCountRow struct {
	Kind  string
	Count int
}

// HolderRow is one account's position in a token.
type HolderRow struct {
	Symbol       string
	Account      string
	Host         string
	Balance      decimal.Decimal
	HoldingCount int
	SharePct     decimal.Decimal // Balance / Supply * 100, 0 if supply is 0
}

// Conserved reports whether live supply equals issued supply.
func (s TokenSection) Conserved() bool {
	return s.Supply.Equal(s.Issued)
}
