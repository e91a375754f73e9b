package domain

import (
	"github.com/shopspring/decimal"
)

// Valuation is the fiat peg of a token unit.
type Valuation struct {
	Amount   decimal.Decimal // value of one token unit
	Currency string          // ISO-4217 code
}

// TokenDefinition describes one fungible token type.
// Corresponds to token_definitions table in PostgreSQL.
type TokenDefinition struct {
	ID             string    // uuid, stable identifier of the definition
	Symbol         string    // unique, immutable
	Issuer         Principal // designated issuer that created the definition
	FractionDigits int32     // decimal places of the smallest unit
	Valuation      Valuation // fiat peg
	CreatedAt      int64     // record creation timestamp (ms)
}

// MaxFractionDigits bounds token precision to what NUMERIC(38,18) columns hold.
const MaxFractionDigits = 18

// DefaultFractionDigits is used when a token definition omits its precision.
const DefaultFractionDigits int32 = 2
