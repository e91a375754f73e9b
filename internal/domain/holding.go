package domain

import (
	"github.com/shopspring/decimal"
)

// Holding is an indivisible record of ownership of a fixed amount of one token.
// Spending consumes it fully and produces new holdings.
// Corresponds to holdings table in PostgreSQL.
type Holding struct {
	ID        string          // base58(sha256(commit_id|output_index))
	Seq       int64           // creation order, assigned by the store
	Symbol    string          // token symbol
	Owner     string          // owning account name
	Amount    decimal.Decimal // fixed-point, scaled to the token's fraction digits
	CommitID  string          // commit that produced the holding
	CreatedAt int64           // record creation timestamp (ms)
}

// SumHoldings returns the total amount of the given holdings.
func SumHoldings(holdings []*Holding) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.Amount)
	}
	return total
}
