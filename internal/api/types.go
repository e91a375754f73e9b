package api

import (
	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/engine"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// CreateTokenRequest defines a token.
type CreateTokenRequest struct {
	Symbol            string `json:"symbol"`
	FractionDigits    *int32 `json:"fraction_digits,omitempty"` // nil uses domain.DefaultFractionDigits
	ValuationAmount   string `json:"valuation_amount"`
	ValuationCurrency string `json:"valuation_currency"`
}

// QuantityRequest carries a decimal quantity as a string.
type QuantityRequest struct {
	Quantity string `json:"quantity"`
}

// DistributeRequest issues to a recipient's account.
type DistributeRequest struct {
	Quantity  string `json:"quantity"`
	Recipient string `json:"recipient"`
	ToAccount string `json:"to_account"`
}

// TransferRequest moves tokens between accounts.
type TransferRequest struct {
	Quantity    string `json:"quantity"`
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
}

// CreateAccountRequest registers an account.
type CreateAccountRequest struct {
	Name string `json:"name"`
}

// ShareAccountRequest shares an account with a counterparty.
type ShareAccountRequest struct {
	Counterparty string `json:"counterparty"`
}

// TokenResponse describes a token definition.
type TokenResponse struct {
	ID                string `json:"id"`
	Symbol            string `json:"symbol"`
	Issuer            string `json:"issuer"`
	FractionDigits    int32  `json:"fraction_digits"`
	ValuationAmount   string `json:"valuation_amount"`
	ValuationCurrency string `json:"valuation_currency"`
	CreatedAt         int64  `json:"created_at"`
	Status            string `json:"status,omitempty"`
}

// ReceiptResponse describes a committed mutation.
type ReceiptResponse struct {
	Status        string `json:"status"`
	CommitID      string `json:"commit_id"`
	Kind          string `json:"kind"`
	Symbol        string `json:"symbol"`
	Amount        string `json:"amount"`
	Account       string `json:"account"`
	Counterparty  string `json:"counterparty,omitempty"`
	Balance       string `json:"balance,omitempty"` // empty if unavailable
	Change        string `json:"change"`
	ConsumedCount int    `json:"consumed_count"`
}

// BalanceResponse describes an account balance.
type BalanceResponse struct {
	Status  string `json:"status"`
	Symbol  string `json:"symbol"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// AccountResponse describes an account.
type AccountResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Principal string `json:"principal"`
	Host      string `json:"host"`
	CreatedAt int64  `json:"created_at"`
	Status    string `json:"status,omitempty"`
}

// HoldingResponse describes one live holding.
type HoldingResponse struct {
	ID       string `json:"id"`
	Seq      int64  `json:"seq"`
	Amount   string `json:"amount"`
	CommitID string `json:"commit_id"`
}

// HoldingsResponse lists an account's live holdings.
type HoldingsResponse struct {
	Symbol   string            `json:"symbol"`
	Account  string            `json:"account"`
	Total    string            `json:"total"`
	Holdings []HoldingResponse `json:"holdings"`
}

// SupplyResponse describes the live supply of a token.
type SupplyResponse struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// StatusResponse acknowledges a mutation without a commit.
type StatusResponse struct {
	Status string `json:"status"`
}

func toTokenResponse(def *domain.TokenDefinition) TokenResponse {
	return TokenResponse{
		ID:                def.ID,
		Symbol:            def.Symbol,
		Issuer:            def.Issuer.String(),
		FractionDigits:    def.FractionDigits,
		ValuationAmount:   def.Valuation.Amount.String(),
		ValuationCurrency: def.Valuation.Currency,
		CreatedAt:         def.CreatedAt,
	}
}

func toReceiptResponse(r *engine.Receipt, status string) ReceiptResponse {
	resp := ReceiptResponse{
		Status:        status,
		CommitID:      r.CommitID,
		Kind:          string(r.Kind),
		Symbol:        r.Symbol,
		Amount:        domain.FormatAmount(r.Amount, r.FractionDigits),
		Account:       r.Account,
		Counterparty:  r.Counterparty,
		Change:        domain.FormatAmount(r.Change, r.FractionDigits),
		ConsumedCount: r.ConsumedCount,
	}
	if r.BalanceKnown {
		resp.Balance = domain.FormatAmount(r.Balance, r.FractionDigits)
	}
	return resp
}

func toAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Name:      a.Name,
		Principal: a.Principal.String(),
		Host:      a.Host.String(),
		CreatedAt: a.CreatedAt,
	}
}
