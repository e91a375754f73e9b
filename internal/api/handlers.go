package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
)

// parseQuantity rejects malformed numbers before they reach the engine,
// which rescales against the token's precision.
func parseQuantity(s string) (decimal.Decimal, error) {
	q, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a decimal", domain.ErrInvalidAmount, s)
	}
	return q, nil
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	defs, err := s.engine.ListTokens(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]TokenResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, toTokenResponse(def))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	var req CreateTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, requestErrorStatus(err), err)
		return
	}
	amount, err := parseQuantity(req.ValuationAmount)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	fractionDigits := domain.DefaultFractionDigits
	if req.FractionDigits != nil {
		fractionDigits = *req.FractionDigits
	}

	def, err := s.engine.CreateToken(r.Context(), caller, req.Symbol,
		domain.Valuation{Amount: amount, Currency: req.ValuationCurrency}, fractionDigits)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	resp := toTokenResponse(def)
	resp.Status = fmt.Sprintf("The %s token is created by '%s'", def.Symbol, def.Issuer)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLookupToken(w http.ResponseWriter, r *http.Request) {
	def, err := s.engine.Registry().Lookup(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(def))
}

func (s *Server) handleTokenSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.engine.TokenSupply(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SupplyResponse{
		Symbol: supply.Token.Symbol,
		Amount: domain.FormatAmount(supply.Amount, supply.Token.FractionDigits),
	})
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	var req QuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, requestErrorStatus(err), err)
		return
	}
	q, err := parseQuantity(req.Quantity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	rc, err := s.engine.IssueToken(r.Context(), caller, mux.Vars(r)["symbol"], q)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	status := fmt.Sprintf("The %s token is issued to '%s' as quantity %s",
		rc.Symbol, rc.Account, domain.FormatAmount(rc.Amount, rc.FractionDigits))
	writeJSON(w, http.StatusCreated, toReceiptResponse(rc, status))
}

func (s *Server) handleDistributeToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	var req DistributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, requestErrorStatus(err), err)
		return
	}
	q, err := parseQuantity(req.Quantity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	rc, err := s.engine.DistributeToken(r.Context(), caller, mux.Vars(r)["symbol"], q,
		domain.Principal(req.Recipient), req.ToAccount)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	status := fmt.Sprintf("The %s token is distributed to '%s' - quantity %s",
		rc.Symbol, rc.Account, domain.FormatAmount(rc.Amount, rc.FractionDigits))
	writeJSON(w, http.StatusCreated, toReceiptResponse(rc, status))
}

func (s *Server) handleTransferToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, requestErrorStatus(err), err)
		return
	}
	q, err := parseQuantity(req.Quantity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	rc, err := s.engine.TransferToken(r.Context(), caller, mux.Vars(r)["symbol"], q,
		req.FromAccount, req.ToAccount)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	status := fmt.Sprintf("The %s token is allocated to '%s' as quantity %s",
		rc.Symbol, rc.Counterparty, domain.FormatAmount(rc.Amount, rc.FractionDigits))
	writeJSON(w, http.StatusCreated, toReceiptResponse(rc, status))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	accts, err := s.engine.ListAccounts(r.Context(), caller)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]AccountResponse, 0, len(accts))
	for _, a := range accts {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, requestErrorStatus(err), err)
		return
	}

	acct, err := s.engine.CreateAccount(r.Context(), caller, req.Name)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	resp := toAccountResponse(acct)
	resp.Status = fmt.Sprintf("%s account was created. UUID is %s", acct.Name, acct.ID)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLookupAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	acct, err := s.engine.LookupAccount(r.Context(), caller, mux.Vars(r)["name"])
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (s *Server) handleShareAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	var req ShareAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, requestErrorStatus(err), err)
		return
	}

	name := mux.Vars(r)["name"]
	if err := s.engine.ShareAccount(r.Context(), caller, name, domain.Principal(req.Counterparty)); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status: fmt.Sprintf("%s has been shared to %s", name, req.Counterparty),
	})
}

func (s *Server) handleQueryBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	b, err := s.engine.QueryBalance(r.Context(), caller, vars["symbol"], vars["name"])
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	amount := domain.FormatAmount(b.Amount, b.FractionDigits)
	writeJSON(w, http.StatusOK, BalanceResponse{
		Status:  fmt.Sprintf("Account '%s' currently has %s %s tokens", b.Account, amount, b.Symbol),
		Symbol:  b.Symbol,
		Account: b.Account,
		Amount:  amount,
	})
}

func (s *Server) handleListHoldings(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.withCaller(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	v, err := s.engine.ListHoldings(r.Context(), caller, vars["symbol"], vars["name"])
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	resp := HoldingsResponse{
		Symbol:   v.Symbol,
		Account:  v.Account,
		Total:    domain.FormatAmount(v.Total, v.FractionDigits),
		Holdings: make([]HoldingResponse, 0, len(v.Holdings)),
	}
	for _, h := range v.Holdings {
		resp.Holdings = append(resp.Holdings, HoldingResponse{
			ID:       h.ID,
			Seq:      h.Seq,
			Amount:   domain.FormatAmount(h.Amount, v.FractionDigits),
			CommitID: h.CommitID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
