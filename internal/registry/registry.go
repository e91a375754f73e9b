// Package registry owns token definitions: one immutable definition per symbol,
// created only by the designated issuer.
package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

var (
	symbolPattern   = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._-]{0,31}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Registry is the TokenRegistry.
type Registry struct {
	store  storage.TokenStore
	issuer domain.Principal
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Registry enforcing issuer as the only principal allowed to
// define tokens.
func New(store storage.TokenStore, issuer domain.Principal, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		issuer: issuer,
		now:    time.Now,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Issuer returns the designated issuer principal.
func (r *Registry) Issuer() domain.Principal {
	return r.issuer
}

// Define creates the definition for symbol.
func (r *Registry) Define(
	ctx context.Context,
	symbol string,
	issuer domain.Principal,
	fractionDigits int32,
	valuation domain.Valuation,
) (*domain.TokenDefinition, error) {
	if issuer != r.issuer {
		return nil, fmt.Errorf("define %s by %s: %w", symbol, issuer, domain.ErrIssuerPolicyViolation)
	}

	symbol = NormalizeSymbol(symbol)
	if !symbolPattern.MatchString(symbol) {
		return nil, fmt.Errorf("symbol %q: %w", symbol, domain.ErrInvalidArgument)
	}
	if fractionDigits < 0 || fractionDigits > domain.MaxFractionDigits {
		return nil, fmt.Errorf("fraction digits %d: %w", fractionDigits, domain.ErrInvalidAmount)
	}
	if !valuation.Amount.IsPositive() {
		return nil, fmt.Errorf("valuation %s: %w", valuation.Amount.String(), domain.ErrInvalidAmount)
	}
	currency := strings.ToUpper(strings.TrimSpace(valuation.Currency))
	if !currencyPattern.MatchString(currency) {
		return nil, fmt.Errorf("currency %q: %w", valuation.Currency, domain.ErrInvalidArgument)
	}

	def := &domain.TokenDefinition{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Issuer:         issuer,
		FractionDigits: fractionDigits,
		Valuation:      domain.Valuation{Amount: valuation.Amount, Currency: currency},
		CreatedAt:      r.now().UnixMilli(),
	}

	if err := r.store.Insert(ctx, def); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("token %s: %w", symbol, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert token %s: %w", symbol, err)
	}

	r.logger.Info().
		Str("symbol", def.Symbol).
		Str("token_id", def.ID).
		Int32("fraction_digits", def.FractionDigits).
		Str("currency", def.Valuation.Currency).
		Msg("token defined")
	return def, nil
}

// Lookup returns the definition for symbol.
func (r *Registry) Lookup(ctx context.Context, symbol string) (*domain.TokenDefinition, error) {
	def, err := r.store.GetBySymbol(ctx, NormalizeSymbol(symbol))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("token %s: %w", symbol, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("lookup token %s: %w", symbol, err)
	}
	return def, nil
}

// List returns all definitions ordered by symbol.
func (r *Registry) List(ctx context.Context) ([]*domain.TokenDefinition, error) {
	defs, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return defs, nil
}

// NormalizeSymbol trims and upper-cases a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
