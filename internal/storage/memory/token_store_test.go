package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/storage"
)

func testToken(symbol string) *domain.TokenDefinition {
	return &domain.TokenDefinition{
		ID:             "id-" + symbol,
		Symbol:         symbol,
		Issuer:         "ZCentral",
		FractionDigits: 2,
		Valuation:      domain.Valuation{Amount: decimal.NewFromInt(1), Currency: "USD"},
		CreatedAt:      1704067200000,
	}
}

func TestTokenStore_InsertAndGet(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testToken("USD-C")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetBySymbol(ctx, "USD-C")
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}
	if got.Issuer != "ZCentral" {
		t.Errorf("Issuer mismatch: got %s, want ZCentral", got.Issuer)
	}
	if got.FractionDigits != 2 {
		t.Errorf("FractionDigits mismatch: got %d, want 2", got.FractionDigits)
	}
}

func TestTokenStore_DuplicateKey(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testToken("USD-C")); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	second := testToken("USD-C")
	second.FractionDigits = 6
	err := store.Insert(ctx, second)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Original definition unchanged
	got, _ := store.GetBySymbol(ctx, "USD-C")
	if got.FractionDigits != 2 {
		t.Errorf("definition was overwritten: fraction digits %d", got.FractionDigits)
	}
}

func TestTokenStore_NotFound(t *testing.T) {
	store := NewTokenStore()

	_, err := store.GetBySymbol(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTokenStore_InvalidInput(t *testing.T) {
	store := NewTokenStore()

	if err := store.Insert(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(context.Background(), &domain.TokenDefinition{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty symbol, got %v", err)
	}
}

func TestTokenStore_ListSorted(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	for _, s := range []string{"USD-C", "EUR-C", "THB-C"} {
		if err := store.Insert(ctx, testToken(s)); err != nil {
			t.Fatalf("Insert %s failed: %v", s, err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"EUR-C", "THB-C", "USD-C"}
	for i, tok := range list {
		if tok.Symbol != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, tok.Symbol, want[i])
		}
	}
}

func TestTokenStore_ReturnsCopy(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()
	_ = store.Insert(ctx, testToken("USD-C"))

	got, _ := store.GetBySymbol(ctx, "USD-C")
	got.FractionDigits = 9

	again, _ := store.GetBySymbol(ctx, "USD-C")
	if again.FractionDigits != 2 {
		t.Error("store returned a shared pointer")
	}
}
