package identity

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ztoken-ledger/internal/domain"
)

func TestEd25519KeySource_NewAccountKey(t *testing.T) {
	src := NewEd25519KeySource(nil)

	first, err := src.NewAccountKey()
	require.NoError(t, err)
	second, err := src.NewAccountKey()
	require.NoError(t, err)

	assert.True(t, IsAccountKey(first))
	assert.True(t, IsAccountKey(second))
	assert.NotEqual(t, first, second)
}

func TestEd25519KeySource_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 64)

	a, err := NewEd25519KeySource(bytes.NewReader(seed)).NewAccountKey()
	require.NoError(t, err)
	b, err := NewEd25519KeySource(bytes.NewReader(seed)).NewAccountKey()
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEd25519KeySource_ShortEntropy(t *testing.T) {
	_, err := NewEd25519KeySource(bytes.NewReader([]byte{1, 2, 3})).NewAccountKey()
	assert.Error(t, err)
}

func TestIsAccountKey(t *testing.T) {
	assert.False(t, IsAccountKey("ZCentral"))
	assert.False(t, IsAccountKey(""))
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver("ZCentral", "BankA", " ")

	p, err := r.Resolve("zcentral")
	require.NoError(t, err)
	assert.Equal(t, domain.Principal("ZCentral"), p)

	_, err = r.Resolve("BankB")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, []domain.Principal{"BankA", "ZCentral"}, r.Parties())
}
