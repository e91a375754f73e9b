// Package identity provides principals for organisations and accounts.
// Organisation principals are resolved from configured party names; account
// principals are freshly generated Ed25519 points, base58-encoded.
package identity

import (
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"ztoken-ledger/internal/domain"
)

// KeySource generates account principals.
type KeySource interface {
	NewAccountKey() (domain.Principal, error)
}

// Ed25519KeySource derives account keys from a uniform random scalar.
type Ed25519KeySource struct {
	rand io.Reader
}

// NewEd25519KeySource creates a key source reading entropy from r.
// A nil reader uses crypto/rand.
func NewEd25519KeySource(r io.Reader) *Ed25519KeySource {
	if r == nil {
		r = rand.Reader
	}
	return &Ed25519KeySource{rand: r}
}

// NewAccountKey returns base58(scalar * B) for a fresh scalar.
func (k *Ed25519KeySource) NewAccountKey() (domain.Principal, error) {
	var seed [64]byte
	if _, err := io.ReadFull(k.rand, seed[:]); err != nil {
		return "", fmt.Errorf("read key entropy: %w", err)
	}

	scalar, err := edwards25519.NewScalar().SetUniformBytes(seed[:])
	if err != nil {
		return "", fmt.Errorf("derive scalar: %w", err)
	}

	point := new(edwards25519.Point).ScalarBaseMult(scalar)
	return domain.Principal(base58.Encode(point.Bytes())), nil
}

// IsAccountKey reports whether p decodes to a point on the ed25519 curve.
func IsAccountKey(p domain.Principal) bool {
	raw, err := base58.Decode(string(p))
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// Resolver maps organisation names to principals.
type Resolver interface {
	Resolve(name string) (domain.Principal, error)
}

// StaticResolver resolves a fixed set of configured party names.
type StaticResolver struct {
	mu      sync.RWMutex
	parties map[string]domain.Principal // keyed by lower-cased name
}

// NewStaticResolver creates a resolver for the given party names.
// Each party's principal is its name.
func NewStaticResolver(names ...string) *StaticResolver {
	r := &StaticResolver{parties: make(map[string]domain.Principal)}
	for _, n := range names {
		r.Add(n)
	}
	return r
}

// Add registers a party name.
func (r *StaticResolver) Add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	r.mu.Lock()
	r.parties[strings.ToLower(name)] = domain.Principal(name)
	r.mu.Unlock()
}

// Resolve returns the principal for name. Returns domain.ErrNotFound if unknown.
func (r *StaticResolver) Resolve(name string) (domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parties[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("party %q: %w", name, domain.ErrNotFound)
	}
	return p, nil
}

// Parties returns the known principals, sorted.
func (r *StaticResolver) Parties() []domain.Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Principal, 0, len(r.parties))
	for _, p := range r.parties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ Resolver = (*StaticResolver)(nil)
var _ KeySource = (*Ed25519KeySource)(nil)
