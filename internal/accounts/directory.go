// Package accounts implements the AccountDirectory: unique account names,
// generated account keys, hosting and cross-party sharing.
package accounts

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
	"ztoken-ledger/internal/identity"
	"ztoken-ledger/internal/storage"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]{0,63}$`)

// Directory is the AccountDirectory.
type Directory struct {
	store  storage.AccountStore
	keys   identity.KeySource
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Directory. Account keys are drawn from keys.
func New(store storage.AccountStore, keys identity.KeySource, logger zerolog.Logger) *Directory {
	return &Directory{
		store:  store,
		keys:   keys,
		now:    time.Now,
		logger: logger.With().Str("component", "accounts").Logger(),
	}
}

// Register creates an account named name hosted by host.
func (d *Directory) Register(ctx context.Context, name string, host domain.Principal) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("account name %q: %w", name, domain.ErrInvalidArgument)
	}
	if host == "" {
		return nil, fmt.Errorf("account %s host: %w", name, domain.ErrInvalidArgument)
	}

	key, err := d.keys.NewAccountKey()
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", name, err)
	}

	acct := &domain.Account{
		ID:        uuid.NewString(),
		Name:      name,
		Principal: key,
		Host:      host,
		CreatedAt: d.now().UnixMilli(),
	}
	if err := d.store.Insert(ctx, acct); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("account %s: %w", name, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert account %s: %w", name, err)
	}

	d.logger.Info().
		Str("account", acct.Name).
		Str("account_id", acct.ID).
		Str("host", acct.Host.String()).
		Msg("account registered")
	return acct, nil
}

// Resolve returns the account named name.
func (d *Directory) Resolve(ctx context.Context, name string) (*domain.Account, error) {
	acct, err := d.store.GetByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("account %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve account %s: %w", name, err)
	}
	return acct, nil
}

// ResolveVisible returns the account named name if p may observe it.
// Accounts hidden from p are reported as not found.
func (d *Directory) ResolveVisible(ctx context.Context, name string, p domain.Principal) (*domain.Account, error) {
	acct, err := d.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	visible, err := d.Visible(ctx, acct, p)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, fmt.Errorf("account %s: %w", name, domain.ErrNotFound)
	}
	return acct, nil
}

// ResolveHosted returns the account named name if p hosts it.
func (d *Directory) ResolveHosted(ctx context.Context, name string, p domain.Principal) (*domain.Account, error) {
	acct, err := d.ResolveVisible(ctx, name, p)
	if err != nil {
		return nil, err
	}
	if acct.Host != p {
		return nil, fmt.Errorf("account %s is hosted by %s: %w", name, acct.Host, domain.ErrPermissionDenied)
	}
	return acct, nil
}

// Share authorises counterparty to observe and address the account.
// Sharing with the host or sharing twice is a no-op.
func (d *Directory) Share(ctx context.Context, name string, counterparty domain.Principal) error {
	if counterparty == "" {
		return fmt.Errorf("share %s: counterparty: %w", name, domain.ErrInvalidArgument)
	}

	acct, err := d.Resolve(ctx, name)
	if err != nil {
		return err
	}
	if acct.Host == counterparty {
		return nil
	}

	err = d.store.InsertShare(ctx, &domain.Share{
		AccountName:  acct.Name,
		Counterparty: counterparty,
		SharedAt:     d.now().UnixMilli(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("account %s: %w", name, domain.ErrNotFound)
		}
		return fmt.Errorf("share account %s: %w", name, err)
	}

	d.logger.Info().
		Str("account", acct.Name).
		Str("counterparty", counterparty.String()).
		Msg("account shared")
	return nil
}

// Visible reports whether p hosts acct or acct has been shared with p.
func (d *Directory) Visible(ctx context.Context, acct *domain.Account, p domain.Principal) (bool, error) {
	if acct.Host == p {
		return true, nil
	}
	shares, err := d.store.GetShares(ctx, acct.Name)
	if err != nil {
		return false, fmt.Errorf("get shares of %s: %w", acct.Name, err)
	}
	for _, s := range shares {
		if s.Counterparty == p {
			return true, nil
		}
	}
	return false, nil
}

// Shares returns the counterparties an account has been shared with.
func (d *Directory) Shares(ctx context.Context, name string) ([]*domain.Share, error) {
	shares, err := d.store.GetShares(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get shares of %s: %w", name, err)
	}
	return shares, nil
}

// ListHosted returns accounts hosted by p ordered by name.
func (d *Directory) ListHosted(ctx context.Context, p domain.Principal) ([]*domain.Account, error) {
	accts, err := d.store.ListByHost(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list accounts of %s: %w", p, err)
	}
	return accts, nil
}

// List returns all accounts ordered by name.
func (d *Directory) List(ctx context.Context) ([]*domain.Account, error) {
	accts, err := d.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accts, nil
}
