package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"tipbot/engine/custody"
	"tipbot/engine/library"
)

// Resolver maps handles to accounts, provisioning custodial keypairs on first reference.
type Resolver struct {
	store      Store
	keys       custody.Sealer
	newKeypair func() (string, []byte, error)
	now        func() time.Time
}

func NewResolver(store Store, keys custody.Sealer) *Resolver {
	return &Resolver{
		store:      store,
		keys:       keys,
		newKeypair: custody.NewKeypair,
		now:        time.Now,
	}
}

func newPlaceholderID() string {
	return PlaceholderPrefix + uuid.New().String()
}

// Lookup returns the registered account for handle, falling back to its placeholder.
// It never creates anything.
func (r *Resolver) Lookup(ctx context.Context, handle string) (*Account, error) {
	h, err := NormalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	a, err := r.store.FindAccountByHandle(ctx, h)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, storageFailure("find account", err)
	}
	a, err = r.store.FindPlaceholderByHandle(ctx, h)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, storageFailure("find placeholder", err)
	}
	return nil, ErrNotFound
}

// EnsureCustodialAccount returns the account for handle with a usable address, creating or
// upgrading records as needed. A non-empty externalID is the owner's verified identity.
func (r *Resolver) EnsureCustodialAccount(ctx context.Context, handle, externalID string) (*Account, error) {
	h, err := NormalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(externalID, PlaceholderPrefix) {
		return nil, fmt.Errorf("external id %q uses the placeholder prefix", externalID)
	}
	return r.ensure(ctx, h, externalID, true)
}

func (r *Resolver) ensure(ctx context.Context, h, externalID string, retry bool) (*Account, error) {
	a, err := r.store.FindAccountByHandle(ctx, h)
	switch {
	case err == nil:
		if a.PublicAddress != "" {
			// a live keypair (or a self-managed address) is never replaced
			return a, nil
		}
		return r.attachKeypair(ctx, a)
	case !errors.Is(err, ErrNotFound):
		return nil, storageFailure("find account", err)
	}

	ph, err := r.store.FindPlaceholderByHandle(ctx, h)
	switch {
	case err == nil:
		if ph.PublicAddress == "" {
			if ph, err = r.attachKeypair(ctx, ph); err != nil {
				return nil, err
			}
		}
		if externalID == "" {
			return ph, nil
		}
		return r.upgradePlaceholder(ctx, ph, externalID)
	case !errors.Is(err, ErrNotFound):
		return nil, storageFailure("find placeholder", err)
	}

	address, sealed, err := r.provision()
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	a = &Account{
		Handle:        h,
		ExternalID:    externalID,
		PublicAddress: address,
		Secret:        sealed,
		CustodyMode:   Custodial,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if a.ExternalID == "" {
		a.ExternalID = newPlaceholderID()
	}
	err = r.store.SaveAccount(ctx, a)
	if errors.Is(err, ErrUniqueViolation) && retry {
		library.LogCLI(fmt.Sprintf("lost the race creating %s, re-reading the winner", h), 3)
		return r.ensure(ctx, h, externalID, false)
	}
	if err != nil {
		return nil, storageFailure("create account", err)
	}
	library.LogCLI(fmt.Sprintf("provisioned custodial account %s at %s", h, address), 4)
	return a, nil
}

// upgradePlaceholder swaps the temporary marker for a real identity. The keypair is kept
// verbatim because funds may already have been sent to its address.
func (r *Resolver) upgradePlaceholder(ctx context.Context, ph *Account, externalID string) (*Account, error) {
	ph.ExternalID = externalID
	ph.UpdatedAt = r.now().UTC()
	if err := r.store.SaveAccount(ctx, ph); err != nil {
		return nil, storageFailure("upgrade placeholder", err)
	}
	library.LogCLI(fmt.Sprintf("%s signed up and inherited pre-created address %s", ph.Handle, ph.PublicAddress), 4)
	return ph, nil
}

func (r *Resolver) attachKeypair(ctx context.Context, a *Account) (*Account, error) {
	address, sealed, err := r.provision()
	if err != nil {
		return nil, err
	}
	a.PublicAddress = address
	a.Secret = sealed
	a.CustodyMode = Custodial
	a.UpdatedAt = r.now().UTC()
	if err := r.store.SaveAccount(ctx, a); err != nil {
		return nil, storageFailure("attach keypair", err)
	}
	library.LogCLI(fmt.Sprintf("attached custodial purse %s to %s", address, a.Handle), 4)
	return a, nil
}

func (r *Resolver) provision() (string, string, error) {
	address, secret, err := r.newKeypair()
	if err != nil {
		return "", "", err
	}
	sealed, err := r.keys.Seal(secret)
	for i := range secret {
		secret[i] = 0
	}
	if err != nil {
		return "", "", fmt.Errorf("seal secret: %w", err)
	}
	return address, sealed, nil
}

// Register completes signup for handle. With ownAddress empty the owner gets a custodial
// account, otherwise a self-managed one. An existing placeholder is always inherited.
func (r *Resolver) Register(ctx context.Context, handle, externalID, ownAddress string) (*Account, error) {
	h, err := NormalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	if externalID == "" || strings.HasPrefix(externalID, PlaceholderPrefix) {
		return nil, fmt.Errorf("a verified external id is required to register %s", h)
	}
	if ownAddress != "" && !custody.ValidAddress(ownAddress) {
		return nil, fmt.Errorf("invalid address %q", ownAddress)
	}
	return r.register(ctx, h, externalID, ownAddress, true)
}

func (r *Resolver) register(ctx context.Context, h, externalID, ownAddress string, retry bool) (*Account, error) {
	a, err := r.store.FindAccountByHandle(ctx, h)
	switch {
	case err == nil:
		if a.ExternalID != externalID {
			return nil, ErrAlreadyRegistered
		}
		return a, nil
	case !errors.Is(err, ErrNotFound):
		return nil, storageFailure("find account", err)
	}

	ph, err := r.store.FindPlaceholderByHandle(ctx, h)
	switch {
	case err == nil:
		if ownAddress != "" && ph.PublicAddress != "" {
			library.LogCLI(fmt.Sprintf("%s registered with %s but keeps pre-funded custodial address %s", h, ownAddress, ph.PublicAddress), 2)
		}
		return r.ensure(ctx, h, externalID, retry)
	case !errors.Is(err, ErrNotFound):
		return nil, storageFailure("find placeholder", err)
	}

	if ownAddress == "" {
		return r.ensure(ctx, h, externalID, retry)
	}
	now := r.now().UTC()
	a = &Account{
		Handle:        h,
		ExternalID:    externalID,
		PublicAddress: ownAddress,
		CustodyMode:   SelfManaged,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = r.store.SaveAccount(ctx, a)
	if errors.Is(err, ErrUniqueViolation) && retry {
		return r.register(ctx, h, externalID, ownAddress, false)
	}
	if err != nil {
		return nil, storageFailure("register account", err)
	}
	return a, nil
}
