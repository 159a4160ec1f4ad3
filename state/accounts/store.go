package accounts

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrUniqueViolation   = errors.New("unique constraint violation")
	ErrInvalidHandle     = errors.New("invalid handle")
	ErrAlreadyRegistered = errors.New("handle is registered to another identity")
)

// Store is the persistent account capability. Saves are atomic per account.
type Store interface {
	// FindAccountByHandle returns the registered (non-placeholder) account for handle.
	FindAccountByHandle(ctx context.Context, handle string) (*Account, error)
	// FindPlaceholderByHandle returns the placeholder account for handle.
	FindPlaceholderByHandle(ctx context.Context, handle string) (*Account, error)
	FindAccountByAddress(ctx context.Context, address string) (*Account, error)
	// SaveAccount inserts (ID == 0) or updates the account, its claims and any new history.
	// Inserts that collide with an existing handle or address return ErrUniqueViolation.
	SaveAccount(ctx context.Context, a *Account) error
	ListAccounts(ctx context.Context) ([]*Account, error)
}

// StorageError is a genuine persistence fault, as opposed to a recoverable race.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageFailure(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
