package accounts

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlaceholderPrefix marks the external id of an account created before its owner signed up.
const PlaceholderPrefix = "temp_"

type CustodyMode string

const (
	Custodial   CustodyMode = "custodial"
	SelfManaged CustodyMode = "self-managed"
)

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// Account is one per social handle.
type Account struct {
	ID            int64
	Handle        string
	ExternalID    string
	PublicAddress string
	Secret        string // sealed key material, custodial only
	CustodyMode   CustodyMode
	History       []LedgerEvent
	PendingClaims []PendingClaim
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LedgerEvent is appended only after on-chain confirmation.
type LedgerEvent struct {
	Direction          Direction
	Amount             decimal.Decimal
	Currency           string
	CounterpartyHandle string
	ChainTxID          string
	OriginReferences   []string
	Timestamp          time.Time
}

// PendingClaim is value owed to the account that has not been realized on-chain.
type PendingClaim struct {
	Amount          decimal.Decimal
	Currency        string
	OriginReference string
	Sender          string
	CreatedAt       time.Time
}

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,50}$`)

// NormalizeHandle returns the handle with exactly one leading @. Case is preserved.
func NormalizeHandle(h string) (string, error) {
	name := strings.TrimLeft(strings.TrimSpace(h), "@")
	if !handlePattern.MatchString(name) {
		return "", ErrInvalidHandle
	}
	return "@" + name, nil
}

// SameHandle compares two handles case-insensitively, ignoring the sigil.
func SameHandle(a, b string) bool {
	return strings.EqualFold(strings.TrimLeft(a, "@"), strings.TrimLeft(b, "@"))
}

func (a *Account) IsPlaceholder() bool {
	return strings.HasPrefix(a.ExternalID, PlaceholderPrefix)
}

// CanSpend reports whether the system holds spending authority for the account.
func (a *Account) CanSpend() bool {
	return a.CustodyMode == Custodial && a.Secret != "" && a.PublicAddress != ""
}

// Fundable reports whether the account has an address that can receive value.
func (a *Account) Fundable() bool {
	return a.PublicAddress != ""
}

// AddClaim inserts c unless a claim with the same origin and sender exists. It reports whether c was added.
func (a *Account) AddClaim(c PendingClaim) bool {
	if _, ok := a.FindClaim(c.OriginReference, c.Sender); ok {
		return false
	}
	a.PendingClaims = append(a.PendingClaims, c)
	return true
}

func (a *Account) FindClaim(origin, sender string) (PendingClaim, bool) {
	for _, c := range a.PendingClaims {
		if c.OriginReference == origin && SameHandle(c.Sender, sender) {
			return c, true
		}
	}
	return PendingClaim{}, false
}

// RemoveClaim drops the claim keyed by origin and sender. It reports whether one was removed.
func (a *Account) RemoveClaim(origin, sender string) bool {
	for i, c := range a.PendingClaims {
		if c.OriginReference == origin && SameHandle(c.Sender, sender) {
			a.PendingClaims = append(a.PendingClaims[:i], a.PendingClaims[i+1:]...)
			return true
		}
	}
	return false
}

// HasEvent reports whether an event for txID in the given direction was already recorded.
func (a *Account) HasEvent(txID string, d Direction) bool {
	for _, e := range a.History {
		if e.ChainTxID == txID && e.Direction == d {
			return true
		}
	}
	return false
}

// CreditedFor reports whether a credit from sender covering origin exists.
func (a *Account) CreditedFor(origin, sender string) bool {
	for _, e := range a.History {
		if e.Direction != Credit || !SameHandle(e.CounterpartyHandle, sender) {
			continue
		}
		for _, o := range e.OriginReferences {
			if o == origin {
				return true
			}
		}
	}
	return false
}

func (a *Account) AppendEvent(e LedgerEvent) {
	a.History = append(a.History, e)
}
