// Package ledger tracks account balances backing the plain settlement token.
//
// Flow:
//  1. A party is credited (deposit detected by the platform edge)
//  2. Escrow creation moves buyer balance into the engine vault account
//  3. Settlement moves vault balance to the winning party
//  4. Dispute stakes move through the same vault account
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cinchpay/cinch/internal/amount"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrInvalidAmount       = errors.New("ledger: invalid amount")
)

// Entry represents a ledger entry retained for audit.
type Entry struct {
	ID           string    `json:"id"`
	Account      string    `json:"account"`
	Type         string    `json:"type"` // credit, transfer_in, transfer_out
	Amount       string    `json:"amount"`
	Counterparty string    `json:"counterparty,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Balance represents an account's balance.
type Balance struct {
	Account   string    `json:"account"`
	Available string    `json:"available"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists ledger data. Unknown accounts read as zero balances.
type Store interface {
	GetBalance(ctx context.Context, account string) (*Balance, error)
	Credit(ctx context.Context, account, amt, reference string) error
	// Move atomically debits from and credits to, failing with
	// ErrInsufficientBalance when from cannot cover amt.
	Move(ctx context.Context, from, to, amt, reference string) error
	GetHistory(ctx context.Context, account string, limit int) ([]*Entry, error)
}

// Ledger manages account balances.
type Ledger struct {
	store Store
}

// New creates a new ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Balance returns an account's current balance.
func (l *Ledger) Balance(ctx context.Context, account string) (*Balance, error) {
	return l.store.GetBalance(ctx, strings.ToLower(account))
}

// Credit adds funds to an account (platform deposit path).
func (l *Ledger) Credit(ctx context.Context, account, amt, reference string) error {
	v, ok := amount.Parse(amt)
	if !ok || v.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return l.store.Credit(ctx, strings.ToLower(account), amt, reference)
}

// Move transfers funds between accounts.
func (l *Ledger) Move(ctx context.Context, from, to, amt, reference string) error {
	v, ok := amount.Parse(amt)
	if !ok || v.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return l.store.Move(ctx, strings.ToLower(from), strings.ToLower(to), amt, reference)
}

// History returns ledger entries for an account.
func (l *Ledger) History(ctx context.Context, account string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.GetHistory(ctx, strings.ToLower(account), limit)
}
