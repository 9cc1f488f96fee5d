package token

import (
	"context"
	"fmt"

	"github.com/cinchpay/cinch/internal/ledger"
)

// LedgerToken implements Fungible on top of the internal ledger, with a
// configured vault account acting as custody.
type LedgerToken struct {
	ledger *ledger.Ledger
	vault  string
}

// NewLedgerToken creates a Fungible token whose custody account is vault.
func NewLedgerToken(l *ledger.Ledger, vault string) *LedgerToken {
	return &LedgerToken{ledger: l, vault: vault}
}

// Vault returns the custody account address.
func (t *LedgerToken) Vault() string {
	return t.vault
}

func (t *LedgerToken) TransferFrom(ctx context.Context, owner, amount, reference string) error {
	if err := t.ledger.Move(ctx, owner, t.vault, amount, reference); err != nil {
		if err == ledger.ErrInsufficientBalance {
			return err
		}
		return fmt.Errorf("%w: pull from %s: %v", ErrTransferFailed, owner, err)
	}
	return nil
}

func (t *LedgerToken) Transfer(ctx context.Context, recipient, amount, reference string) error {
	if err := t.ledger.Move(ctx, t.vault, recipient, amount, reference); err != nil {
		return fmt.Errorf("%w: payout to %s: %v", ErrTransferFailed, recipient, err)
	}
	return nil
}

func (t *LedgerToken) BalanceOf(ctx context.Context, account string) (string, error) {
	bal, err := t.ledger.Balance(ctx, account)
	if err != nil {
		return "", err
	}
	return bal.Available, nil
}
