// Package token exposes the settlement surfaces the escrow engine moves
// value through. Fungible covers the plain balance-backed token and
// Confidential covers the encrypted-amount bridge, where amounts travel as
// opaque handles the engine never inspects.
package token

import (
	"context"
	"errors"
)

var (
	// ErrTransferFailed wraps any transfer that could not complete.
	ErrTransferFailed = errors.New("token: transfer failed")
	// ErrBridgeUnavailable is returned by confidential operations when no
	// bridge is configured.
	ErrBridgeUnavailable = errors.New("token: confidential bridge unavailable")
)

// Fungible moves plain token balances. Implementations hold a custody
// account: TransferFrom pulls a party's funds into custody and Transfer pays
// out of custody.
type Fungible interface {
	TransferFrom(ctx context.Context, owner, amount, reference string) error
	Transfer(ctx context.Context, recipient, amount, reference string) error
	BalanceOf(ctx context.Context, account string) (string, error)
}

// Confidential moves encrypted amounts by handle. The engine treats handles
// as opaque: it can escrow them and route them but never learns the amount.
type Confidential interface {
	// Supported reports whether the bridge is reachable and confidential
	// transfers can be accepted.
	Supported(ctx context.Context) bool
	// TransferIn pulls the encrypted amount identified by handle from owner
	// into custody.
	TransferIn(ctx context.Context, owner, handle string) error
	// TransferOut releases the encrypted amount identified by handle from
	// custody to recipient.
	TransferOut(ctx context.Context, recipient, handle string) error
}
