package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cinchpay/cinch/internal/idgen"
)

var (
	// ErrUnknownHandle is returned for handles the bridge has never issued.
	ErrUnknownHandle = errors.New("token: unknown confidential handle")
	// ErrHandleNotOwned is returned when a party tries to move a handle it
	// does not hold.
	ErrHandleNotOwned = errors.New("token: handle not held by owner")
)

// MemoryBridge is an in-process Confidential implementation used in
// development and tests. It tracks which account holds each handle but,
// like a real bridge, never exposes the underlying amount.
type MemoryBridge struct {
	enabled bool

	mu      sync.Mutex
	holders map[string]string // handle -> holding account ("" means custody)
}

// NewMemoryBridge creates a bridge. A disabled bridge reports Supported
// false and rejects all transfers, modeling a deployment without
// confidential payments.
func NewMemoryBridge(enabled bool) *MemoryBridge {
	return &MemoryBridge{enabled: enabled, holders: make(map[string]string)}
}

// Issue mints a fresh handle held by owner. Test and dev seeding only; in
// production handles are issued by the external bridge.
func (b *MemoryBridge) Issue(owner string) string {
	handle := idgen.WithPrefix("enc_")
	b.mu.Lock()
	b.holders[handle] = strings.ToLower(owner)
	b.mu.Unlock()
	return handle
}

func (b *MemoryBridge) Supported(context.Context) bool {
	return b.enabled
}

func (b *MemoryBridge) TransferIn(_ context.Context, owner, handle string) error {
	if !b.enabled {
		return ErrBridgeUnavailable
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	holder, ok := b.holders[handle]
	if !ok {
		return ErrUnknownHandle
	}
	if holder != strings.ToLower(owner) {
		return ErrHandleNotOwned
	}
	b.holders[handle] = "" // custody
	return nil
}

func (b *MemoryBridge) TransferOut(_ context.Context, recipient, handle string) error {
	if !b.enabled {
		return ErrBridgeUnavailable
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	holder, ok := b.holders[handle]
	if !ok {
		return ErrUnknownHandle
	}
	if holder != "" {
		return fmt.Errorf("%w: handle not in custody", ErrTransferFailed)
	}
	b.holders[handle] = strings.ToLower(recipient)
	return nil
}

// Holder reports which account currently holds a handle. Test helper.
func (b *MemoryBridge) Holder(handle string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	holder, ok := b.holders[handle]
	return holder, ok
}
