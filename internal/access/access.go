// Package access enforces caller authorization and transfer limits for
// escrow operations.
package access

import (
	"context"
	"errors"
	"strings"

	"github.com/cinchpay/cinch/internal/amount"
)

var (
	// ErrNotAuthorized is returned when a caller is not permitted to perform
	// an operation.
	ErrNotAuthorized = errors.New("access: caller not authorized")
	// ErrAmountTooLarge is returned when a transfer exceeds the single
	// transfer limit without multisig approval.
	ErrAmountTooLarge = errors.New("access: amount exceeds transfer limit")
	// ErrMultisigRequired is returned when a large transfer was submitted
	// without an approval reference.
	ErrMultisigRequired = errors.New("access: multisig approval required")
)

// Approver verifies multisig approvals for transfers above the limit.
type Approver interface {
	// Approved reports whether approvalID authorizes a transfer of amt.
	Approved(ctx context.Context, approvalID, amt string) (bool, error)
}

// DenyAllApprover rejects every approval. Used when no multisig backend is
// configured, which makes the transfer limit a hard cap.
type DenyAllApprover struct{}

func (DenyAllApprover) Approved(context.Context, string, string) (bool, error) {
	return false, nil
}

// Guard checks callers and amounts against the engine's access rules.
type Guard struct {
	limit    string
	approver Approver
}

// NewGuard creates a guard with the given single-transfer limit. A zero or
// empty limit disables the limit check.
func NewGuard(limit string, approver Approver) *Guard {
	if approver == nil {
		approver = DenyAllApprover{}
	}
	return &Guard{limit: limit, approver: approver}
}

// RequireParty ensures caller is one of the allowed addresses.
func (g *Guard) RequireParty(caller string, allowed ...string) error {
	c := strings.ToLower(caller)
	for _, a := range allowed {
		if c == strings.ToLower(a) && c != "" {
			return nil
		}
	}
	return ErrNotAuthorized
}

// CheckTransferLimit validates amt against the single-transfer limit.
// Transfers above the limit need a verified multisig approval.
func (g *Guard) CheckTransferLimit(ctx context.Context, amt, approvalID string) error {
	if g.limit == "" {
		return nil
	}
	limit, ok := amount.Parse(g.limit)
	if !ok || limit.Sign() <= 0 {
		return nil
	}
	v, ok := amount.Parse(amt)
	if !ok {
		return ErrAmountTooLarge
	}
	if v.Cmp(limit) <= 0 {
		return nil
	}
	if approvalID == "" {
		return ErrMultisigRequired
	}
	approved, err := g.approver.Approved(ctx, approvalID, amt)
	if err != nil {
		return err
	}
	if !approved {
		return ErrAmountTooLarge
	}
	return nil
}
