package payment

import (
	"context"
	"fmt"

	"github.com/cinchpay/cinch/internal/token"
)

// Adapter routes payment movements to the right settlement surface for each
// payment kind.
type Adapter struct {
	fungible     token.Fungible
	confidential token.Confidential
}

// NewAdapter creates an adapter over the two settlement surfaces.
func NewAdapter(fungible token.Fungible, confidential token.Confidential) *Adapter {
	return &Adapter{fungible: fungible, confidential: confidential}
}

// PrivacyAvailable reports whether confidential payments can be accepted.
func (a *Adapter) PrivacyAvailable(ctx context.Context) bool {
	return a.confidential != nil && a.confidential.Supported(ctx)
}

// Pull moves the payment from owner into engine custody.
func (a *Adapter) Pull(ctx context.Context, owner string, p Payment, reference string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	switch p.Kind {
	case KindPlain:
		return a.fungible.TransferFrom(ctx, owner, p.Amount, reference)
	case KindConfidential:
		if !a.PrivacyAvailable(ctx) {
			return ErrPrivacyNotAvailable
		}
		return a.confidential.TransferIn(ctx, owner, p.Handle)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
}

// Payout releases the payment from engine custody to recipient.
func (a *Adapter) Payout(ctx context.Context, recipient string, p Payment, reference string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	switch p.Kind {
	case KindPlain:
		return a.fungible.Transfer(ctx, recipient, p.Amount, reference)
	case KindConfidential:
		if a.confidential == nil {
			return ErrPrivacyNotAvailable
		}
		// Payout does not re-check Supported: funds already in custody must
		// remain releasable even if the bridge later reports degraded.
		return a.confidential.TransferOut(ctx, recipient, p.Handle)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
}
