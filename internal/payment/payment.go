// Package payment models the two payment modes an escrow can hold. A
// Payment is a closed variant: exactly one of the plain amount or the
// confidential handle is set, and every consumer switches exhaustively on
// Kind so a new mode cannot be half-supported.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrPrivacyNotAvailable is returned when a confidential payment is
	// attempted without a working bridge.
	ErrPrivacyNotAvailable = errors.New("payment: confidential transfers not available")
	// ErrCannotMixPrivacyModes is returned when an operation for one mode is
	// applied to an escrow of the other mode.
	ErrCannotMixPrivacyModes = errors.New("payment: cannot mix privacy modes")
	// ErrUnknownKind is returned for a malformed payment variant.
	ErrUnknownKind = errors.New("payment: unknown payment kind")
)

// Kind discriminates the payment variant.
type Kind string

const (
	KindPlain        Kind = "plain"
	KindConfidential Kind = "confidential"
)

// Payment is the value held by an escrow. For KindPlain, Amount is a decimal
// token amount. For KindConfidential, Handle references an encrypted amount
// held by the bridge; the engine never learns the value.
type Payment struct {
	Kind   Kind
	Amount string
	Handle string
}

// Plain builds a plain payment of the given amount.
func Plain(amount string) Payment {
	return Payment{Kind: KindPlain, Amount: amount}
}

// Confidential builds a confidential payment for the given handle.
func Confidential(handle string) Payment {
	return Payment{Kind: KindConfidential, Handle: handle}
}

// Validate checks the variant is well formed.
func (p Payment) Validate() error {
	switch p.Kind {
	case KindPlain:
		if p.Amount == "" || p.Handle != "" {
			return ErrUnknownKind
		}
		return nil
	case KindConfidential:
		if p.Handle == "" || p.Amount != "" {
			return ErrUnknownKind
		}
		return nil
	default:
		return ErrUnknownKind
	}
}

// IsConfidential reports whether the payment hides its amount.
func (p Payment) IsConfidential() bool {
	return p.Kind == KindConfidential
}

// MarshalJSON serializes the payment for API responses. Confidential
// payments expose the mode only; neither the handle nor any amount leaves
// the engine.
func (p Payment) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case KindPlain:
		return json.Marshal(struct {
			Mode   string `json:"mode"`
			Amount string `json:"amount"`
		}{Mode: string(KindPlain), Amount: p.Amount})
	case KindConfidential:
		return json.Marshal(struct {
			Mode string `json:"mode"`
		}{Mode: string(KindConfidential)})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
}
